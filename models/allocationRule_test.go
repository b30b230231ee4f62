package models_test

import (
	"testing"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
)

func TestAllocationRuleMatchPattern(t *testing.T) {
	cases := []struct {
		expression string
		expected   string
	}{
		{"COFFEE", "coffee"},
		{"  Coffee Shop  ", "coffee shop"},
		{"CONTAINS 'COFFEE'", "coffee"},
		{"contains 'Acme Trading'", "acme trading"},
		{"CONTAINS COFFEE", "coffee"},
		{"", ""},
	}
	for _, tc := range cases {
		rule := models.AllocationRule{MatchExpression: tc.expression}
		if got := rule.MatchPattern(); got != tc.expected {
			t.Fatalf("MatchPattern(%q) expected %q, got %q", tc.expression, tc.expected, got)
		}
	}
}

func TestAllocationRuleAmountWithin(t *testing.T) {
	min := decimal.RequireFromString("10.00")
	max := decimal.RequireFromString("100.00")

	unbounded := models.AllocationRule{}
	if !unbounded.AmountWithin(decimal.RequireFromString("123456.78")) {
		t.Fatalf("a rule without bounds must admit any amount")
	}

	bounded := models.AllocationRule{AmountMin: &min, AmountMax: &max}
	cases := []struct {
		amount string
		within bool
	}{
		{"9.99", false},
		{"10.00", true},
		{"55.55", true},
		{"100.00", true},
		{"100.01", false},
	}
	for _, tc := range cases {
		if got := bounded.AmountWithin(decimal.RequireFromString(tc.amount)); got != tc.within {
			t.Fatalf("AmountWithin(%s) expected %v, got %v", tc.amount, tc.within, got)
		}
	}

	minOnly := models.AllocationRule{AmountMin: &min}
	if minOnly.AmountWithin(decimal.RequireFromString("5")) {
		t.Fatalf("amount below the minimum must be rejected")
	}
	if !minOnly.AmountWithin(decimal.RequireFromString("100000")) {
		t.Fatalf("an open upper bound must admit large amounts")
	}
}
