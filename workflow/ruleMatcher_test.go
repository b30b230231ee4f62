package workflow

import (
	"testing"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
)

func matcherRule(id int, expression string, active bool) *models.AllocationRule {
	isActive := active
	return &models.AllocationRule{
		ID:              id,
		Name:            expression,
		MatchExpression: expression,
		TargetAccountId: 100 + id,
		IsActive:        &isActive,
	}
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestFindMatchingRule_FirstEnabledMatchWins(t *testing.T) {
	// The slice arrives pre-ordered (priority descending, id ascending), so
	// "first match" is also "highest priority, oldest rule".
	rules := []*models.AllocationRule{
		matcherRule(10, "coffee", false),
		matcherRule(20, "coffee", true),
		matcherRule(30, "coffee", true),
	}

	got := FindMatchingRule(rules, "DOWNTOWN COFFEE SUPPLY", decimal.NewFromInt(12))
	if got == nil {
		t.Fatalf("expected a match, got nil")
	}
	if got.ID != 20 {
		t.Fatalf("expected rule 20 (first enabled match), got rule %d", got.ID)
	}
}

func TestFindMatchingRule_MatchIsCaseInsensitiveSubstring(t *testing.T) {
	cases := []struct {
		expression  string
		description string
		match       bool
	}{
		{"COFFEE", "downtown coffee supply", true},
		{"coffee", "DOWNTOWN COFFEE SUPPLY", true},
		{"CONTAINS 'Coffee'", "morning coffee run", true},
		{"contains 'ACME'", "acme trading transfer", true},
		{"coffee", "office supplies", false},
		{"   ", "anything at all", false},
	}
	for _, tc := range cases {
		rules := []*models.AllocationRule{matcherRule(1, tc.expression, true)}
		got := FindMatchingRule(rules, tc.description, decimal.NewFromInt(50))
		if tc.match && got == nil {
			t.Fatalf("expression %q should match %q", tc.expression, tc.description)
		}
		if !tc.match && got != nil {
			t.Fatalf("expression %q should not match %q", tc.expression, tc.description)
		}
	}
}

func TestFindMatchingRule_AmountBounds(t *testing.T) {
	cases := []struct {
		name   string
		min    *decimal.Decimal
		max    *decimal.Decimal
		amount string
		match  bool
	}{
		{"no bounds", nil, nil, "9999.99", true},
		{"inside both", decimalPtr("10"), decimalPtr("100"), "50", true},
		{"at min", decimalPtr("10"), decimalPtr("100"), "10", true},
		{"at max", decimalPtr("10"), decimalPtr("100"), "100", true},
		{"below min", decimalPtr("10"), nil, "9.99", false},
		{"above max", nil, decimalPtr("100"), "100.01", false},
	}
	for _, tc := range cases {
		rule := matcherRule(1, "coffee", true)
		rule.AmountMin = tc.min
		rule.AmountMax = tc.max
		got := FindMatchingRule([]*models.AllocationRule{rule}, "coffee shop", decimal.RequireFromString(tc.amount))
		if tc.match && got == nil {
			t.Fatalf("%s: expected amount %s to match", tc.name, tc.amount)
		}
		if !tc.match && got != nil {
			t.Fatalf("%s: expected amount %s to be rejected", tc.name, tc.amount)
		}
	}
}

func TestFindMatchingRule_NoRulesMeansNil(t *testing.T) {
	if got := FindMatchingRule(nil, "coffee", decimal.NewFromInt(1)); got != nil {
		t.Fatalf("expected nil for an empty rule set, got rule %d", got.ID)
	}
}

func TestApplyMemoTemplate(t *testing.T) {
	date := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		template    string
		description string
		amount      string
		expected    string
	}{
		{"", "COFFEE SUPPLY", "12.40", "COFFEE SUPPLY"},
		{"Coffee run {description}", "DOWNTOWN", "12.40", "Coffee run DOWNTOWN"},
		{"{amount} on {date}", "x", "12.40", "12.4 on 2026-03-14"},
		{"{description} {description}", "twice", "1", "twice twice"},
		{"no tokens here", "ignored", "1", "no tokens here"},
	}
	for _, tc := range cases {
		got := ApplyMemoTemplate(tc.template, tc.description, decimal.RequireFromString(tc.amount), date)
		if got != tc.expected {
			t.Fatalf("ApplyMemoTemplate(%q) expected %q, got %q", tc.template, tc.expected, got)
		}
	}
}
