package models_test

import (
	"testing"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
)

func TestFeedItemStatusTransitions(t *testing.T) {
	all := []models.FeedItemStatus{
		models.FeedItemStatusNew,
		models.FeedItemStatusMatched,
		models.FeedItemStatusCreated,
		models.FeedItemStatusIgnored,
		models.FeedItemStatusSplit,
	}

	allowed := map[models.FeedItemStatus][]models.FeedItemStatus{
		models.FeedItemStatusNew: {
			models.FeedItemStatusMatched,
			models.FeedItemStatusCreated,
			models.FeedItemStatusSplit,
			models.FeedItemStatusIgnored,
		},
		models.FeedItemStatusMatched: {models.FeedItemStatusNew},
		models.FeedItemStatusCreated: {models.FeedItemStatusNew},
		models.FeedItemStatusIgnored: {models.FeedItemStatusNew},
		// Split is terminal: the item became several ledger legs and there is
		// no single transaction to sever.
		models.FeedItemStatusSplit: {},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("CanTransitionTo(%s -> %s) expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestFeedItemStatusIsResolved(t *testing.T) {
	if models.FeedItemStatusNew.IsResolved() {
		t.Fatalf("New must not count as resolved")
	}
	for _, s := range []models.FeedItemStatus{
		models.FeedItemStatusMatched,
		models.FeedItemStatusCreated,
		models.FeedItemStatusIgnored,
		models.FeedItemStatusSplit,
	} {
		if !s.IsResolved() {
			t.Fatalf("%s must count as resolved", s)
		}
	}
}

func TestNormalizeFeedDescription(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"COFFEE  SUPPLY", "coffee supply"},
		{"coffee supply", "coffee supply"},
		{"  ACME\tTrading \n Transfer  ", "acme trading transfer"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := models.NormalizeFeedDescription(tc.in); got != tc.expected {
			t.Fatalf("NormalizeFeedDescription(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestBankFeedItemAmountHelpers(t *testing.T) {
	inflow := models.BankFeedItem{Amount: decimal.RequireFromString("300.00")}
	if !inflow.IsInflow() {
		t.Fatalf("positive amount must be an inflow")
	}
	if !inflow.AbsAmount().Equal(decimal.RequireFromString("300.00")) {
		t.Fatalf("expected abs amount 300.00, got %s", inflow.AbsAmount().String())
	}

	outflow := models.BankFeedItem{Amount: decimal.RequireFromString("-12.40")}
	if outflow.IsInflow() {
		t.Fatalf("negative amount must not be an inflow")
	}
	if !outflow.AbsAmount().Equal(decimal.RequireFromString("12.40")) {
		t.Fatalf("expected abs amount 12.40, got %s", outflow.AbsAmount().String())
	}
}
