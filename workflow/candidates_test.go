package workflow

import (
	"strings"
	"testing"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
)

func TestDayDistance_IgnoresTimeOfDay(t *testing.T) {
	cases := []struct {
		a, b     time.Time
		expected int
	}{
		{
			time.Date(2026, 1, 10, 23, 59, 0, 0, time.UTC),
			time.Date(2026, 1, 10, 0, 1, 0, 0, time.UTC),
			0,
		},
		{
			time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC),
			1,
		},
		{
			time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC),
			time.Date(2026, 1, 10, 20, 0, 0, 0, time.UTC),
			5,
		},
		{
			time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
			2,
		},
	}
	for _, tc := range cases {
		if got := dayDistance(tc.a, tc.b); got != tc.expected {
			t.Fatalf("dayDistance(%s, %s) expected %d, got %d",
				tc.a.Format("2006-01-02 15:04"), tc.b.Format("2006-01-02 15:04"), tc.expected, got)
		}
		// Symmetric by definition.
		if got := dayDistance(tc.b, tc.a); got != tc.expected {
			t.Fatalf("dayDistance(%s, %s) expected %d, got %d",
				tc.b.Format("2006-01-02 15:04"), tc.a.Format("2006-01-02 15:04"), tc.expected, got)
		}
	}
}

func TestDescriptionTokens_DropsShortTokens(t *testing.T) {
	got := descriptionTokens("ACME Trading  Transfer to A1 42")
	expected := []string{"acme", "trading", "transfer"}
	if len(got) != len(expected) {
		t.Fatalf("expected tokens %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected tokens %v, got %v", expected, got)
		}
	}
}

func TestSharedTokens(t *testing.T) {
	cases := []struct {
		a, b     string
		expected []string
	}{
		{"ACME TRADING TRANSFER", "Payment from Acme", []string{"acme"}},
		{"coffee coffee coffee", "COFFEE RUN", []string{"coffee"}},
		{"OFFICE SUPPLIES CO", "stationery order", nil},
		{"", "anything", nil},
	}
	for _, tc := range cases {
		got := sharedTokens(tc.a, tc.b)
		if len(got) != len(tc.expected) {
			t.Fatalf("sharedTokens(%q, %q) expected %v, got %v", tc.a, tc.b, tc.expected, got)
		}
		for i := range tc.expected {
			if got[i] != tc.expected[i] {
				t.Fatalf("sharedTokens(%q, %q) expected %v, got %v", tc.a, tc.b, tc.expected, got)
			}
		}
	}
}

func TestAccountMovement_NetsLinesOnTheAccount(t *testing.T) {
	const bankId = 7
	transaction := &models.Transaction{
		Type: models.TransactionTypeReceipt,
		Lines: []models.TransactionLine{
			{AccountId: bankId, Amount: decimal.RequireFromString("500.00"), Direction: models.LineDirectionDebit},
			{AccountId: 9, Amount: decimal.RequireFromString("500.00"), Direction: models.LineDirectionCredit},
		},
	}
	if got := accountMovement(transaction, bankId); !got.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("expected movement 500.00, got %s", got.String())
	}
	// Other accounts do not contribute.
	if got := accountMovement(transaction, 9); !got.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("expected movement 500.00 on the credit side, got %s", got.String())
	}

	// A payment moves credit-side through the bank; movement is still positive.
	payment := &models.Transaction{
		Type: models.TransactionTypePayment,
		Lines: []models.TransactionLine{
			{AccountId: 4, Amount: decimal.RequireFromString("123.45"), Direction: models.LineDirectionDebit},
			{AccountId: bankId, Amount: decimal.RequireFromString("123.45"), Direction: models.LineDirectionCredit},
		},
	}
	if got := accountMovement(payment, bankId); !got.Equal(decimal.RequireFromString("123.45")) {
		t.Fatalf("expected movement 123.45, got %s", got.String())
	}

	// Two legs on the same account net before the absolute value.
	mixed := &models.Transaction{
		Lines: []models.TransactionLine{
			{AccountId: bankId, Amount: decimal.RequireFromString("100.00"), Direction: models.LineDirectionDebit},
			{AccountId: bankId, Amount: decimal.RequireFromString("30.00"), Direction: models.LineDirectionCredit},
			{AccountId: 9, Amount: decimal.RequireFromString("70.00"), Direction: models.LineDirectionCredit},
		},
	}
	if got := accountMovement(mixed, bankId); !got.Equal(decimal.RequireFromString("70.00")) {
		t.Fatalf("expected netted movement 70.00, got %s", got.String())
	}
}

func TestCandidateReasons(t *testing.T) {
	item := &models.BankFeedItem{
		PostedDate:  time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		Description: "ACME TRADING TRANSFER",
	}

	sameDay := &models.Transaction{
		Date:        time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC),
		Description: "Receipt from Acme",
	}
	reasons := candidateReasons(item, sameDay, true, 7)
	assertReason(t, reasons, "amount-exact")
	assertReason(t, reasons, "same-day")
	assertReason(t, reasons, "token-overlap: acme")

	nearby := &models.Transaction{
		Date:        time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC),
		Description: "no overlap here",
	}
	reasons = candidateReasons(item, nearby, false, 7)
	assertReason(t, reasons, "within-3-days")
	for _, r := range reasons {
		if r == "amount-exact" {
			t.Fatalf("inexact candidate must not carry amount-exact: %v", reasons)
		}
		if strings.HasPrefix(r, "token-overlap") {
			t.Fatalf("disjoint descriptions must not carry token-overlap: %v", reasons)
		}
	}

	edgeOfWindow := &models.Transaction{
		Date:        time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC),
		Description: "acme",
	}
	reasons = candidateReasons(item, edgeOfWindow, false, 14)
	assertReason(t, reasons, "within-14-days")
}

func assertReason(t *testing.T, reasons []string, want string) {
	t.Helper()
	for _, r := range reasons {
		if r == want {
			return
		}
	}
	t.Fatalf("expected reason %q in %v", want, reasons)
}
