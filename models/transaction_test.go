package models_test

import (
	"testing"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
)

func TestTransactionTotals(t *testing.T) {
	transaction := &models.Transaction{
		Lines: []models.TransactionLine{
			{Amount: decimal.RequireFromString("100.00"), Direction: models.LineDirectionDebit},
			{Amount: decimal.RequireFromString("23.45"), Direction: models.LineDirectionDebit},
			{Amount: decimal.RequireFromString("120.00"), Direction: models.LineDirectionCredit},
			{Amount: decimal.RequireFromString("3.45"), Direction: models.LineDirectionCredit},
		},
	}
	if got := transaction.DebitTotal(); !got.Equal(decimal.RequireFromString("123.45")) {
		t.Fatalf("expected debit total 123.45, got %s", got.String())
	}
	if got := transaction.CreditTotal(); !got.Equal(decimal.RequireFromString("123.45")) {
		t.Fatalf("expected credit total 123.45, got %s", got.String())
	}

	empty := &models.Transaction{}
	if !empty.DebitTotal().IsZero() || !empty.CreditTotal().IsZero() {
		t.Fatalf("expected zero totals without lines, got %s / %s",
			empty.DebitTotal().String(), empty.CreditTotal().String())
	}
}

func TestBankSideDirection(t *testing.T) {
	cases := []struct {
		txnType  models.TransactionType
		expected models.LineDirection
	}{
		{models.TransactionTypeReceipt, models.LineDirectionDebit},
		{models.TransactionTypePayment, models.LineDirectionCredit},
		{models.TransactionTypeJournal, models.LineDirectionDebit},
		{models.TransactionTypeTransfer, models.LineDirectionDebit},
	}
	for _, tc := range cases {
		transaction := &models.Transaction{Type: tc.txnType}
		if got := transaction.BankSideDirection(); got != tc.expected {
			t.Fatalf("%s: expected bank side %s, got %s", tc.txnType, tc.expected, got)
		}
	}
}

func TestLineDirectionOpposite(t *testing.T) {
	if got := models.LineDirectionDebit.Opposite(); got != models.LineDirectionCredit {
		t.Fatalf("expected Credit, got %s", got)
	}
	if got := models.LineDirectionCredit.Opposite(); got != models.LineDirectionDebit {
		t.Fatalf("expected Debit, got %s", got)
	}
}
