package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
)

func draftReceipt(lines ...models.TransactionLine) *models.Transaction {
	return &models.Transaction{
		ID:     1,
		Type:   models.TransactionTypeReceipt,
		Status: models.TransactionStatusDraft,
		Lines:  lines,
	}
}

func line(accountId int, amount string, direction models.LineDirection) models.TransactionLine {
	return models.TransactionLine{
		AccountId: accountId,
		Amount:    decimal.RequireFromString(amount),
		Direction: direction,
	}
}

func TestValidatePostable_AcceptsBalancedDraft(t *testing.T) {
	transaction := draftReceipt(
		line(1, "500.00", models.LineDirectionDebit),
		line(2, "500.00", models.LineDirectionCredit),
	)
	if err := validatePostable(transaction); err != nil {
		t.Fatalf("expected a balanced draft to validate, got %v", err)
	}

	// Multi-leg documents balance on totals, not per-line pairing.
	transaction = draftReceipt(
		line(1, "100.00", models.LineDirectionDebit),
		line(2, "60.00", models.LineDirectionCredit),
		line(3, "40.00", models.LineDirectionCredit),
	)
	if err := validatePostable(transaction); err != nil {
		t.Fatalf("expected a multi-leg balanced draft to validate, got %v", err)
	}
}

func TestValidatePostable_RejectsNonDraft(t *testing.T) {
	for _, status := range []models.TransactionStatus{models.TransactionStatusPosted, models.TransactionStatusReversed} {
		transaction := draftReceipt(
			line(1, "500.00", models.LineDirectionDebit),
			line(2, "500.00", models.LineDirectionCredit),
		)
		transaction.Status = status

		err := validatePostable(transaction)
		var invalidState *models.InvalidStateError
		if !errors.As(err, &invalidState) {
			t.Fatalf("expected InvalidStateError for %s transaction, got %v", status, err)
		}
		if invalidState.Status != string(status) {
			t.Fatalf("expected error to carry status %s, got %s", status, invalidState.Status)
		}
	}
}

func TestValidatePostable_RejectsEmptyLines(t *testing.T) {
	err := validatePostable(draftReceipt())
	var invalidArg *models.InvalidArgumentError
	if !errors.As(err, &invalidArg) {
		t.Fatalf("expected InvalidArgumentError for a lineless draft, got %v", err)
	}
}

func TestValidatePostable_RejectsUnbalancedTotals(t *testing.T) {
	transaction := draftReceipt(
		line(1, "500.00", models.LineDirectionDebit),
		line(2, "499.99", models.LineDirectionCredit),
	)
	err := validatePostable(transaction)
	var unbalanced *models.UnbalancedError
	if !errors.As(err, &unbalanced) {
		t.Fatalf("expected UnbalancedError, got %v", err)
	}
	if !unbalanced.DebitTotal.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("expected debit total 500.00, got %s", unbalanced.DebitTotal.String())
	}
	if !unbalanced.CreditTotal.Equal(decimal.RequireFromString("499.99")) {
		t.Fatalf("expected credit total 499.99, got %s", unbalanced.CreditTotal.String())
	}
}
