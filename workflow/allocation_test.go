package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/quartzbooks/ledger_backend/models"
)

func TestValidateAllocationSource(t *testing.T) {
	cases := []struct {
		name     string
		status   models.TransactionStatus
		txnType  models.TransactionType
		wantType models.TransactionType
		wantErr  string // "", "state" or "argument"
	}{
		{"posted receipt for receivable", models.TransactionStatusPosted, models.TransactionTypeReceipt, models.TransactionTypeReceipt, ""},
		{"posted payment for payable", models.TransactionStatusPosted, models.TransactionTypePayment, models.TransactionTypePayment, ""},
		{"draft receipt", models.TransactionStatusDraft, models.TransactionTypeReceipt, models.TransactionTypeReceipt, "state"},
		{"reversed receipt", models.TransactionStatusReversed, models.TransactionTypeReceipt, models.TransactionTypeReceipt, "state"},
		{"posted journal for receivable", models.TransactionStatusPosted, models.TransactionTypeJournal, models.TransactionTypeReceipt, "argument"},
		{"posted receipt for payable", models.TransactionStatusPosted, models.TransactionTypeReceipt, models.TransactionTypePayment, "argument"},
	}
	for _, tc := range cases {
		transaction := &models.Transaction{ID: 1, Type: tc.txnType, Status: tc.status}
		err := validateAllocationSource(transaction, tc.wantType)
		switch tc.wantErr {
		case "":
			if err != nil {
				t.Fatalf("%s: expected no error, got %v", tc.name, err)
			}
		case "state":
			var invalidState *models.InvalidStateError
			if !errors.As(err, &invalidState) {
				t.Fatalf("%s: expected InvalidStateError, got %v", tc.name, err)
			}
		case "argument":
			var invalidArg *models.InvalidArgumentError
			if !errors.As(err, &invalidArg) {
				t.Fatalf("%s: expected InvalidArgumentError, got %v", tc.name, err)
			}
		}
	}
}

func TestValidateSuggestionSource(t *testing.T) {
	receipt := &models.Transaction{ID: 1, Type: models.TransactionTypeReceipt, Status: models.TransactionStatusPosted}
	if err := validateSuggestionSource(receipt); err != nil {
		t.Fatalf("posted receipt should accept suggestions, got %v", err)
	}

	payment := &models.Transaction{ID: 2, Type: models.TransactionTypePayment, Status: models.TransactionStatusPosted}
	if err := validateSuggestionSource(payment); err != nil {
		t.Fatalf("posted payment should accept suggestions, got %v", err)
	}

	draft := &models.Transaction{ID: 3, Type: models.TransactionTypeReceipt, Status: models.TransactionStatusDraft}
	var invalidState *models.InvalidStateError
	if err := validateSuggestionSource(draft); !errors.As(err, &invalidState) {
		t.Fatalf("expected InvalidStateError for a draft source, got %v", err)
	}

	journal := &models.Transaction{ID: 4, Type: models.TransactionTypeJournal, Status: models.TransactionStatusPosted}
	var invalidArg *models.InvalidArgumentError
	if err := validateSuggestionSource(journal); !errors.As(err, &invalidArg) {
		t.Fatalf("expected InvalidArgumentError for a journal source, got %v", err)
	}
}
