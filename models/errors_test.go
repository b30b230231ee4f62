package models_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err      error
		expected int
	}{
		{&models.InvalidArgumentError{Field: "amount", Reason: "must be positive"}, http.StatusBadRequest},
		{&models.UnbalancedError{DebitTotal: decimal.NewFromInt(10), CreditTotal: decimal.NewFromInt(9)}, http.StatusUnprocessableEntity},
		{&models.UnbalancedSplitError{ItemAmount: decimal.NewFromInt(10), SplitTotal: decimal.NewFromInt(9)}, http.StatusUnprocessableEntity},
		{&models.InvalidStateError{Entity: "transaction", Id: 1, Status: "Posted", Operation: "posted"}, http.StatusConflict},
		{&models.AlreadyMatchedError{ItemId: 1, Status: models.FeedItemStatusMatched}, http.StatusConflict},
		{&models.OverAllocationError{Requested: decimal.NewFromInt(10), Available: decimal.NewFromInt(5), Ceiling: "source transaction"}, http.StatusConflict},
		{&models.PeriodLockedError{Date: time.Now(), LockDate: time.Now(), LockType: models.AccountantPeriodLock}, http.StatusLocked},
		{utils.ErrorRecordNotFound, http.StatusNotFound},
		{gorm.ErrRecordNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := models.StatusForError(tc.err); got != tc.expected {
			t.Fatalf("StatusForError(%T) expected %d, got %d", tc.err, tc.expected, got)
		}
	}
}

func TestStatusForError_SeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("posting failed: %w",
		&models.UnbalancedError{DebitTotal: decimal.NewFromInt(1), CreditTotal: decimal.NewFromInt(2)})
	if got := models.StatusForError(wrapped); got != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a wrapped UnbalancedError, got %d", got)
	}
}

func TestDomainErrorMessages(t *testing.T) {
	overAllocation := &models.OverAllocationError{
		Requested: decimal.RequireFromString("250.00"),
		Available: decimal.RequireFromString("200.00"),
		Ceiling:   "target document",
	}
	expected := "allocation of 250 exceeds the target document ceiling of 200"
	if overAllocation.Error() != expected {
		t.Fatalf("expected %q, got %q", expected, overAllocation.Error())
	}

	unbalanced := &models.UnbalancedError{
		DebitTotal:  decimal.RequireFromString("500.00"),
		CreditTotal: decimal.RequireFromString("499.99"),
	}
	expected = "transaction does not balance: debits 500, credits 499.99"
	if unbalanced.Error() != expected {
		t.Fatalf("expected %q, got %q", expected, unbalanced.Error())
	}
}
