package models

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Domain errors reported by the posting, allocation and reconciliation engines.
// Every mutating operation validates fully before writing, so any of these
// means no state was changed. Callers match with errors.As.

// InvalidStateError reports an operation attempted against an entity whose
// current status does not permit it (e.g. posting a posted transaction).
type InvalidStateError struct {
	Entity    string
	Id        int
	Status    string
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d cannot be %s while %s", e.Entity, e.Id, e.Operation, e.Status)
}

// UnbalancedError reports a transaction whose debit and credit totals differ.
type UnbalancedError struct {
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("transaction does not balance: debits %s, credits %s",
		e.DebitTotal.String(), e.CreditTotal.String())
}

// PeriodLockedError reports a write dated inside a closed accounting period.
type PeriodLockedError struct {
	Date     time.Time
	LockDate time.Time
	LockType PeriodLockType
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("period is locked: %s falls on or before the %s lock date %s",
		e.Date.Format("2006-01-02"), e.LockType, e.LockDate.Format("2006-01-02"))
}

// OverAllocationError reports an allocation that would exceed either the
// source transaction's unallocated amount or the target document's
// outstanding balance.
type OverAllocationError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
	Ceiling   string // "source transaction" or "target document"
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("allocation of %s exceeds the %s ceiling of %s",
		e.Requested.String(), e.Ceiling, e.Available.String())
}

// InvalidArgumentError reports malformed input: zero or negative amounts,
// empty line sets, unknown enum values.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// AlreadyMatchedError reports a feed item already in a resolved state.
type AlreadyMatchedError struct {
	ItemId int
	Status FeedItemStatus
}

func (e *AlreadyMatchedError) Error() string {
	return fmt.Sprintf("bank feed item %d is already %s; unmatch it first", e.ItemId, e.Status)
}

// UnbalancedSplitError reports split allocations whose amounts do not sum
// exactly to the feed item amount.
type UnbalancedSplitError struct {
	ItemAmount decimal.Decimal
	SplitTotal decimal.Decimal
}

func (e *UnbalancedSplitError) Error() string {
	return fmt.Sprintf("split allocations sum to %s but the bank feed item amount is %s",
		e.SplitTotal.String(), e.ItemAmount.String())
}

// StatusForError maps engine errors onto HTTP status codes for the REST layer.
func StatusForError(err error) int {
	var (
		invalidState   *InvalidStateError
		unbalanced     *UnbalancedError
		periodLocked   *PeriodLockedError
		overAllocation *OverAllocationError
		invalidArg     *InvalidArgumentError
		alreadyMatched *AlreadyMatchedError
		splitError     *UnbalancedSplitError
	)
	switch {
	case errors.As(err, &invalidArg):
		return http.StatusBadRequest
	case errors.As(err, &unbalanced), errors.As(err, &splitError):
		return http.StatusUnprocessableEntity
	case errors.As(err, &invalidState), errors.As(err, &alreadyMatched), errors.As(err, &overAllocation):
		return http.StatusConflict
	case errors.As(err, &periodLocked):
		return http.StatusLocked
	case errors.Is(err, utils.ErrorRecordNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
