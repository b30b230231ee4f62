package workflow

import (
	"context"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
)

// LockTypeForReferenceType maps an outbox reference type to a period lock type.
// If a reference type is not mapped, no lock gate is enforced here.
func LockTypeForReferenceType(referenceType string) (models.PeriodLockType, bool) {
	switch referenceType {
	case string(models.LedgerReferenceTypeTransaction):
		return models.AccountantPeriodLock, true

	case string(models.LedgerReferenceTypeInvoice),
		string(models.LedgerReferenceTypeReceivableAllocation):
		return models.ReceivablePeriodLock, true

	case string(models.LedgerReferenceTypeBill),
		string(models.LedgerReferenceTypePayableAllocation):
		return models.PayablePeriodLock, true

	case string(models.LedgerReferenceTypeBankFeedItem),
		string(models.LedgerReferenceTypeBankFeedBatch),
		string(models.LedgerReferenceTypeReconciliationMatch):
		return models.BankingPeriodLock, true
	}
	return "", false
}

// EnforcePostingGate validates period locks for the message (worker-side).
func EnforcePostingGate(ctx context.Context, msg config.PubSubMessage) error {
	lockType, ok := LockTypeForReferenceType(msg.ReferenceType)
	if !ok {
		return nil
	}
	return models.ValidatePeriodLock(ctx, msg.EventDateTime, msg.CompanyId, lockType)
}
