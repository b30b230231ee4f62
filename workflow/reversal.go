package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"gorm.io/gorm"
)

// ReverseTransaction corrects a posted transaction.
//
// Design:
// - Posted transactions are never deleted or edited.
// - We insert a reversal transaction (is_reversal=true, direction of every
//   line swapped) and mark the original as reversed_by_transaction_id=<reversal>.
// - Idempotent: reversing an already reversed transaction returns the existing
//   reversal instead of stacking a second one.
//
// The reversal is dated on the caller-supplied date (default today); both the
// original's date and the reversal date must fall in open periods.
func ReverseTransaction(ctx context.Context, id int, reason string, date *time.Time) (*models.Transaction, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	original, err := utils.FetchModelForChange[models.Transaction](ctx, companyId, id, "Lines")
	if err != nil {
		return nil, err
	}

	// Idempotent behavior: if already reversed, return the existing reversal.
	if original.ReversedByTransactionId != nil && *original.ReversedByTransactionId > 0 {
		return models.GetTransaction(ctx, *original.ReversedByTransactionId)
	}

	if original.Status != models.TransactionStatusPosted {
		return nil, &models.InvalidStateError{
			Entity:    "transaction",
			Id:        id,
			Status:    string(original.Status),
			Operation: "reversed",
		}
	}

	if reason == "" {
		reason = ReversalReasonManual
	}
	now := time.Now().UTC()
	reversalDate := now
	if date != nil {
		reversalDate = *date
	}
	if err := models.ValidatePeriodLock(ctx, reversalDate, companyId, models.AccountantPeriodLock); err != nil {
		return nil, err
	}

	reasonCopy := reason
	postedBy, _ := utils.GetUserNameFromContext(ctx)
	before := *original

	reversedLines := make([]models.TransactionLine, 0, len(original.Lines))
	for _, l := range original.Lines {
		reversedLines = append(reversedLines, models.TransactionLine{
			CompanyId: l.CompanyId,
			AccountId: l.AccountId,
			Amount:    l.Amount,
			Direction: l.Direction.Opposite(),
			TaxCode:   l.TaxCode,
			Memo:      l.Memo,
			Position:  l.Position,
		})
	}

	seqNo, err := utils.GetSequence[models.Transaction](ctx, companyId)
	if err != nil {
		return nil, err
	}

	reversal := models.Transaction{
		CompanyId:             companyId,
		Type:                  original.Type,
		Number:                "REV-" + original.Number,
		SequenceNo:            seqNo,
		Date:                  reversalDate,
		Description:           "Reversal: " + reasonCopy,
		Reference:             original.Reference,
		ContactId:             original.ContactId,
		Status:                models.TransactionStatusPosted,
		PostedAt:              &now,
		PostedBy:              postedBy,
		IsReversal:            true,
		ReversesTransactionId: &original.ID,
		Lines:                 reversedLines,
	}

	db := config.GetDB()
	// GET_LOCK is session-scoped, so the lock, the transaction and the release
	// all run on one pinned connection.
	var existingReversalId int
	err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireCompanyPostingLock(conn, companyId); err != nil {
			return err
		}
		defer ReleaseCompanyPostingLock(conn, companyId)

		// db action
		tx := conn.Begin()
		if tx.Error != nil {
			return tx.Error
		}
		defer func() {
			if r := recover(); r != nil {
				_ = tx.Rollback().Error
				panic(r)
			}
		}()

		// Re-check under the lock: another reversal may have committed between
		// the fetch above and lock acquisition.
		var current models.Transaction
		if err := tx.Select("status", "reversed_by_transaction_id").
			Where("id = ? AND company_id = ?", original.ID, companyId).
			First(&current).Error; err != nil {
			_ = tx.Rollback().Error
			return err
		}
		if current.ReversedByTransactionId != nil && *current.ReversedByTransactionId > 0 {
			existingReversalId = *current.ReversedByTransactionId
			return tx.Rollback().Error
		}
		if current.Status != models.TransactionStatusPosted {
			_ = tx.Rollback().Error
			return &models.InvalidStateError{
				Entity:    "transaction",
				Id:        original.ID,
				Status:    string(current.Status),
				Operation: "reversed",
			}
		}

		if err := tx.Create(&reversal).Error; err != nil {
			_ = tx.Rollback().Error
			return err
		}

		// Mark original as reversed (metadata-only update). The predicate is the
		// last guard on the at-most-one-reversal invariant: zero rows means a
		// competing reversal won.
		result := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ? AND reversed_by_transaction_id IS NULL",
				original.ID, models.TransactionStatusPosted).
			Updates(map[string]interface{}{
				"status":                     models.TransactionStatusReversed,
				"reversed_by_transaction_id": reversal.ID,
				"reversal_reason":            &reasonCopy,
				"reversed_at":                &now,
			})
		if result.Error != nil {
			_ = tx.Rollback().Error
			return result.Error
		}
		if result.RowsAffected == 0 {
			_ = tx.Rollback().Error
			return &models.InvalidStateError{
				Entity:    "transaction",
				Id:        original.ID,
				Status:    string(current.Status),
				Operation: "reversed",
			}
		}
		original.Status = models.TransactionStatusReversed
		original.ReversedByTransactionId = &reversal.ID
		original.ReversalReason = &reasonCopy
		original.ReversedAt = &now

		if err := models.WriteAuditLog(tx, "REVERSE", original.ID, "transactions",
			before, original, "reversed transaction "+original.Number+" with "+reversal.Number); err != nil {
			_ = tx.Rollback().Error
			return err
		}

		if err := models.PublishToLedger(ctx, tx, companyId, reversalDate, reversal.ID,
			models.LedgerReferenceTypeTransaction, reversal, nil,
			models.PubSubMessageActionCreate); err != nil {
			_ = tx.Rollback().Error
			return err
		}
		if err := models.PublishToLedger(ctx, tx, companyId, reversalDate, original.ID,
			models.LedgerReferenceTypeTransaction, original, before,
			models.PubSubMessageActionUpdate); err != nil {
			_ = tx.Rollback().Error
			return err
		}

		return tx.Commit().Error
	})
	if err != nil {
		return nil, err
	}
	if existingReversalId > 0 {
		return models.GetTransaction(ctx, existingReversalId)
	}
	return &reversal, nil
}
