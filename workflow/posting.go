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

// Posting is the only way lines become part of the ledger. A draft can be
// edited and deleted freely; posting re-validates the whole document, stamps
// the posting metadata and emits the ledger event, all in one DB transaction
// serialized per company via an advisory lock.

// validatePostable checks everything posting requires beyond existence and
// the period lock (both enforced by FetchModelForChange before we get here).
func validatePostable(transaction *models.Transaction) error {
	if transaction.Status != models.TransactionStatusDraft {
		return &models.InvalidStateError{
			Entity:    "transaction",
			Id:        transaction.ID,
			Status:    string(transaction.Status),
			Operation: "posted",
		}
	}
	if len(transaction.Lines) == 0 {
		return &models.InvalidArgumentError{Field: "lines", Reason: "cannot post a transaction with no lines"}
	}
	debits := transaction.DebitTotal()
	credits := transaction.CreditTotal()
	// Exact decimal equality. No rounding tolerance: lines are validated as
	// positive decimal(20,4) on the way in, so the totals either match or
	// the document is genuinely out of balance.
	if !debits.Equal(credits) {
		return &models.UnbalancedError{DebitTotal: debits, CreditTotal: credits}
	}
	return nil
}

// markPosted flips the row to POSTED inside the caller's transaction. The
// empty-model Updates form keeps the immutability hook satisfied; the in-memory
// struct is synced manually so callers see the posted state.
//
// The status predicate makes the flip race-safe: a concurrent post that got
// there first leaves zero rows for this one, which surfaces as InvalidStateError
// instead of a double post.
func markPosted(tx *gorm.DB, transaction *models.Transaction, postedBy string, now time.Time) error {
	postedAt := now
	result := tx.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", transaction.ID, models.TransactionStatusDraft).
		Updates(map[string]interface{}{
			"status":    models.TransactionStatusPosted,
			"posted_at": &postedAt,
			"posted_by": postedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var current models.Transaction
		if err := tx.Select("status").Where("id = ?", transaction.ID).First(&current).Error; err != nil {
			return err
		}
		return &models.InvalidStateError{
			Entity:    "transaction",
			Id:        transaction.ID,
			Status:    string(current.Status),
			Operation: "posted",
		}
	}
	transaction.Status = models.TransactionStatusPosted
	transaction.PostedAt = &postedAt
	transaction.PostedBy = postedBy
	return nil
}

func PostTransaction(ctx context.Context, id int) (*models.Transaction, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	transaction, err := utils.FetchModelForChange[models.Transaction](ctx, companyId, id, "Lines")
	if err != nil {
		return nil, err
	}
	if err := validatePostable(transaction); err != nil {
		return nil, err
	}

	before := *transaction
	now := time.Now().UTC()
	postedBy, _ := utils.GetUserNameFromContext(ctx)

	db := config.GetDB()
	// GET_LOCK is session-scoped, so the lock, the transaction and the release
	// all run on one pinned connection. Releasing after commit on the same
	// session keeps other writers blocked until the posted rows are visible.
	err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		// Serialize per company so concurrent posts cannot interleave with
		// reversals or allocations against the same books.
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

		if err := markPosted(tx, transaction, postedBy, now); err != nil {
			_ = tx.Rollback().Error
			return err
		}

		if err := models.WriteAuditLog(tx, "POST", transaction.ID, "transactions",
			before, transaction, "posted transaction "+transaction.Number); err != nil {
			_ = tx.Rollback().Error
			return err
		}

		if err := models.PublishToLedger(ctx, tx, companyId, transaction.Date, transaction.ID,
			models.LedgerReferenceTypeTransaction, transaction, before,
			models.PubSubMessageActionCreate); err != nil {
			_ = tx.Rollback().Error
			return err
		}

		return tx.Commit().Error
	})
	if err != nil {
		return nil, err
	}
	return transaction, nil
}
