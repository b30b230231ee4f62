package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"gorm.io/gorm"
)

// Reconciliation drives the feed item state machine. None of these
// operations touch the linked transaction's ledger facts: matching records
// an association, unmatching severs it, the transaction stays posted.

// FindUnmatchedItems lists NEW items for a bank account, oldest first.
func FindUnmatchedItems(ctx context.Context, bankAccountId int) ([]*models.BankFeedItem, error) {
	return models.GetNewBankFeedItems(ctx, bankAccountId)
}

// MatchItem links a feed item to an existing posted transaction.
// status MATCHED records a manual link to a pre-existing transaction;
// CREATED is reserved for transactions produced for the item (see
// CreateTransactionForItem and SplitItem).
func MatchItem(ctx context.Context, itemId int, transactionId int, matchType models.MatchType) (*models.BankFeedItem, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	item, err := models.GetBankFeedItem(ctx, itemId)
	if err != nil {
		return nil, err
	}
	if item.Status.IsResolved() {
		return nil, &models.AlreadyMatchedError{ItemId: itemId, Status: item.Status}
	}

	transaction, err := models.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if transaction.Status != models.TransactionStatusPosted {
		return nil, &models.InvalidStateError{
			Entity:    "transaction",
			Id:        transactionId,
			Status:    string(transaction.Status),
			Operation: "matched",
		}
	}

	if matchType != models.MatchTypeAuto && matchType != models.MatchTypeManual {
		return nil, &models.InvalidArgumentError{Field: "match_type", Reason: "must be Auto or Manual"}
	}

	return resolveItem(ctx, companyId, item, transaction, models.FeedItemStatusMatched, matchType)
}

// resolveItem links the transaction, flips the status and appends the
// ReconciliationMatch row, atomically. Shared by match, create and split.
func resolveItem(ctx context.Context, companyId string, item *models.BankFeedItem,
	transaction *models.Transaction, status models.FeedItemStatus, matchType models.MatchType) (*models.BankFeedItem, error) {

	if !item.Status.CanTransitionTo(status) {
		return nil, &models.InvalidStateError{
			Entity:    "bank feed item",
			Id:        item.ID,
			Status:    string(item.Status),
			Operation: "resolved",
		}
	}

	before := *item
	matchedBy, _ := utils.GetUserNameFromContext(ctx)
	now := time.Now().UTC()

	db := config.GetDB()
	// db action
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	if err := recordResolution(ctx, tx, companyId, item, transaction, status, matchType, matchedBy, now, before); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return item, nil
}

// recordResolution performs the writes inside the caller's transaction.
// SplitItem reuses it so the split posting and the item flip commit together.
func recordResolution(ctx context.Context, tx *gorm.DB, companyId string, item *models.BankFeedItem,
	transaction *models.Transaction, status models.FeedItemStatus, matchType models.MatchType,
	matchedBy string, now time.Time, before models.BankFeedItem) error {

	if err := tx.Model(&models.BankFeedItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"status":         status,
			"transaction_id": transaction.ID,
		}).Error; err != nil {
		return err
	}
	item.Status = status
	item.TransactionId = &transaction.ID

	match := models.ReconciliationMatch{
		CompanyId:     companyId,
		FeedItemId:    item.ID,
		TransactionId: transaction.ID,
		MatchType:     matchType,
		MatchedBy:     matchedBy,
		MatchedAt:     now,
	}
	if err := tx.Create(&match).Error; err != nil {
		return err
	}

	if err := models.WriteAuditLog(tx, "MATCH", item.ID, "bank_feed_items",
		before, item,
		fmt.Sprintf("%s bank feed item %d to transaction %s", status, item.ID, transaction.Number)); err != nil {
		return err
	}
	if err := models.PublishToLedger(ctx, tx, companyId, now, item.ID,
		models.LedgerReferenceTypeBankFeedItem, item, before,
		models.PubSubMessageActionUpdate); err != nil {
		return err
	}
	return nil
}

// UnmatchItem severs the feed item / transaction association and reverts the
// item to NEW. Refused when the linked transaction has been reversed: the
// item would silently lose the trail explaining the reversal.
func UnmatchItem(ctx context.Context, itemId int) (*models.BankFeedItem, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	item, err := models.GetBankFeedItem(ctx, itemId)
	if err != nil {
		return nil, err
	}
	if item.Status != models.FeedItemStatusMatched && item.Status != models.FeedItemStatusCreated {
		return nil, &models.InvalidStateError{
			Entity:    "bank feed item",
			Id:        itemId,
			Status:    string(item.Status),
			Operation: "unmatched",
		}
	}
	if item.MatchedTransaction != nil && item.MatchedTransaction.Status == models.TransactionStatusReversed {
		return nil, &models.InvalidStateError{
			Entity:    "transaction",
			Id:        item.MatchedTransaction.ID,
			Status:    string(item.MatchedTransaction.Status),
			Operation: "unmatched from a bank feed item",
		}
	}

	return revertItemToNew(ctx, companyId, item, "UNMATCH", true)
}

// IgnoreItem parks a NEW item without a transaction.
func IgnoreItem(ctx context.Context, itemId int) (*models.BankFeedItem, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	item, err := models.GetBankFeedItem(ctx, itemId)
	if err != nil {
		return nil, err
	}
	if item.Status.IsResolved() {
		return nil, &models.AlreadyMatchedError{ItemId: itemId, Status: item.Status}
	}

	before := *item
	now := time.Now().UTC()

	db := config.GetDB()
	// db action
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	if err := tx.Model(&models.BankFeedItem{}).
		Where("id = ?", item.ID).
		Update("status", models.FeedItemStatusIgnored).Error; err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	item.Status = models.FeedItemStatusIgnored

	if err := models.WriteAuditLog(tx, "IGNORE", item.ID, "bank_feed_items",
		before, item, fmt.Sprintf("ignored bank feed item %d", item.ID)); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if err := models.PublishToLedger(ctx, tx, companyId, now, item.ID,
		models.LedgerReferenceTypeBankFeedItem, item, before,
		models.PubSubMessageActionUpdate); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return item, nil
}

// UnignoreItem brings an ignored item back into the queue.
func UnignoreItem(ctx context.Context, itemId int) (*models.BankFeedItem, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	item, err := models.GetBankFeedItem(ctx, itemId)
	if err != nil {
		return nil, err
	}
	if item.Status != models.FeedItemStatusIgnored {
		return nil, &models.InvalidStateError{
			Entity:    "bank feed item",
			Id:        itemId,
			Status:    string(item.Status),
			Operation: "unignored",
		}
	}

	return revertItemToNew(ctx, companyId, item, "UNIGNORE", false)
}

func revertItemToNew(ctx context.Context, companyId string, item *models.BankFeedItem,
	actionType string, clearTransaction bool) (*models.BankFeedItem, error) {

	before := *item
	now := time.Now().UTC()

	updates := map[string]interface{}{
		"status": models.FeedItemStatusNew,
	}
	if clearTransaction {
		updates["transaction_id"] = nil
	}

	db := config.GetDB()
	// db action
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	if err := tx.Model(&models.BankFeedItem{}).
		Where("id = ?", item.ID).
		Updates(updates).Error; err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	item.Status = models.FeedItemStatusNew
	if clearTransaction {
		item.TransactionId = nil
		item.MatchedTransaction = nil
	}

	if err := models.WriteAuditLog(tx, actionType, item.ID, "bank_feed_items",
		before, item, fmt.Sprintf("reverted bank feed item %d to New", item.ID)); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if err := models.PublishToLedger(ctx, tx, companyId, now, item.ID,
		models.LedgerReferenceTypeBankFeedItem, item, before,
		models.PubSubMessageActionUpdate); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return item, nil
}
