package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SplitAllocation is one non-bank leg of a split or created transaction.
type SplitAllocation struct {
	AccountId int             `json:"account_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	TaxCode   string          `json:"tax_code"`
	Memo      string          `json:"memo"`
}

// SplitItem turns one feed item into a posted transaction with several
// counter legs: a single aggregate bank-side line plus one line per
// allocation. The allocations must sum to the item amount exactly. The
// posting, the item flip to SPLIT and the match record commit together.
func SplitItem(ctx context.Context, itemId int, allocations []SplitAllocation) (*models.BankFeedItem, *models.Transaction, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, nil, errors.New("company id is required")
	}

	item, err := models.GetBankFeedItem(ctx, itemId)
	if err != nil {
		return nil, nil, err
	}
	if item.Status.IsResolved() {
		return nil, nil, &models.AlreadyMatchedError{ItemId: itemId, Status: item.Status}
	}

	if err := validateSplitAllocations(ctx, companyId, item, allocations); err != nil {
		return nil, nil, err
	}

	return createAndPostForItem(ctx, companyId, item, allocations, models.FeedItemStatusSplit, models.MatchTypeSplit)
}

// CreateTransactionForItem is the NEW→CREATED path: one counter account for
// the whole amount. When accountId is zero the rule suggestion captured at
// ingestion is used and the match is recorded as Auto; an explicit account is
// Manual.
func CreateTransactionForItem(ctx context.Context, itemId int, accountId int, taxCode string, memo string) (*models.BankFeedItem, *models.Transaction, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, nil, errors.New("company id is required")
	}

	item, err := models.GetBankFeedItem(ctx, itemId)
	if err != nil {
		return nil, nil, err
	}
	if item.Status.IsResolved() {
		return nil, nil, &models.AlreadyMatchedError{ItemId: itemId, Status: item.Status}
	}

	matchType := models.MatchTypeManual
	if accountId == 0 {
		if item.SuggestedAccountId == nil || *item.SuggestedAccountId == 0 {
			return nil, nil, &models.InvalidArgumentError{
				Field:  "account_id",
				Reason: "no account given and the item carries no rule suggestion",
			}
		}
		accountId = *item.SuggestedAccountId
		matchType = models.MatchTypeAuto
		if taxCode == "" {
			taxCode = item.SuggestedTaxCode
		}
		if memo == "" {
			memo = item.SuggestedMemo
		}
	}
	if memo == "" {
		memo = item.Description
	}

	allocations := []SplitAllocation{{
		AccountId: accountId,
		Amount:    item.AbsAmount(),
		TaxCode:   taxCode,
		Memo:      memo,
	}}
	if err := validateSplitAllocations(ctx, companyId, item, allocations); err != nil {
		return nil, nil, err
	}

	return createAndPostForItem(ctx, companyId, item, allocations, models.FeedItemStatusCreated, matchType)
}

func validateSplitAllocations(ctx context.Context, companyId string, item *models.BankFeedItem, allocations []SplitAllocation) error {
	if len(allocations) == 0 {
		return &models.InvalidArgumentError{Field: "allocations", Reason: "at least one allocation is required"}
	}
	total := decimal.Zero
	for _, a := range allocations {
		if !a.Amount.IsPositive() {
			return &models.InvalidArgumentError{Field: "amount", Reason: "allocation amounts must be positive"}
		}
		if err := utils.ValidateResourceId[models.Account](ctx, companyId, a.AccountId); err != nil {
			return errors.New("account not found")
		}
		total = total.Add(a.Amount)
	}
	if !total.Equal(item.AbsAmount()) {
		return &models.UnbalancedSplitError{ItemAmount: item.AbsAmount(), SplitTotal: total}
	}
	return nil
}

// createAndPostForItem builds the transaction for the item, posts it and
// resolves the item, all in one DB transaction under the posting lock.
//
// Line construction:
//   - inflow:  bank line DEBIT, counter lines CREDIT (a Receipt)
//   - outflow: bank line CREDIT, counter lines DEBIT (a Payment)
func createAndPostForItem(ctx context.Context, companyId string, item *models.BankFeedItem,
	allocations []SplitAllocation, status models.FeedItemStatus, matchType models.MatchType) (*models.BankFeedItem, *models.Transaction, error) {

	// The transaction lands on the item's statement date.
	if err := models.ValidatePeriodLock(ctx, item.PostedDate, companyId, models.AccountantPeriodLock); err != nil {
		return nil, nil, err
	}

	transactionType := models.TransactionTypePayment
	bankDirection := models.LineDirectionCredit
	if item.IsInflow() {
		transactionType = models.TransactionTypeReceipt
		bankDirection = models.LineDirectionDebit
	}
	counterDirection := bankDirection.Opposite()

	lines := make([]models.TransactionLine, 0, len(allocations)+1)
	lines = append(lines, models.TransactionLine{
		CompanyId: companyId,
		AccountId: item.BankAccountId,
		Amount:    item.AbsAmount(),
		Direction: bankDirection,
		Memo:      item.Description,
		Position:  1,
	})
	for i, a := range allocations {
		lines = append(lines, models.TransactionLine{
			CompanyId: companyId,
			AccountId: a.AccountId,
			Amount:    a.Amount,
			Direction: counterDirection,
			TaxCode:   a.TaxCode,
			Memo:      a.Memo,
			Position:  i + 2,
		})
	}

	seqNo, number, err := models.NextTransactionNumber(ctx, companyId, transactionType)
	if err != nil {
		return nil, nil, err
	}

	transaction := models.Transaction{
		CompanyId:   companyId,
		Type:        transactionType,
		Number:      number,
		SequenceNo:  seqNo,
		Date:        item.PostedDate,
		Description: item.Description,
		Reference:   item.Reference,
		Status:      models.TransactionStatusDraft,
		Lines:       lines,
	}
	if err := validatePostable(&transaction); err != nil {
		return nil, nil, err
	}

	before := *item
	actor, _ := utils.GetUserNameFromContext(ctx)
	now := time.Now().UTC()

	db := config.GetDB()
	// GET_LOCK is session-scoped, so the lock, the transaction and the release
	// all run on one pinned connection.
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

		if err := tx.Create(&transaction).Error; err != nil {
			_ = tx.Rollback().Error
			return err
		}
		if err := markPosted(tx, &transaction, actor, now); err != nil {
			_ = tx.Rollback().Error
			return err
		}

		if err := models.WriteAuditLog(tx, "POST", transaction.ID, "transactions",
			nil, transaction,
			fmt.Sprintf("posted transaction %s for bank feed item %d", transaction.Number, item.ID)); err != nil {
			_ = tx.Rollback().Error
			return err
		}
		if err := models.PublishToLedger(ctx, tx, companyId, transaction.Date, transaction.ID,
			models.LedgerReferenceTypeTransaction, transaction, nil,
			models.PubSubMessageActionCreate); err != nil {
			_ = tx.Rollback().Error
			return err
		}

		if err := recordResolution(ctx, tx, companyId, item, &transaction, status, matchType, actor, now, before); err != nil {
			_ = tx.Rollback().Error
			return err
		}

		return tx.Commit().Error
	})
	if err != nil {
		return nil, nil, err
	}
	return item, &transaction, nil
}
