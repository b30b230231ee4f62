package reports

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

type feedStatusBucket struct {
	BankAccountId int
	Status        models.FeedItemStatus
	ItemCount     int
	AbsTotal      decimal.Decimal
}

// GetReconciliationSummaryReport summarizes the reconciliation worklist per
// bank account: feed item counts by status and the unsigned total of
// unreconciled lines, with the New items themselves attached oldest first.
// Pass a bankAccountId to restrict to one account.
func GetReconciliationSummaryReport(ctx context.Context, bankAccountId *int) ([]*models.ReconciliationSummary, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	started := time.Now()
	db := config.GetDB()

	accounts, err := models.GetBankAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if bankAccountId != nil && *bankAccountId > 0 {
		filtered := accounts[:0]
		for _, a := range accounts {
			if a.ID == *bankAccountId {
				filtered = append(filtered, a)
			}
		}
		accounts = filtered
		if len(accounts) == 0 {
			return nil, utils.ErrorRecordNotFound
		}
	}

	var buckets []feedStatusBucket
	bucketQuery := db.WithContext(ctx).Model(&models.BankFeedItem{}).
		Select("bank_account_id, status, COUNT(*) AS item_count, SUM(ABS(amount)) AS abs_total").
		Where("company_id = ?", companyId).
		Group("bank_account_id, status")
	if bankAccountId != nil && *bankAccountId > 0 {
		bucketQuery = bucketQuery.Where("bank_account_id = ?", *bankAccountId)
	}
	if err := bucketQuery.Scan(&buckets).Error; err != nil {
		return nil, err
	}

	summaries := make([]*models.ReconciliationSummary, 0, len(accounts))
	byAccount := make(map[int]*models.ReconciliationSummary, len(accounts))
	for _, a := range accounts {
		summary := models.ReconciliationSummary{
			BankAccountId:     a.ID,
			BankAccountCode:   a.Code,
			BankAccountName:   a.Name,
			UnreconciledTotal: decimal.NewFromInt(0),
		}
		byAccount[a.ID] = &summary
		summaries = append(summaries, &summary)
	}

	for _, b := range buckets {
		summary, ok := byAccount[b.BankAccountId]
		if !ok {
			continue
		}
		summary.TotalCount += b.ItemCount
		switch b.Status {
		case models.FeedItemStatusNew:
			summary.NewCount = b.ItemCount
			summary.UnreconciledTotal = summary.UnreconciledTotal.Add(b.AbsTotal)
		case models.FeedItemStatusMatched:
			summary.MatchedCount = b.ItemCount
		case models.FeedItemStatusCreated:
			summary.CreatedCount = b.ItemCount
		case models.FeedItemStatusIgnored:
			summary.IgnoredCount = b.ItemCount
		case models.FeedItemStatusSplit:
			summary.SplitCount = b.ItemCount
		}
	}

	for _, summary := range summaries {
		if summary.NewCount == 0 {
			continue
		}
		items, err := models.GetNewBankFeedItems(ctx, summary.BankAccountId)
		if err != nil {
			return nil, err
		}
		summary.UnreconciledItems = items
	}

	logSlowReport(ctx, "reconciliation_summary", started, map[string]any{"accounts": len(summaries)})
	return summaries, nil
}
