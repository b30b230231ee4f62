package reports

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GetAccountActivityReport reads the account_daily_balances projection for
// one account: per-day debit/credit/net buckets plus opening and closing
// running balances. Dates are company-timezone calendar days, matching the
// projection's grain.
func GetAccountActivityReport(ctx context.Context, accountId int, fromDate *time.Time, toDate *time.Time) (*models.AccountActivityReport, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	account, err := models.GetAccount(ctx, accountId)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	db := config.GetDB()

	opening := decimal.NewFromInt(0)
	if fromDate != nil {
		var before models.AccountDailyBalance
		err := db.WithContext(ctx).
			Where("company_id = ?", companyId).
			Where("account_id = ?", accountId).
			Where("transaction_date < ?", *fromDate).
			Order("transaction_date DESC").
			First(&before).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil {
			opening = before.RunningBalance
		}
	}

	days, err := models.ListAccountDailyBalances(ctx, accountId, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	closing := opening
	if len(days) > 0 {
		closing = days[len(days)-1].RunningBalance
	}

	report := models.AccountActivityReport{
		AccountId:      account.ID,
		AccountCode:    account.Code,
		AccountName:    account.Name,
		FromDate:       fromDate,
		ToDate:         toDate,
		OpeningBalance: opening,
		Days:           days,
		ClosingBalance: closing,
	}

	logSlowReport(ctx, "account_activity", started, map[string]any{"account_id": accountId, "days": len(days)})
	return &report, nil
}
