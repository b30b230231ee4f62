package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// AccountDailyBalance is a derived aggregate maintained by the ledger worker
// from posted transaction lines. Grain: (company_id, account_id,
// transaction_date) with the date taken in the company timezone.
//
// Rows can always be rebuilt from transaction_lines; nothing reads them as a
// source of truth.
type AccountDailyBalance struct {
	CompanyId       string    `gorm:"primaryKey;size:64;index:idx_adb_company_date,priority:1" json:"company_id"`
	AccountId       int       `gorm:"primaryKey" json:"account_id"`
	Account         *Account  `gorm:"foreignKey:AccountId" json:"account,omitempty"`
	TransactionDate time.Time `gorm:"primaryKey;index:idx_adb_company_date,priority:2" json:"transaction_date"`

	Debit          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"debit"`
	Credit         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit"`
	Balance        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	RunningBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"running_balance"`
}

func ListAccountDailyBalances(ctx context.Context, accountId int, fromDate *time.Time, toDate *time.Time) ([]*AccountDailyBalance, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if accountId > 0 {
		if err := utils.ValidateResourceId[Account](ctx, companyId, accountId); err != nil {
			return nil, err
		}
	}

	db := config.GetDB()
	query := db.WithContext(ctx).Where("company_id = ?", companyId)
	if accountId > 0 {
		query = query.Where("account_id = ?", accountId)
	}
	if fromDate != nil {
		query = query.Where("transaction_date >= ?", *fromDate)
	}
	if toDate != nil {
		query = query.Where("transaction_date <= ?", *toDate)
	}

	var results []*AccountDailyBalance
	err := query.Order("account_id ASC, transaction_date ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
