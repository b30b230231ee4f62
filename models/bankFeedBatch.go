package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"gorm.io/gorm"
)

const (
	FeedBatchStatusCompleted = "Completed"
	FeedBatchStatusFailed    = "Failed"
)

// BankFeedBatch records one statement import and its dedup counts.
type BankFeedBatch struct {
	ID            int    `gorm:"primary_key" json:"id"`
	CompanyId     string `gorm:"index;not null" json:"company_id"`
	BankAccountId int    `gorm:"index;not null" json:"bank_account_id" binding:"required"`
	SourceName    string `gorm:"size:100" json:"source_name"`
	// GCS object name of the raw statement file, when one was uploaded.
	StatementObject string    `gorm:"size:255" json:"statement_object"`
	TotalCount      int       `gorm:"not null;default:0" json:"total_count"`
	NewCount        int       `gorm:"not null;default:0" json:"new_count"`
	DuplicateCount  int       `gorm:"not null;default:0" json:"duplicate_count"`
	Status          string    `gorm:"size:20;not null;default:'Completed'" json:"status"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetBankFeedBatch(ctx context.Context, id int) (*BankFeedBatch, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	var result BankFeedBatch
	err := db.WithContext(ctx).Where("company_id = ?", companyId).First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

func GetBankFeedBatches(ctx context.Context, bankAccountId *int, limit *int) ([]*BankFeedBatch, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	max := 100
	if limit != nil && *limit > 0 && *limit <= 1000 {
		max = *limit
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if bankAccountId != nil && *bankAccountId > 0 {
		dbCtx = dbCtx.Where("bank_account_id = ?", *bankAccountId)
	}
	var results []*BankFeedBatch
	if err := dbCtx.Order("id DESC").Limit(max).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetBankFeedBatchStatementURL signs a short-lived download link for the
// raw statement object, when the batch stored one.
func GetBankFeedBatchStatementURL(ctx context.Context, id int) (string, error) {
	batch, err := GetBankFeedBatch(ctx, id)
	if err != nil {
		return "", err
	}
	if batch.StatementObject == "" {
		return "", errors.New("batch has no statement file")
	}
	signed, err := utils.SignDownload(ctx, batch.StatementObject, 15*time.Minute)
	if err != nil {
		return "", err
	}
	return signed.DownloadURL, nil
}
