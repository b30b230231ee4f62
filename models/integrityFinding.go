package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
)

// IntegrityFinding is one detected drift row (nightly sweep or admin trigger).
type IntegrityFinding struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CompanyId     string    `gorm:"size:64;index;not null" json:"company_id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`  // e.g. UNBALANCED_TRANSACTION, DAILY_BALANCE_DRIFT
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"` // e.g. Transaction, Invoice, BankFeedItem
	EntityId      int       `gorm:"index;not null" json:"entity_id"`
	Details       string    `gorm:"type:text" json:"details"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ListIntegrityFindings returns recent findings, optionally narrowed to one
// check type or one sweep run (by correlation id).
func ListIntegrityFindings(ctx context.Context, checkType string, correlationId string, limit *int) ([]*IntegrityFinding, error) {
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
	if checkType != "" {
		dbCtx = dbCtx.Where("check_type = ?", checkType)
	}
	if correlationId != "" {
		dbCtx = dbCtx.Where("correlation_id = ?", correlationId)
	}
	var results []*IntegrityFinding
	if err := dbCtx.Order("id DESC").Limit(max).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
