package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"gorm.io/gorm"
)

// ReconciliationMatch is the append-only audit trail of match events.
// One row per match action; unmatching appends nothing here, it only
// reverts the feed item status.
type ReconciliationMatch struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CompanyId     string    `gorm:"index;not null" json:"company_id"`
	FeedItemId    int       `gorm:"index;not null" json:"feed_item_id" binding:"required"`
	TransactionId int       `gorm:"index;not null" json:"transaction_id" binding:"required"`
	MatchType     MatchType `gorm:"type:enum('Auto', 'Manual', 'Split');size:10;not null" json:"match_type"`
	MatchedBy     string    `gorm:"size:100" json:"matched_by"`
	MatchedAt     time.Time `gorm:"not null" json:"matched_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *ReconciliationMatch) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("reconciliation matches are append-only: updates are not allowed")
}

func (m *ReconciliationMatch) BeforeDelete(tx *gorm.DB) error {
	return errors.New("reconciliation matches are append-only: deletes are not allowed")
}

func GetReconciliationMatches(ctx context.Context, feedItemId *int, transactionId *int, limit *int) ([]*ReconciliationMatch, error) {
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
	if feedItemId != nil && *feedItemId > 0 {
		dbCtx = dbCtx.Where("feed_item_id = ?", *feedItemId)
	}
	if transactionId != nil && *transactionId > 0 {
		dbCtx = dbCtx.Where("transaction_id = ?", *transactionId)
	}
	var results []*ReconciliationMatch
	if err := dbCtx.Order("id DESC").Limit(max).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
