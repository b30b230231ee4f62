package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"gorm.io/gorm"
)

func ReprocessOutbox(ctx context.Context, referenceType LedgerReferenceType, referenceId int) (*OutboxStatus, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	now := time.Now().UTC()
	db := config.GetDB()

	res := db.WithContext(ctx).
		Model(&PubSubMessageRecord{}).
		Where("company_id = ? AND reference_type = ? AND reference_id = ? AND is_processed = 0", companyId, referenceType, referenceId).
		Updates(map[string]interface{}{
			"locked_at":               nil,
			"locked_by":               nil,
			"publish_status":          OutboxPublishStatusPending,
			"next_attempt_at":         nil,
			"processing_status":       OutboxProcessStatusPending,
			"next_process_attempt_at": &now,
			"last_process_error":      nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	return GetOutboxStatus(ctx, referenceType, referenceId)
}
