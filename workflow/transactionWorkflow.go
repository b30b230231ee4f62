package workflow

import (
	"encoding/json"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessTransactionWorkflow maintains the account_daily_balances projection
// from transaction events. Create and update both recompute the day buckets
// the event's transaction touches; the recompute reads transaction_lines, so
// replaying a message lands on the same rows.
func ProcessTransactionWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	company, err := models.GetCompanyById2(tx, msg.CompanyId)
	if err != nil {
		return err
	}

	switch msg.Action {
	case "C", "U":
		var transaction models.Transaction
		if err := json.Unmarshal(msg.NewObj, &transaction); err != nil {
			return err
		}

		accountIds := distinctLineAccountIds(transaction.Lines)
		err = RefreshDailyBalances(tx, logger, msg.CompanyId, company.Timezone, accountIds, transaction.Date)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"company_id":     msg.CompanyId,
				"reference_id":   msg.ReferenceId,
				"correlation_id": msg.CorrelationId,
			}).WithError(err).Error("daily balance refresh failed")
			return err
		}
	}

	return markOutboxRecordProcessed(tx, msg.ID)
}

func distinctLineAccountIds(lines []models.TransactionLine) []int {
	seen := make(map[int]bool, len(lines))
	ids := make([]int, 0, len(lines))
	for _, line := range lines {
		if seen[line.AccountId] {
			continue
		}
		seen[line.AccountId] = true
		ids = append(ids, line.AccountId)
	}
	return ids
}

// MarkLedgerEventProcessed closes out events that carry no projection work.
func MarkLedgerEventProcessed(tx *gorm.DB, msg config.PubSubMessage) error {
	return markOutboxRecordProcessed(tx, msg.ID)
}

// markOutboxRecordProcessed closes out an outbox row once its workflow has run.
func markOutboxRecordProcessed(tx *gorm.DB, recordId int) error {
	now := time.Now().UTC()
	return tx.Model(&models.PubSubMessageRecord{}).
		Where("id = ?", recordId).
		Updates(map[string]interface{}{
			"is_processed":      true,
			"processing_status": models.OutboxProcessStatusSucceeded,
			"processed_at":      &now,
		}).Error
}
