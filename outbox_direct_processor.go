package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxDirectProcessor drains unhandled outbox records without Pub/Sub.
// It serves local/dev environments where Pub/Sub is not configured, and runs
// as a safety net in production: rows whose published message was lost or
// never delivered still get processed. Idempotency keys make the overlap
// with the subscriber safe.
type OutboxDirectProcessor struct {
	DB          *gorm.DB
	Logger      *logrus.Logger
	WorkerID    string
	BatchSize   int
	Interval    time.Duration
	LockTTL     time.Duration
	MaxAttempts int
}

func NewOutboxDirectProcessor(db *gorm.DB, logger *logrus.Logger) *OutboxDirectProcessor {
	return &OutboxDirectProcessor{
		DB:          db,
		Logger:      logger,
		WorkerID:    "direct-" + time.Now().Format("20060102-150405.000"),
		BatchSize:   50,
		Interval:    2 * time.Second,
		LockTTL:     30 * time.Second,
		MaxAttempts: 20,
	}
}

func shouldRunDirectOutboxProcessor() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DIRECT_PROCESSING")))
	if val == "true" {
		return true
	}
	if val == "false" {
		return false
	}
	// Default on: misconfigured Pub/Sub delivery otherwise leaves outbox rows
	// stuck and projections stale. Set OUTBOX_DIRECT_PROCESSING=false to
	// disable explicitly.
	return true
}

func (p *OutboxDirectProcessor) Run(ctx context.Context) {
	if p == nil || p.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.processOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

func (p *OutboxDirectProcessor) processOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-p.LockTTL)

	var claimed []models.PubSubMessageRecord
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("is_processed = 0").
			Where("processing_status <> ?", models.OutboxProcessStatusDead).
			Where("(next_process_attempt_at IS NULL OR next_process_attempt_at <= ?)", now).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(p.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			// Poison rows go terminal rather than looping forever.
			if p.MaxAttempts > 0 && claimed[i].ProcessAttempts >= p.MaxAttempts {
				msg := fmt.Sprintf("max process attempts exceeded (%d)", p.MaxAttempts)
				claimed[i].ProcessingStatus = models.OutboxProcessStatusDead
				if err := tx.Model(&models.PubSubMessageRecord{}).
					Where("id = ?", claimed[i].ID).
					Updates(map[string]interface{}{
						"processing_status":       models.OutboxProcessStatusDead,
						"last_process_error":      &msg,
						"next_process_attempt_at": nil,
						"locked_at":               nil,
						"locked_by":               nil,
					}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &p.WorkerID
			claimed[i].ProcessAttempts = claimed[i].ProcessAttempts + 1
			if err := tx.Model(&models.PubSubMessageRecord{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at":         claimed[i].LockedAt,
					"locked_by":         claimed[i].LockedBy,
					"processing_status": models.OutboxProcessStatusProcessing,
					"process_attempts":  gorm.Expr("process_attempts + 1"),
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, rec := range claimed {
		if rec.ProcessingStatus == models.OutboxProcessStatusDead {
			continue
		}
		msg := models.ConvertToPubSubMessage(rec)
		procCtx := utils.SetCompanyIdInContext(ctx, rec.CompanyId)
		procCtx = utils.SetUserIdInContext(procCtx, 0)
		procCtx = utils.SetUserNameInContext(procCtx, "System")
		procCtx = utils.SetCorrelationIdInContext(procCtx, rec.CorrelationId)

		if err := ProcessMessage(procCtx, p.Logger, msg); err != nil {
			p.markProcessFailed(ctx, rec, err)
			continue
		}

		// Success: the workflow already marked the row SUCCEEDED, only the
		// claim lock is left to release.
		_ = p.DB.WithContext(ctx).Model(&models.PubSubMessageRecord{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"locked_at": nil,
				"locked_by": nil,
			}).Error
	}
}

func (p *OutboxDirectProcessor) markProcessFailed(ctx context.Context, rec models.PubSubMessageRecord, err error) {
	db := p.DB.WithContext(ctx)
	now := time.Now().UTC()
	errMsg := err.Error()

	if p.MaxAttempts > 0 && rec.ProcessAttempts >= p.MaxAttempts {
		_ = db.Model(&models.PubSubMessageRecord{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"processing_status":       models.OutboxProcessStatusDead,
				"last_process_error":      &errMsg,
				"next_process_attempt_at": nil,
				"locked_at":               nil,
				"locked_by":               nil,
			}).Error

		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{
				"field":          "OutboxDirectProcessor",
				"company_id":     rec.CompanyId,
				"reference_type": rec.ReferenceType,
				"reference_id":   rec.ReferenceId,
				"record_id":      rec.ID,
				"attempt":        rec.ProcessAttempts,
			}).Error("outbox processing moved to DEAD after max attempts: " + errMsg)
		}
		return
	}

	backoff := 5 * time.Second
	for i := 1; i < rec.ProcessAttempts; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			backoff = time.Minute * 10
			break
		}
	}
	next := now.Add(backoff)
	_ = db.Model(&models.PubSubMessageRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"processing_status":       models.OutboxProcessStatusFailed,
			"last_process_error":      &errMsg,
			"next_process_attempt_at": &next,
			"locked_at":               nil,
			"locked_by":               nil,
		}).Error

	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"field":                   "OutboxDirectProcessor",
			"company_id":              rec.CompanyId,
			"reference_type":          rec.ReferenceType,
			"reference_id":            rec.ReferenceId,
			"record_id":               rec.ID,
			"attempt":                 rec.ProcessAttempts,
			"next_process_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("direct processing failed: " + errMsg)
	}
}
