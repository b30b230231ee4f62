package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"bitbucket.org/quartzbooks/ledger_backend/workflow"
	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var (
	companyMutexMap = make(map[string]*sync.Mutex)
	globalMutex     = &sync.Mutex{}
)

// RunLedgerWorkflow subscribes to the ledger event topic and applies each
// event to the read-side projections. Events for one company are processed
// one at a time; Nack on failure lets pubsub redeliver.
func RunLedgerWorkflow() error {
	logger := config.GetLogger()
	ctx := context.Background()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	// Concurrent deliveries; the per-company mutex below serializes within a tenant.
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	callback := func(ctx context.Context, msg *pubsub.Message) {
		m := config.PubSubMessage{}
		err := json.Unmarshal(msg.Data, &m)
		if err != nil {
			config.LogError(logger, "ledgerWorkflow.go", "RunLedgerWorkflow", "Unmarshaling pubsub message", msg.Data, err)
			// Malformed payloads never become valid; drop them.
			msg.Ack()
			return
		}

		// Get or create the mutex for the current CompanyId
		globalMutex.Lock()
		mutex, exists := companyMutexMap[m.CompanyId]
		if !exists {
			mutex = &sync.Mutex{}
			companyMutexMap[m.CompanyId] = mutex
		}
		globalMutex.Unlock()

		mutex.Lock()
		defer mutex.Unlock()

		ctx = utils.SetCompanyIdInContext(ctx, m.CompanyId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, m.CorrelationId)
		if err := ProcessMessage(ctx, logger, m); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "LedgerWorkflow",
				"company_id":     m.CompanyId,
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     msg.ID,
			}).Error("pubsub processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		err := sub.Receive(ctx, callback)

		if err != nil {
			config.LogError(logger, "ledgerWorkflow.go", "RunLedgerWorkflow", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}

// ProcessMessage runs one ledger event through the posting gate, the
// idempotency table and the projection workflows, all inside one database
// transaction. The pubsub subscriber and the direct outbox processor both
// funnel through here, so they share idempotency keys.
func ProcessMessage(ctx context.Context, logger *logrus.Logger, m config.PubSubMessage) error {
	ctx, span := tracer.Start(ctx, "outbox.process", trace.WithAttributes(
		attribute.String("reference_type", m.ReferenceType),
		attribute.Int("reference_id", m.ReferenceId),
	))
	defer span.End()

	db := config.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		// Strict per-company ordering across instances.
		if err := workflow.AcquireCompanyPostingLock(tx.WithContext(ctx), m.CompanyId); err != nil {
			return err
		}
		defer workflow.ReleaseCompanyPostingLock(tx.WithContext(ctx), m.CompanyId)

		// Worker-side posting gate: period locks hold even when API validation
		// was bypassed. Blocked rows stay unprocessed (is_processed = 0) so an
		// outbox replay can revive them once the period reopens.
		if err := workflow.EnforcePostingGate(ctx, m); err != nil {
			gateMsg := err.Error()
			_ = tx.WithContext(ctx).Model(&models.PubSubMessageRecord{}).
				Where("id = ?", m.ID).
				Updates(map[string]interface{}{
					"processing_status":  models.OutboxProcessStatusDead,
					"last_process_error": &gateMsg,
				}).Error

			if logger != nil {
				logger.WithFields(logrus.Fields{
					"field":          "PostingGate",
					"company_id":     m.CompanyId,
					"reference_type": m.ReferenceType,
					"reference_id":   m.ReferenceId,
					"message_id":     m.ID,
				}).Warn("posting gate blocked message: " + err.Error())
			}
			// Ack; redelivery cannot succeed until the period lock moves.
			return nil
		}

		handlerName := m.ReferenceType
		messageId := strconv.Itoa(m.ID)

		skip, err := workflow.BeginIdempotency(tx.WithContext(ctx), m.CompanyId, handlerName, messageId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		if err := ProcessWorkflow(tx.WithContext(ctx), logger, m); err != nil {
			_ = workflow.MarkIdempotencyFailed(tx.WithContext(ctx), m.CompanyId, handlerName, messageId, err)
			return err
		}
		return workflow.MarkIdempotencySucceeded(tx.WithContext(ctx), m.CompanyId, handlerName, messageId)
	})
}

// ProcessWorkflow routes one event to its projection handler.
func ProcessWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	switch msg.ReferenceType {
	case string(models.LedgerReferenceTypeTransaction):
		return workflow.ProcessTransactionWorkflow(tx, logger, msg)
	}
	// Allocation, document and feed events carry no projection work; close
	// them out so the outbox drains.
	return workflow.MarkLedgerEventProcessed(tx, msg)
}
