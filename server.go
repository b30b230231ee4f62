package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/middlewares"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"bitbucket.org/quartzbooks/ledger_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("quartzbooks-ledger")

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// PubSubMessage is the Pub/Sub push delivery envelope.
type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

func ledgerPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg PubSubMessage
		logger := config.GetLogger()

		// Redis lock is a best-effort optimization.
		// Reliability must not depend on Redis: we also serialize posting via MySQL advisory locks in ProcessMessage().
		redisLock := config.GetRedisLock()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "ledgerPubSubHandler", "io.ReadAll", nil, err)
			// Malformed request body: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(logger, "server.go", "ledgerPubSubHandler", "Unmarshal body", body, err)
			// Malformed request: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		var m config.PubSubMessage
		if err := json.Unmarshal(msg.Message.Data, &m); err != nil {
			config.LogError(logger, "server.go", "ledgerPubSubHandler", "Unmarshal pubsub message", msg.Message.Data, err)
			// Malformed Pub/Sub payload: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		// Basic validation to avoid retry loops on poisoned messages.
		if m.CompanyId == "" || m.ReferenceType == "" {
			config.LogError(logger, "server.go", "ledgerPubSubHandler", "Invalid pubsub message (missing required fields)", m, fmt.Errorf("company_id/reference_type required"))
			c.Status(http.StatusNoContent)
			return
		}

		// Correlation ID propagation: prefer payload correlation_id; fall back to Pub/Sub message ID.
		correlationID := m.CorrelationId
		if correlationID == "" {
			correlationID = msg.Message.ID
		}

		// Best-effort: try to obtain a lock for the companyID to avoid long in-request blocking.
		// If Redis is unavailable / lock cannot be obtained, continue anyway; ProcessMessage() will serialize safely.
		lock := obtainCompanyLock(c.Request.Context(), logger, redisLock, m.CompanyId, msg.Message.ID)
		defer releaseCompanyLock(c.Request.Context(), logger, lock, m.CompanyId, msg.Message.ID)

		// Process the message
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), m.CompanyId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, correlationID)
		if err := ProcessMessage(ctx, logger, m); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "ledgerPubSubHandler",
				"company_id":     m.CompanyId,
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     msg.Message.ID,
				"correlation_id": correlationID,
			}).Error("pubsub processing failed: " + err.Error())
			// Non-2xx tells Pub/Sub to retry (and potentially route to DLQ).
			c.Status(http.StatusInternalServerError)
			return
		}

		// Success: ack.
		c.Status(http.StatusNoContent)
	}
}

// bankFeedPubSubHandler ingests pushed bank statements. The payload is a
// NewBankFeedImport plus the target company id; the Pub/Sub message id is the
// idempotency key, so redeliveries return the already-created batch.
func bankFeedPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg PubSubMessage
		logger := config.GetLogger()
		redisLock := config.GetRedisLock()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "bankFeedPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(logger, "server.go", "bankFeedPubSubHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var payload struct {
			CompanyId string `json:"company_id"`
			workflow.NewBankFeedImport
		}
		if err := json.Unmarshal(msg.Message.Data, &payload); err != nil {
			config.LogError(logger, "server.go", "bankFeedPubSubHandler", "Unmarshal feed payload", msg.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}
		if payload.CompanyId == "" || payload.BankAccountId <= 0 {
			config.LogError(logger, "server.go", "bankFeedPubSubHandler", "Invalid feed payload (missing required fields)", payload, fmt.Errorf("company_id/bank_account_id required"))
			c.Status(http.StatusNoContent)
			return
		}

		lock := obtainCompanyLock(c.Request.Context(), logger, redisLock, payload.CompanyId, msg.Message.ID)
		defer releaseCompanyLock(c.Request.Context(), logger, lock, payload.CompanyId, msg.Message.ID)

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), payload.CompanyId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, msg.Message.ID)
		batch, err := workflow.HandleBankFeedPushMessage(ctx, msg.Message.ID, &payload.NewBankFeedImport)
		if err != nil {
			status := models.StatusForError(err)
			if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
				// Permanent rejection: retrying an invalid statement never helps.
				config.LogError(logger, "server.go", "bankFeedPubSubHandler", "Rejected feed import", payload, err)
				c.Status(http.StatusNoContent)
				return
			}
			logger.WithFields(logrus.Fields{
				"field":           "bankFeedPubSubHandler",
				"company_id":      payload.CompanyId,
				"bank_account_id": payload.BankAccountId,
				"message_id":      msg.Message.ID,
			}).Error("bank feed ingestion failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}

		logger.WithFields(logrus.Fields{
			"field":           "bankFeedPubSubHandler",
			"company_id":      payload.CompanyId,
			"bank_account_id": payload.BankAccountId,
			"batch_id":        batch.ID,
			"message_id":      msg.Message.ID,
		}).Info("bank feed batch ingested")
		c.Status(http.StatusNoContent)
	}
}

func obtainCompanyLock(ctx context.Context, logger *logrus.Logger, redisLock *redislock.Client, companyId string, messageId string) *redislock.Lock {
	if redisLock == nil {
		logger.WithFields(logrus.Fields{
			"field":      "companyLock",
			"company_id": companyId,
			"message_id": messageId,
		}).Warn("redis lock not ready; proceeding without redis lock")
		return nil
	}
	lock, err := redisLock.Obtain(ctx, fmt.Sprintf("lock:%s", companyId), 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		logger.WithFields(logrus.Fields{
			"field":      "companyLock",
			"company_id": companyId,
			"message_id": messageId,
		}).Warn("could not obtain redis lock; proceeding without redis lock")
		return nil
	} else if err != nil {
		logger.WithFields(logrus.Fields{
			"field":      "companyLock",
			"company_id": companyId,
			"message_id": messageId,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return nil
	}
	return lock
}

func releaseCompanyLock(ctx context.Context, logger *logrus.Logger, lock *redislock.Lock, companyId string, messageId string) {
	if lock == nil {
		return
	}
	if releaseErr := lock.Release(ctx); releaseErr != nil {
		logger.WithFields(logrus.Fields{
			"field":      "companyLock",
			"company_id": companyId,
			"message_id": messageId,
		}).Warn("failed to release redis lock: " + releaseErr.Error())
	}
}

// authorizeInternalCompany ensures the session user is allowed to act on the provided company_id.
// - Admin users may act on any company.
// - Non-admin users may only act on their own company.
func authorizeInternalCompany(ctx context.Context, companyId string) error {
	if companyId == "" {
		return errors.New("company_id is required")
	}
	user, err := getSessionUser(ctx)
	if err != nil {
		return errors.New("unauthorized")
	}
	if user.Role == models.UserRoleAdmin {
		return nil
	}
	if user.CompanyId != companyId {
		return errors.New("unauthorized")
	}
	return nil
}

func authorizeAdminOnly(ctx context.Context) error {
	user, err := getSessionUser(ctx)
	if err != nil {
		return errors.New("unauthorized")
	}
	if user.Role != models.UserRoleAdmin {
		return errors.New("unauthorized")
	}
	return nil
}

// requireCompany resolves the session user and stamps company id, user id and
// display name into the request context. Everything under /api (except
// login/logout and the admin provisioning surface) runs behind it; the models
// layer and the tenant guard read the company id it sets.
func requireCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := getSessionUser(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if user.CompanyId == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user is not attached to a company"})
			return
		}
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), user.CompanyId)
		ctx = utils.SetUserIdInContext(ctx, user.ID)
		ctx = utils.SetUserNameInContext(ctx, user.Name)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type outboxReplayRequest struct {
	CompanyId     string `json:"company_id"`
	ReferenceType string `json:"reference_type"`
	ReferenceId   int    `json:"reference_id"`
}

// outboxReplayHandler requeues the latest outbox row of a document for both
// publishing and processing. Used to revive DEAD rows after the cause (bad
// deploy, locked period) is fixed.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Require auth token (SessionMiddleware puts username in context).
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.CompanyId == "" || req.ReferenceType == "" || req.ReferenceId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "company_id, reference_type and reference_id are required"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), req.CompanyId)
		status, err := models.ReprocessOutbox(ctx, models.LedgerReferenceType(req.ReferenceType), req.ReferenceId)
		if err != nil {
			c.JSON(models.StatusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

type integrityChecksRequest struct {
	CompanyId string `json:"company_id"`
}

// integrityChecksHandler runs the full reconciliation sweep for one company
// and returns the correlation id under which findings were recorded.
func integrityChecksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var req integrityChecksRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.CompanyId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "company_id is required"})
			return
		}
		if err := authorizeInternalCompany(c.Request.Context(), req.CompanyId); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), req.CompanyId)
		correlationId, err := workflow.RunIntegrityChecks(ctx, req.CompanyId)
		if err != nil {
			c.JSON(models.StatusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"company_id":     req.CompanyId,
			"correlation_id": correlationId,
		})
	}
}

type rebuildDailyBalancesRequest struct {
	CompanyId string `json:"company_id"`
}

// rebuildDailyBalancesHandler drops and recomputes the per-account daily
// balance projection for one company from the posted transaction lines.
func rebuildDailyBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var req rebuildDailyBalancesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.CompanyId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "company_id is required"})
			return
		}
		if err := authorizeInternalCompany(c.Request.Context(), req.CompanyId); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		logger := config.GetLogger()
		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), req.CompanyId)
		var accounts int
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			company, err := models.GetCompanyById2(tx, req.CompanyId)
			if err != nil {
				return err
			}
			n, err := workflow.RebuildDailyBalances(tx, logger, req.CompanyId, company.Timezone)
			if err != nil {
				return err
			}
			accounts = n
			return nil
		})
		if err != nil {
			c.JSON(models.StatusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"company_id": req.CompanyId,
			"accounts":   accounts,
		})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api")

	api.POST("/login", loginHandler())
	api.POST("/logout", logoutHandler())

	// Provisioning surface; each handler enforces admin (or self) itself.
	api.POST("/companies", createCompanyHandler())
	api.GET("/companies", listCompaniesHandler())
	api.POST("/companies/:id/active", toggleCompanyActiveHandler())
	api.GET("/users", listUsersHandler())
	api.POST("/users", createUserHandler())
	api.GET("/users/:id", getUserHandler())
	api.PUT("/users/:id", updateUserHandler())

	// Everything below is company-scoped.
	authed := api.Group("")
	authed.Use(requireCompany())

	authed.GET("/company", getCompanyHandler())
	authed.PUT("/company", updateCompanyHandler())
	authed.PUT("/company/period-locking", updatePeriodLockingHandler())
	authed.GET("/company/period-locking/history", getPeriodLockingHistoryHandler())

	authed.POST("/accounts", createAccountHandler())
	authed.GET("/accounts", listAccountsHandler())
	authed.GET("/accounts/:id", getAccountHandler())
	authed.PUT("/accounts/:id", updateAccountHandler())
	authed.DELETE("/accounts/:id", deleteAccountHandler())
	authed.POST("/accounts/:id/active", toggleAccountActiveHandler())

	authed.POST("/contacts", createContactHandler())
	authed.GET("/contacts", listContactsHandler())
	authed.GET("/contacts/:id", getContactHandler())
	authed.PUT("/contacts/:id", updateContactHandler())
	authed.DELETE("/contacts/:id", deleteContactHandler())
	authed.POST("/contacts/:id/active", toggleContactActiveHandler())

	authed.POST("/transactions", createTransactionHandler())
	authed.GET("/transactions", listTransactionsHandler())
	authed.GET("/transactions/:id", getTransactionHandler())
	authed.PUT("/transactions/:id", updateTransactionHandler())
	authed.DELETE("/transactions/:id", deleteTransactionHandler())
	authed.POST("/transactions/:id/post", postTransactionHandler())
	authed.POST("/transactions/:id/reverse", reverseTransactionHandler())
	authed.GET("/transactions/:id/unallocated", unallocatedAmountHandler())
	authed.GET("/transactions/:id/allocation-suggestions", allocationSuggestionsHandler())

	authed.POST("/receivable-allocations", createReceivableAllocationHandler())
	authed.DELETE("/receivable-allocations/:id", removeReceivableAllocationHandler())
	authed.POST("/payable-allocations", createPayableAllocationHandler())
	authed.DELETE("/payable-allocations/:id", removePayableAllocationHandler())

	authed.POST("/invoices", createInvoiceHandler())
	authed.GET("/invoices", listInvoicesHandler())
	authed.GET("/invoices/:id", getInvoiceHandler())
	authed.PUT("/invoices/:id", updateInvoiceHandler())
	authed.DELETE("/invoices/:id", deleteInvoiceHandler())
	authed.POST("/invoices/:id/void", voidInvoiceHandler())
	authed.GET("/open-invoices", openInvoicesHandler())

	authed.POST("/bills", createBillHandler())
	authed.GET("/bills", listBillsHandler())
	authed.GET("/bills/:id", getBillHandler())
	authed.PUT("/bills/:id", updateBillHandler())
	authed.DELETE("/bills/:id", deleteBillHandler())
	authed.POST("/bills/:id/void", voidBillHandler())
	authed.GET("/open-bills", openBillsHandler())

	authed.POST("/allocation-rules", createAllocationRuleHandler())
	authed.GET("/allocation-rules", listAllocationRulesHandler())
	authed.GET("/allocation-rules/:id", getAllocationRuleHandler())
	authed.DELETE("/allocation-rules/:id", deleteAllocationRuleHandler())
	authed.POST("/allocation-rules/:id/active", toggleAllocationRuleActiveHandler())
	authed.GET("/rule-match", ruleMatchHandler())

	authed.POST("/bankfeed/imports", importBankFeedHandler())
	authed.GET("/bankfeed/batches", listBankFeedBatchesHandler())
	authed.GET("/bankfeed/batches/:id", getBankFeedBatchHandler())
	authed.GET("/bankfeed/batches/:id/statement-url", bankFeedStatementURLHandler())
	authed.GET("/bankfeed/items", listBankFeedItemsHandler())
	authed.GET("/bankfeed/unmatched-items", unmatchedBankFeedItemsHandler())
	authed.GET("/bankfeed/items/:id", getBankFeedItemHandler())
	authed.GET("/bankfeed/items/:id/candidates", matchCandidatesHandler())
	authed.POST("/bankfeed/items/:id/match", matchBankFeedItemHandler())
	authed.POST("/bankfeed/items/:id/unmatch", unmatchBankFeedItemHandler())
	authed.POST("/bankfeed/items/:id/ignore", ignoreBankFeedItemHandler())
	authed.POST("/bankfeed/items/:id/unignore", unignoreBankFeedItemHandler())
	authed.POST("/bankfeed/items/:id/split", splitBankFeedItemHandler())
	authed.POST("/bankfeed/items/:id/create-transaction", createTransactionForItemHandler())
	authed.GET("/reconciliation-matches", listReconciliationMatchesHandler())

	authed.GET("/reports/trial-balance", trialBalanceHandler())
	authed.GET("/reports/trial-balance-export", trialBalanceExportHandler())
	authed.GET("/reports/account-activity", accountActivityHandler())
	authed.GET("/reports/reconciliation-summary", reconciliationSummaryHandler())
	authed.GET("/reports/reconciliation-summary-export", reconciliationSummaryExportHandler())

	authed.GET("/audit-logs", listAuditLogsHandler())
	authed.GET("/outbox/status", outboxStatusHandler())
	authed.GET("/integrity-findings", listIntegrityFindingsHandler())

	authed.POST("/uploads/sign", signUploadHandler())
	authed.POST("/uploads/complete", completeUploadHandler())
	authed.GET("/attachments", listAttachmentsHandler())
	authed.DELETE("/attachments/:id", deleteAttachmentHandler())
	authed.GET("/attachments/:id/download-url", attachmentDownloadURLHandler())
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(middlewares.LoaderMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	// Pub/Sub push endpoints.
	r.POST("/pubsub", ledgerPubSubHandler())
	r.POST("/pubsub/bankfeed", bankFeedPubSubHandler())
	// Ops tooling (admin / same-company only).
	r.POST("/internal/ops/outbox/replay", outboxReplayHandler())
	r.POST("/internal/ops/integrity-checks", integrityChecksHandler())
	r.POST("/internal/ops/rebuild-daily-balances", rebuildDailyBalancesHandler())

	registerAPIRoutes(r)
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Background workers:
	// - the outbox dispatcher publishes committed events to Pub/Sub,
	// - the direct processor drains unprocessed rows straight from the DB,
	// - the pull worker is an opt-in alternative to the push endpoint.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go workflow.NewOutboxDispatcher(db, logger).Run(workerCtx)
	if shouldRunDirectOutboxProcessor() {
		go NewOutboxDirectProcessor(db, logger).Run(workerCtx)
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("PUBSUB_PULL_ENABLED")), "true") {
		if err := RunLedgerWorkflow(); err != nil {
			logger.WithFields(logrus.Fields{"field": "pubsub"}).Warn("pull worker failed to start: " + err.Error())
		}
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("ledger API listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelWorkers()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// abortWithError maps an engine error to its HTTP status and writes the
// standard error body.
func abortWithError(c *gin.Context, err error) {
	c.JSON(models.StatusForError(err), gin.H{"error": err.Error()})
}

// pathId parses the :id path segment. Writes a 400 and returns ok=false when
// it is not a positive integer.
func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func optionalQueryString(c *gin.Context, name string) *string {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil
	}
	return &raw
}

func optionalQueryInt(c *gin.Context, name string) (*int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer"})
		return nil, false
	}
	return &n, true
}

// optionalQueryDate accepts YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS.
func optionalQueryDate(c *gin.Context, name string) (*models.MyDateString, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	layout := "2006-01-02"
	if strings.Contains(raw, "T") {
		layout = "2006-01-02T15:04:05"
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a date (YYYY-MM-DD)"})
		return nil, false
	}
	d := models.MyDateString(t)
	return &d, true
}

// paginationParams reads the limit/after cursor parameters. Limit defaults to
// 20 and is capped at 100.
func paginationParams(c *gin.Context) (*int, *string, bool) {
	limit := 20
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return nil, nil, false
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}
	var after *string
	if raw := c.Query("after"); raw != "" {
		after = &raw
	}
	return &limit, after, true
}
