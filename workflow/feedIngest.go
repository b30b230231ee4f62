package workflow

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const handlerBankFeedImport = "bankfeed_import"

// NewBankFeedImport is one statement import: normalized rows for a bank
// account, optionally carrying the raw statement file for archival.
type NewBankFeedImport struct {
	BankAccountId     int              `json:"bank_account_id" binding:"required"`
	SourceName        string           `json:"source_name"`
	Items             []NewBankFeedRow `json:"items" binding:"required"`
	StatementFileName string           `json:"statement_file_name"`
	StatementBase64   string           `json:"statement_base64"`
}

// NewBankFeedRow is one normalized statement line. Amount is signed:
// positive money in, negative money out.
type NewBankFeedRow struct {
	PostedDate  time.Time       `json:"posted_date" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
}

func (input *NewBankFeedImport) validate(ctx context.Context, companyId string) error {
	account, err := models.GetAccount(ctx, input.BankAccountId)
	if err != nil {
		return errors.New("bank account not found")
	}
	if account.IsBankAccount == nil || !*account.IsBankAccount {
		return &models.InvalidArgumentError{Field: "bank_account_id", Reason: "account is not flagged as a bank account"}
	}
	if len(input.Items) == 0 {
		return &models.InvalidArgumentError{Field: "items", Reason: "at least one statement row is required"}
	}
	for _, row := range input.Items {
		if row.Amount.IsZero() {
			return &models.InvalidArgumentError{Field: "amount", Reason: "statement amounts must be non-zero"}
		}
		if row.PostedDate.IsZero() {
			return &models.InvalidArgumentError{Field: "posted_date", Reason: "statement rows need a posted date"}
		}
	}
	return nil
}

// ImportBankFeed ingests a statement: creates the batch, inserts the rows
// that are not duplicates, runs the rule matcher once per new item and stores
// the suggestion on it. Duplicate identity is (bank account, posted date,
// amount, normalized description); duplicates are counted, not inserted.
func ImportBankFeed(ctx context.Context, input *NewBankFeedImport) (*models.BankFeedBatch, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := input.validate(ctx, companyId); err != nil {
		return nil, err
	}

	statementObject, err := storeStatementFile(ctx, companyId, input)
	if err != nil {
		return nil, err
	}

	rules, err := models.GetEnabledAllocationRules(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	// db action
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	batch, err := importBankFeedTx(ctx, tx, companyId, input, rules, statementObject)
	if err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return batch, nil
}

// HandleBankFeedPushMessage is the Pub/Sub push form of ImportBankFeed.
// The message id is recorded as an idempotency key in the import transaction,
// so a redelivered message either skips (already succeeded) or reruns cleanly
// (previous attempt rolled back). Returns (nil, nil) on a deduplicated replay.
func HandleBankFeedPushMessage(ctx context.Context, messageId string, input *NewBankFeedImport) (*models.BankFeedBatch, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if messageId == "" {
		return nil, &models.InvalidArgumentError{Field: "message_id", Reason: "push messages carry a message id"}
	}
	if err := input.validate(ctx, companyId); err != nil {
		return nil, err
	}

	statementObject, err := storeStatementFile(ctx, companyId, input)
	if err != nil {
		return nil, err
	}

	rules, err := models.GetEnabledAllocationRules(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	// db action
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	skip, err := BeginIdempotency(tx, companyId, handlerBankFeedImport, messageId)
	if err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if skip {
		_ = tx.Rollback().Error
		return nil, nil
	}

	batch, err := importBankFeedTx(ctx, tx, companyId, input, rules, statementObject)
	if err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := MarkIdempotencySucceeded(tx, companyId, handlerBankFeedImport, messageId); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return batch, nil
}

func importBankFeedTx(ctx context.Context, tx *gorm.DB, companyId string,
	input *NewBankFeedImport, rules []*models.AllocationRule, statementObject string) (*models.BankFeedBatch, error) {

	batch := models.BankFeedBatch{
		CompanyId:       companyId,
		BankAccountId:   input.BankAccountId,
		SourceName:      input.SourceName,
		StatementObject: statementObject,
		Status:          models.FeedBatchStatusCompleted,
	}
	if err := tx.Create(&batch).Error; err != nil {
		return nil, err
	}

	for _, row := range input.Items {
		normalized := models.NormalizeFeedDescription(row.Description)

		// Intra-batch duplicates dedup too: rows inserted earlier in this
		// transaction are visible to the count.
		duplicate, err := models.FindDuplicateFeedItem(ctx, tx, companyId,
			input.BankAccountId, row.PostedDate, row.Amount, normalized)
		if err != nil {
			return nil, err
		}
		if duplicate {
			batch.DuplicateCount++
			continue
		}

		item := models.BankFeedItem{
			CompanyId:             companyId,
			BankAccountId:         input.BankAccountId,
			BatchId:               batch.ID,
			PostedDate:            row.PostedDate,
			Amount:                row.Amount,
			Description:           row.Description,
			NormalizedDescription: normalized,
			Reference:             row.Reference,
			Status:                models.FeedItemStatusNew,
		}

		// Rules constrain magnitudes; the sign only encodes direction.
		if rule := FindMatchingRule(rules, row.Description, row.Amount.Abs()); rule != nil {
			item.SuggestedAccountId = &rule.TargetAccountId
			item.SuggestedTaxCode = rule.TargetTaxCode
			item.SuggestedMemo = ApplyMemoTemplate(rule.MemoTemplate, row.Description, row.Amount.Abs(), row.PostedDate)
			item.SuggestingRuleId = &rule.ID
		}

		if err := tx.Create(&item).Error; err != nil {
			return nil, err
		}
		batch.NewCount++
	}
	batch.TotalCount = len(input.Items)

	if err := tx.Model(&models.BankFeedBatch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]interface{}{
			"total_count":     batch.TotalCount,
			"new_count":       batch.NewCount,
			"duplicate_count": batch.DuplicateCount,
		}).Error; err != nil {
		return nil, err
	}

	if err := models.WriteAuditLog(tx, "IMPORT", batch.ID, "bank_feed_batches",
		nil, batch,
		fmt.Sprintf("imported %d statement rows (%d new, %d duplicate)",
			batch.TotalCount, batch.NewCount, batch.DuplicateCount)); err != nil {
		return nil, err
	}
	if err := models.PublishToLedger(ctx, tx, companyId, time.Now().UTC(), batch.ID,
		models.LedgerReferenceTypeBankFeedBatch, batch, nil,
		models.PubSubMessageActionCreate); err != nil {
		return nil, err
	}

	return &batch, nil
}

// storeStatementFile archives the raw statement to GCS when one was sent.
// Returns the object name, or "" when the import carried no file.
func storeStatementFile(ctx context.Context, companyId string, input *NewBankFeedImport) (string, error) {
	if input.StatementBase64 == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(input.StatementBase64)
	if err != nil {
		return "", &models.InvalidArgumentError{Field: "statement_base64", Reason: "invalid base64 payload"}
	}
	fileName := input.StatementFileName
	if fileName == "" {
		fileName = "statement"
	}
	objectName := fmt.Sprintf("bankfeeds/%s/%d-%s", companyId, time.Now().UnixNano(), path.Base(fileName))
	if err := utils.UploadBytesToGCS(ctx, objectName, data, "application/octet-stream"); err != nil {
		return "", err
	}
	return objectName, nil
}
