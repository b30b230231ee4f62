package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Transaction struct {
	ID          int               `gorm:"primary_key" json:"id"`
	CompanyId   string            `gorm:"index;not null;index:idx_txn_company_date,priority:1;index:idx_txn_company_status,priority:1" json:"company_id"`
	Type        TransactionType   `gorm:"type:enum('Payment', 'Receipt', 'Journal', 'Transfer');default:'Journal';index;size:10;not null" json:"type" binding:"required"`
	Number      string            `gorm:"size:255;index;not null" json:"number"`
	SequenceNo  int64             `gorm:"not null;default:0;index" json:"sequence_no"`
	Date        time.Time         `gorm:"not null;index;index:idx_txn_company_date,priority:2" json:"date" binding:"required"`
	Description string            `gorm:"type:text" json:"description"`
	Reference   string            `gorm:"size:255" json:"reference"`
	ContactId   int               `gorm:"index" json:"contact_id"`
	Status      TransactionStatus `gorm:"type:enum('Draft', 'Posted', 'Reversed');default:'Draft';size:10;not null;index:idx_txn_company_status,priority:2" json:"status"`
	PostedAt    *time.Time        `gorm:"index" json:"posted_at"`
	PostedBy    string            `gorm:"size:100" json:"posted_by"`
	// Ledger immutability & reversals:
	// - Posted transactions are never deleted; corrections insert a reversal transaction.
	// - For a posted transaction there is at most one reversal, linked both ways.
	IsReversal              bool              `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesTransactionId   *int              `gorm:"index" json:"reverses_transaction_id"`
	ReversedByTransactionId *int              `gorm:"index" json:"reversed_by_transaction_id"`
	ReversalReason          *string           `gorm:"type:text" json:"reversal_reason"`
	ReversedAt              *time.Time        `gorm:"index" json:"reversed_at"`
	Lines                   []TransactionLine `gorm:"foreignKey:TransactionId" json:"lines"`
	CreatedAt               time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type TransactionLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CompanyId     string          `gorm:"index;index:idx_line_company_account,priority:1" json:"company_id"`
	TransactionId int             `gorm:"index;not null" json:"transaction_id" binding:"required"`
	AccountId     int             `gorm:"index;not null;index:idx_line_company_account,priority:2" json:"account_id" binding:"required"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Direction     LineDirection   `gorm:"type:enum('Debit', 'Credit');size:10;not null" json:"direction"`
	TaxCode       string          `gorm:"size:20" json:"tax_code"`
	Memo          string          `gorm:"size:255" json:"memo"`
	Position      int             `gorm:"not null;default:0" json:"position"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTransaction struct {
	Type        TransactionType      `json:"type" binding:"required"`
	Date        time.Time            `json:"date" binding:"required"`
	Description string               `json:"description"`
	Reference   string               `json:"reference"`
	ContactId   int                  `json:"contact_id"`
	Lines       []NewTransactionLine `json:"lines"`
}

type NewTransactionLine struct {
	ID        int             `json:"id"`
	AccountId int             `json:"account_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Direction LineDirection   `json:"direction"`
	TaxCode   string          `json:"tax_code"`
	Memo      string          `json:"memo"`
	Position  int             `json:"position"`
}

type TransactionsConnection struct {
	Edges    []*TransactionsEdge `json:"edges"`
	PageInfo *PageInfo           `json:"pageInfo"`
}

type TransactionsEdge struct {
	Cursor string       `json:"cursor"`
	Node   *Transaction `json:"node"`
}

func (t Transaction) CheckPeriodLock(ctx context.Context) error {
	return validatePeriodLock(ctx, t.Date, t.CompanyId, AccountantPeriodLock)
}

func (t Transaction) GetCursor() string {
	return t.CreatedAt.String()
}

// DebitTotal sums the debit legs of the loaded lines.
func (t *Transaction) DebitTotal() decimal.Decimal {
	total := decimal.NewFromInt(0)
	for _, line := range t.Lines {
		if line.Direction == LineDirectionDebit {
			total = total.Add(line.Amount)
		}
	}
	return total
}

// CreditTotal sums the credit legs of the loaded lines.
func (t *Transaction) CreditTotal() decimal.Decimal {
	total := decimal.NewFromInt(0)
	for _, line := range t.Lines {
		if line.Direction == LineDirectionCredit {
			total = total.Add(line.Amount)
		}
	}
	return total
}

// BankSideDirection is the direction money moves through the bank account
// for this transaction type: receipts debit the bank, payments credit it.
func (t *Transaction) BankSideDirection() LineDirection {
	if t.Type == TransactionTypePayment {
		return LineDirectionCredit
	}
	return LineDirectionDebit
}

func (lt TransactionLine) fillable() map[string]interface{} {
	return map[string]interface{}{
		"AccountId": lt.AccountId,
		"Amount":    lt.Amount,
		"Direction": lt.Direction,
		"TaxCode":   lt.TaxCode,
		"Memo":      lt.Memo,
		"Position":  lt.Position,
	}
}

func upsertTransactionLines(ctx context.Context, tx *gorm.DB, input []TransactionLine, transactionId int) error {
	return ReplaceAssociation(ctx, tx, input, "transaction_id = ?", transactionId)
}

// Ledger immutability guardrails:
// - Draft headers and lines are freely editable.
// - Once posted, only the reversal linkage columns may change on the header;
//   lines are frozen entirely and the row can never be deleted.

func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil {
		return nil
	}
	if t.Status == TransactionStatusDraft || t.Status == "" {
		return nil
	}
	allowed := map[string]bool{
		"Status":                  true,
		"ReversedByTransactionId": true,
		"ReversalReason":          true,
		"ReversedAt":              true,
		"UpdatedAt":               true,
	}
	for _, f := range tx.Statement.Schema.Fields {
		if tx.Statement.Changed(f.Name) && !allowed[f.Name] {
			return errors.New("immutable ledger: only reversal columns may be updated once posted")
		}
	}
	return nil
}

func (t *Transaction) BeforeDelete(tx *gorm.DB) error {
	if t.Status != "" && t.Status != TransactionStatusDraft {
		return errors.New("immutable ledger: posted transactions cannot be deleted")
	}
	return nil
}

func (lt *TransactionLine) BeforeUpdate(tx *gorm.DB) error {
	return lt.guardPostedParent(tx, "updated")
}

func (lt *TransactionLine) BeforeDelete(tx *gorm.DB) error {
	return lt.guardPostedParent(tx, "deleted")
}

func (lt *TransactionLine) guardPostedParent(tx *gorm.DB, action string) error {
	if lt.TransactionId == 0 {
		return nil
	}
	var status TransactionStatus
	if err := tx.Model(&Transaction{}).Where("id = ?", lt.TransactionId).
		Select("status").Scan(&status).Error; err != nil {
		return err
	}
	if status != "" && status != TransactionStatusDraft {
		return errors.New("immutable ledger: transaction_lines cannot be " + action + " once posted")
	}
	return nil
}

// validate input for both create & update. (id = 0 for create)

func (input *NewTransaction) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Transaction](ctx, companyId, id); err != nil {
			return err
		}
	}

	// exists contact
	if input.ContactId > 0 {
		if err := utils.ValidateResourceId[Contact](ctx, companyId, input.ContactId); err != nil {
			return errors.New("contact not found")
		}
	}

	for _, line := range input.Lines {
		if err := utils.ValidateResourceId[Account](ctx, companyId, line.AccountId); err != nil {
			return errors.New("account not found")
		}
	}

	// validate period lock
	if err := validatePeriodLock(ctx, input.Date, companyId, AccountantPeriodLock); err != nil {
		return err
	}
	return nil
}

func receiveTransactionLines(input *NewTransaction, companyId string, transactionId int) ([]TransactionLine, error) {
	lines := make([]TransactionLine, 0)
	for i, l := range input.Lines {
		if !l.Amount.IsPositive() {
			return lines, &InvalidArgumentError{Field: "amount", Reason: "line amount must be positive"}
		}
		if l.Direction != LineDirectionDebit && l.Direction != LineDirectionCredit {
			return lines, &InvalidArgumentError{Field: "direction", Reason: "must be Debit or Credit"}
		}
		position := l.Position
		if position == 0 {
			position = i + 1
		}
		lines = append(lines, TransactionLine{
			ID:            l.ID,
			CompanyId:     companyId,
			TransactionId: transactionId,
			AccountId:     l.AccountId,
			Amount:        l.Amount,
			Direction:     l.Direction,
			TaxCode:       l.TaxCode,
			Memo:          l.Memo,
			Position:      position,
		})
	}
	return lines, nil
}

func numberModuleForType(t TransactionType) string {
	switch t {
	case TransactionTypeReceipt:
		return NumberModuleReceipt
	case TransactionTypePayment:
		return NumberModulePayment
	case TransactionTypeTransfer:
		return NumberModuleTransfer
	default:
		return NumberModuleJournal
	}
}

// NextTransactionNumber draws the next sequence number and renders the
// document number with the company's prefix for the type. Sequence draws are
// not transactional; a rolled-back caller leaves a gap, never a duplicate.
func NextTransactionNumber(ctx context.Context, companyId string, transactionType TransactionType) (int64, string, error) {
	seqNo, err := utils.GetSequence[Transaction](ctx, companyId)
	if err != nil {
		return 0, "", err
	}
	prefix, err := getTransactionPrefix(ctx, companyId, numberModuleForType(transactionType))
	if err != nil {
		return 0, "", err
	}
	return seqNo, prefix + fmt.Sprint(seqNo), nil
}

func CreateTransaction(ctx context.Context, input *NewTransaction) (*Transaction, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}
	lines, err := receiveTransactionLines(input, companyId, 0)
	if err != nil {
		return nil, err
	}

	transaction := Transaction{
		CompanyId:   companyId,
		Type:        input.Type,
		Date:        input.Date,
		Description: input.Description,
		Reference:   input.Reference,
		ContactId:   input.ContactId,
		Status:      TransactionStatusDraft,
		Lines:       lines,
	}

	seqNo, number, err := NextTransactionNumber(ctx, companyId, input.Type)
	if err != nil {
		return nil, err
	}
	transaction.SequenceNo = seqNo
	transaction.Number = number

	db := config.GetDB()
	// db action
	err = db.WithContext(ctx).Create(&transaction).Error
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func UpdateTransaction(ctx context.Context, id int, input *NewTransaction) (*Transaction, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	transaction, err := utils.FetchModelForChange[Transaction](ctx, companyId, id, "Lines")
	if err != nil {
		return nil, err
	}
	if transaction.Status != TransactionStatusDraft {
		return nil, &InvalidStateError{Entity: "transaction", Id: id, Status: string(transaction.Status), Operation: "updated"}
	}

	lines, err := receiveTransactionLines(input, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	// db action
	tx := db.Begin()
	err = tx.WithContext(ctx).Model(&transaction).Updates(map[string]interface{}{
		"Type":        input.Type,
		"Date":        input.Date,
		"Description": input.Description,
		"Reference":   input.Reference,
		"ContactId":   input.ContactId,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := upsertTransactionLines(ctx, tx, lines, id); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	transaction.Lines = lines
	return transaction, nil
}

// DeleteTransaction removes a draft. Posted and reversed transactions are
// permanent; the BeforeDelete hook backstops this rule at the GORM layer.
func DeleteTransaction(ctx context.Context, id int) (*Transaction, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	transaction, err := utils.FetchModelForChange[Transaction](ctx, companyId, id, "Lines")
	if err != nil {
		return nil, err
	}
	if transaction.Status != TransactionStatusDraft {
		return nil, &InvalidStateError{Entity: "transaction", Id: id, Status: string(transaction.Status), Operation: "deleted"}
	}

	// db action
	tx := db.Begin()
	// delete associated lines first
	if err := tx.WithContext(ctx).Model(&transaction).Association("Lines").
		Unscoped().Clear(); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&transaction).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return transaction, nil
}

func GetTransaction(ctx context.Context, id int) (*Transaction, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	var result Transaction
	err := db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("company_id = ?", companyId).
		First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

func GetTransactionByNumber(ctx context.Context, number string) (*Transaction, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	var result Transaction
	err := db.WithContext(ctx).Preload("Lines").
		Where("company_id = ?", companyId).
		Where("number = ?", number).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

func PaginateTransactions(ctx context.Context, limit *int, after *string,
	number *string, transactionType *TransactionType, status *TransactionStatus,
	fromDate *MyDateString, toDate *MyDateString, contactId *int) (*TransactionsConnection, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	company, err := GetCompanyById(ctx, companyId)
	if err != nil {
		return nil, err
	}
	if err := fromDate.StartOfDayUTCTime(company.Timezone); err != nil {
		return nil, err
	}
	if err := toDate.EndOfDayUTCTime(company.Timezone); err != nil {
		return nil, err
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Lines").Where("company_id = ?", companyId)
	if number != nil && *number != "" {
		dbCtx.Where("number LIKE ?", "%"+*number+"%")
	}
	if transactionType != nil {
		dbCtx.Where("type = ?", *transactionType)
	}
	if status != nil {
		dbCtx.Where("status = ?", *status)
	}
	if fromDate != nil && toDate != nil {
		dbCtx.Where("date BETWEEN ? AND ?", time.Time(*fromDate), time.Time(*toDate))
	}
	if contactId != nil && *contactId > 0 {
		dbCtx.Where("contact_id = ?", *contactId)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[Transaction](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	var connection TransactionsConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		transactionEdge := TransactionsEdge{Cursor: edge.Cursor, Node: edge.Node}
		connection.Edges = append(connection.Edges, &transactionEdge)
	}

	return &connection, nil
}
