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

type Invoice struct {
	ID                     int             `gorm:"primary_key" json:"id"`
	CompanyId              string          `gorm:"index;not null;index:idx_invoice_company_status,priority:1" json:"company_id"`
	ContactId              int             `gorm:"index;not null" json:"contact_id" binding:"required"`
	Number                 string          `gorm:"size:255;not null;index" json:"number"`
	SequenceNo             int64           `gorm:"not null;default:0" json:"sequence_no"`
	IssueDate              time.Time       `gorm:"not null;index" json:"issue_date" binding:"required"`
	DueDate                *time.Time      `gorm:"index" json:"due_date"`
	PaymentTerms           PaymentTerms    `gorm:"type:enum('Net15', 'Net30', 'Net45', 'Net60', 'DueMonthEnd', 'DueNextMonthEnd', 'DueOnReceipt', 'Custom');default:'DueOnReceipt'" json:"payment_terms"`
	PaymentTermsCustomDays int             `gorm:"default:0" json:"payment_terms_custom_days"`
	Reference              string          `gorm:"size:255" json:"reference"`
	Notes                  string          `gorm:"type:text" json:"notes"`
	Total                  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	Status                 InvoiceStatus   `gorm:"type:enum('Open', 'Partially Paid', 'Paid', 'Void');default:'Open';size:20;not null;index:idx_invoice_company_status,priority:2" json:"status"`
	// Outstanding is derived (total minus allocations), never stored.
	Outstanding decimal.Decimal `gorm:"-" json:"outstanding"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInvoice struct {
	ContactId              int             `json:"contact_id" binding:"required"`
	IssueDate              time.Time       `json:"issue_date" binding:"required"`
	DueDate                *time.Time      `json:"due_date"`
	PaymentTerms           PaymentTerms    `json:"payment_terms"`
	PaymentTermsCustomDays int             `json:"payment_terms_custom_days"`
	Reference              string          `json:"reference"`
	Notes                  string          `json:"notes"`
	Total                  decimal.Decimal `json:"total"`
}

type InvoicesConnection struct {
	Edges    []*InvoicesEdge `json:"edges"`
	PageInfo *PageInfo       `json:"pageInfo"`
}

type InvoicesEdge struct {
	Cursor string   `json:"cursor"`
	Node   *Invoice `json:"node"`
}

func (i Invoice) GetCursor() string {
	return i.CreatedAt.String()
}

func (i Invoice) CheckPeriodLock(ctx context.Context) error {
	return validatePeriodLock(ctx, i.IssueDate, i.CompanyId, ReceivablePeriodLock)
}

// validate input for both create & update. (id = 0 for create)

func (input *NewInvoice) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Invoice](ctx, companyId, id); err != nil {
			return err
		}
	}
	contact, err := GetContact(ctx, input.ContactId)
	if err != nil {
		return errors.New("contact not found")
	}
	if contact.Type != ContactTypeCustomer {
		return &InvalidArgumentError{Field: "contact_id", Reason: "invoices require a customer contact"}
	}
	if !input.Total.IsPositive() {
		return &InvalidArgumentError{Field: "total", Reason: "total must be positive"}
	}
	return nil
}

func (input *NewInvoice) resolveDueDate() *time.Time {
	if input.DueDate != nil {
		return input.DueDate
	}
	terms := input.PaymentTerms
	if terms == "" {
		terms = PaymentTermsDueOnReceipt
	}
	return calculateDueDate(input.IssueDate, terms, input.PaymentTermsCustomDays)
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	invoice := Invoice{
		CompanyId:              companyId,
		ContactId:              input.ContactId,
		IssueDate:              input.IssueDate,
		DueDate:                input.resolveDueDate(),
		PaymentTerms:           input.PaymentTerms,
		PaymentTermsCustomDays: input.PaymentTermsCustomDays,
		Reference:              input.Reference,
		Notes:                  input.Notes,
		Total:                  input.Total,
		Status:                 InvoiceStatusOpen,
	}
	if invoice.PaymentTerms == "" {
		invoice.PaymentTerms = PaymentTermsDueOnReceipt
	}

	seqNo, err := utils.GetSequence[Invoice](ctx, companyId)
	if err != nil {
		return nil, err
	}
	prefix, err := getTransactionPrefix(ctx, companyId, NumberModuleInvoice)
	if err != nil {
		return nil, err
	}
	invoice.SequenceNo = seqNo
	invoice.Number = prefix + fmt.Sprint(seqNo)

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, err
	}
	invoice.Outstanding = invoice.Total
	return &invoice, nil
}

func UpdateInvoice(ctx context.Context, id int, input *NewInvoice) (*Invoice, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	invoice, err := utils.FetchModelForChange[Invoice](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != InvoiceStatusOpen {
		return nil, &InvalidStateError{Entity: "invoice", Id: id, Status: string(invoice.Status), Operation: "updated"}
	}
	allocated, err := GetInvoiceAllocatedAmount(ctx, id)
	if err != nil {
		return nil, err
	}
	if allocated.IsPositive() {
		return nil, &InvalidStateError{Entity: "invoice", Id: id, Status: string(invoice.Status), Operation: "updated while allocations exist"}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&invoice).Updates(map[string]interface{}{
		"ContactId":              input.ContactId,
		"IssueDate":              input.IssueDate,
		"DueDate":                input.resolveDueDate(),
		"PaymentTerms":           input.PaymentTerms,
		"PaymentTermsCustomDays": input.PaymentTermsCustomDays,
		"Reference":              input.Reference,
		"Notes":                  input.Notes,
		"Total":                  input.Total,
	}).Error
	if err != nil {
		return nil, err
	}
	invoice.Outstanding = invoice.Total
	return invoice, nil
}

// VoidInvoice marks an invoice void. Allocations must be removed first.
func VoidInvoice(ctx context.Context, id int) (*Invoice, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	invoice, err := utils.FetchModelForChange[Invoice](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status == InvoiceStatusVoid {
		return invoice, nil
	}
	allocated, err := GetInvoiceAllocatedAmount(ctx, id)
	if err != nil {
		return nil, err
	}
	if allocated.IsPositive() {
		return nil, &InvalidStateError{Entity: "invoice", Id: id, Status: string(invoice.Status), Operation: "voided while allocations exist"}
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(&invoice).UpdateColumn("Status", InvoiceStatusVoid).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := writeAuditLog(tx.WithContext(ctx), "VOID", id, "invoices", nil, nil, "voided invoice "+invoice.Number); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

func DeleteInvoice(ctx context.Context, id int) (*Invoice, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	invoice, err := utils.FetchModelForChange[Invoice](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	allocated, err := GetInvoiceAllocatedAmount(ctx, id)
	if err != nil {
		return nil, err
	}
	if allocated.IsPositive() {
		return nil, &InvalidStateError{Entity: "invoice", Id: id, Status: string(invoice.Status), Operation: "deleted while allocations exist"}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&invoice).Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	var result Invoice
	err := db.WithContext(ctx).Where("company_id = ?", companyId).First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	allocated, err := GetInvoiceAllocatedAmount(ctx, id)
	if err != nil {
		return nil, err
	}
	result.Outstanding = result.Total.Sub(allocated)
	return &result, nil
}

// GetInvoiceAllocatedAmount sums receivable allocations against the invoice.
func GetInvoiceAllocatedAmount(ctx context.Context, invoiceId int) (decimal.Decimal, error) {
	db := config.GetDB()
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Model(&ReceivableAllocation{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("invoice_id = ?", invoiceId).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

// GetInvoiceOutstandingAmount is total minus allocations; derived on demand.
func GetInvoiceOutstandingAmount(ctx context.Context, invoiceId int) (decimal.Decimal, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return decimal.Zero, errors.New("company id is required")
	}
	db := config.GetDB()
	var invoice Invoice
	if err := db.WithContext(ctx).Where("company_id = ?", companyId).
		First(&invoice, invoiceId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, utils.ErrorRecordNotFound
		}
		return decimal.Zero, err
	}
	allocated, err := GetInvoiceAllocatedAmount(ctx, invoiceId)
	if err != nil {
		return decimal.Zero, err
	}
	return invoice.Total.Sub(allocated), nil
}

// refreshInvoiceStatus recomputes the paid status from the allocation sum.
// Runs inside the caller's transaction so the flip commits with the allocation.
func refreshInvoiceStatus(ctx context.Context, tx *gorm.DB, invoiceId int) error {
	var invoice Invoice
	if err := tx.WithContext(ctx).First(&invoice, invoiceId).Error; err != nil {
		return err
	}
	if invoice.Status == InvoiceStatusVoid {
		return nil
	}
	var row struct {
		Total decimal.Decimal
	}
	err := tx.WithContext(ctx).Model(&ReceivableAllocation{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("invoice_id = ?", invoiceId).
		Scan(&row).Error
	if err != nil {
		return err
	}
	status := InvoiceStatusOpen
	if row.Total.GreaterThanOrEqual(invoice.Total) {
		status = InvoiceStatusPaid
	} else if row.Total.IsPositive() {
		status = InvoiceStatusPartiallyPaid
	}
	if status == invoice.Status {
		return nil
	}
	return tx.WithContext(ctx).Model(&invoice).UpdateColumn("Status", status).Error
}

// RefreshInvoiceStatus is the exported form used by the allocation workflow.
func RefreshInvoiceStatus(ctx context.Context, tx *gorm.DB, invoiceId int) error {
	return refreshInvoiceStatus(ctx, tx, invoiceId)
}

// GetOpenInvoicesByDueDate lists unpaid invoices oldest due date first.
// Ties resolve by id ascending.
func GetOpenInvoicesByDueDate(ctx context.Context, contactId *int) ([]Invoice, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Where("status IN ?", []InvoiceStatus{InvoiceStatusOpen, InvoiceStatusPartiallyPaid})
	if contactId != nil && *contactId > 0 {
		dbCtx = dbCtx.Where("contact_id = ?", *contactId)
	}
	var invoices []Invoice
	if err := dbCtx.Order("due_date").Order("id").Find(&invoices).Error; err != nil {
		return nil, err
	}
	for i := range invoices {
		allocated, err := GetInvoiceAllocatedAmount(ctx, invoices[i].ID)
		if err != nil {
			return nil, err
		}
		invoices[i].Outstanding = invoices[i].Total.Sub(allocated)
	}
	return invoices, nil
}

func PaginateInvoices(ctx context.Context, limit *int, after *string,
	number *string, status *InvoiceStatus, contactId *int) (*InvoicesConnection, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if number != nil && *number != "" {
		dbCtx.Where("number LIKE ?", "%"+*number+"%")
	}
	if status != nil {
		dbCtx.Where("status = ?", *status)
	}
	if contactId != nil && *contactId > 0 {
		dbCtx.Where("contact_id = ?", *contactId)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[Invoice](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	var connection InvoicesConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		invoiceEdge := InvoicesEdge{Cursor: edge.Cursor, Node: edge.Node}
		connection.Edges = append(connection.Edges, &invoiceEdge)
	}

	return &connection, nil
}
