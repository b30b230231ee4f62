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

type Bill struct {
	ID                     int             `gorm:"primary_key" json:"id"`
	CompanyId              string          `gorm:"index;not null;index:idx_bill_company_status,priority:1" json:"company_id"`
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
	Status                 InvoiceStatus   `gorm:"type:enum('Open', 'Partially Paid', 'Paid', 'Void');default:'Open';size:20;not null;index:idx_bill_company_status,priority:2" json:"status"`
	Outstanding            decimal.Decimal `gorm:"-" json:"outstanding"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBill struct {
	ContactId              int             `json:"contact_id" binding:"required"`
	IssueDate              time.Time       `json:"issue_date" binding:"required"`
	DueDate                *time.Time      `json:"due_date"`
	PaymentTerms           PaymentTerms    `json:"payment_terms"`
	PaymentTermsCustomDays int             `json:"payment_terms_custom_days"`
	Reference              string          `json:"reference"`
	Notes                  string          `json:"notes"`
	Total                  decimal.Decimal `json:"total"`
}

type BillsConnection struct {
	Edges    []*BillsEdge `json:"edges"`
	PageInfo *PageInfo    `json:"pageInfo"`
}

type BillsEdge struct {
	Cursor string `json:"cursor"`
	Node   *Bill  `json:"node"`
}

func (b Bill) GetCursor() string {
	return b.CreatedAt.String()
}

func (b Bill) CheckPeriodLock(ctx context.Context) error {
	return validatePeriodLock(ctx, b.IssueDate, b.CompanyId, PayablePeriodLock)
}

// validate input for both create & update. (id = 0 for create)

func (input *NewBill) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Bill](ctx, companyId, id); err != nil {
			return err
		}
	}
	contact, err := GetContact(ctx, input.ContactId)
	if err != nil {
		return errors.New("contact not found")
	}
	if contact.Type != ContactTypeSupplier {
		return &InvalidArgumentError{Field: "contact_id", Reason: "bills require a supplier contact"}
	}
	if !input.Total.IsPositive() {
		return &InvalidArgumentError{Field: "total", Reason: "total must be positive"}
	}
	return nil
}

func (input *NewBill) resolveDueDate() *time.Time {
	if input.DueDate != nil {
		return input.DueDate
	}
	terms := input.PaymentTerms
	if terms == "" {
		terms = PaymentTermsDueOnReceipt
	}
	return calculateDueDate(input.IssueDate, terms, input.PaymentTermsCustomDays)
}

func CreateBill(ctx context.Context, input *NewBill) (*Bill, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	bill := Bill{
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
	if bill.PaymentTerms == "" {
		bill.PaymentTerms = PaymentTermsDueOnReceipt
	}

	seqNo, err := utils.GetSequence[Bill](ctx, companyId)
	if err != nil {
		return nil, err
	}
	prefix, err := getTransactionPrefix(ctx, companyId, NumberModuleBill)
	if err != nil {
		return nil, err
	}
	bill.SequenceNo = seqNo
	bill.Number = prefix + fmt.Sprint(seqNo)

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&bill).Error; err != nil {
		return nil, err
	}
	bill.Outstanding = bill.Total
	return &bill, nil
}

func UpdateBill(ctx context.Context, id int, input *NewBill) (*Bill, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	bill, err := utils.FetchModelForChange[Bill](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if bill.Status != InvoiceStatusOpen {
		return nil, &InvalidStateError{Entity: "bill", Id: id, Status: string(bill.Status), Operation: "updated"}
	}
	allocated, err := GetBillAllocatedAmount(ctx, id)
	if err != nil {
		return nil, err
	}
	if allocated.IsPositive() {
		return nil, &InvalidStateError{Entity: "bill", Id: id, Status: string(bill.Status), Operation: "updated while allocations exist"}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&bill).Updates(map[string]interface{}{
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
	bill.Outstanding = bill.Total
	return bill, nil
}

// VoidBill marks a bill void. Allocations must be removed first.
func VoidBill(ctx context.Context, id int) (*Bill, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	bill, err := utils.FetchModelForChange[Bill](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if bill.Status == InvoiceStatusVoid {
		return bill, nil
	}
	allocated, err := GetBillAllocatedAmount(ctx, id)
	if err != nil {
		return nil, err
	}
	if allocated.IsPositive() {
		return nil, &InvalidStateError{Entity: "bill", Id: id, Status: string(bill.Status), Operation: "voided while allocations exist"}
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(&bill).UpdateColumn("Status", InvoiceStatusVoid).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := writeAuditLog(tx.WithContext(ctx), "VOID", id, "bills", nil, nil, "voided bill "+bill.Number); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return bill, nil
}

func DeleteBill(ctx context.Context, id int) (*Bill, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	bill, err := utils.FetchModelForChange[Bill](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	allocated, err := GetBillAllocatedAmount(ctx, id)
	if err != nil {
		return nil, err
	}
	if allocated.IsPositive() {
		return nil, &InvalidStateError{Entity: "bill", Id: id, Status: string(bill.Status), Operation: "deleted while allocations exist"}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&bill).Error; err != nil {
		return nil, err
	}
	return bill, nil
}

func GetBill(ctx context.Context, id int) (*Bill, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	var result Bill
	err := db.WithContext(ctx).Where("company_id = ?", companyId).First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	allocated, err := GetBillAllocatedAmount(ctx, id)
	if err != nil {
		return nil, err
	}
	result.Outstanding = result.Total.Sub(allocated)
	return &result, nil
}

// GetBillAllocatedAmount sums payable allocations against the bill.
func GetBillAllocatedAmount(ctx context.Context, billId int) (decimal.Decimal, error) {
	db := config.GetDB()
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Model(&PayableAllocation{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("bill_id = ?", billId).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func GetBillOutstandingAmount(ctx context.Context, billId int) (decimal.Decimal, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return decimal.Zero, errors.New("company id is required")
	}
	db := config.GetDB()
	var bill Bill
	if err := db.WithContext(ctx).Where("company_id = ?", companyId).
		First(&bill, billId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, utils.ErrorRecordNotFound
		}
		return decimal.Zero, err
	}
	allocated, err := GetBillAllocatedAmount(ctx, billId)
	if err != nil {
		return decimal.Zero, err
	}
	return bill.Total.Sub(allocated), nil
}

func refreshBillStatus(ctx context.Context, tx *gorm.DB, billId int) error {
	var bill Bill
	if err := tx.WithContext(ctx).First(&bill, billId).Error; err != nil {
		return err
	}
	if bill.Status == InvoiceStatusVoid {
		return nil
	}
	var row struct {
		Total decimal.Decimal
	}
	err := tx.WithContext(ctx).Model(&PayableAllocation{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("bill_id = ?", billId).
		Scan(&row).Error
	if err != nil {
		return err
	}
	status := InvoiceStatusOpen
	if row.Total.GreaterThanOrEqual(bill.Total) {
		status = InvoiceStatusPaid
	} else if row.Total.IsPositive() {
		status = InvoiceStatusPartiallyPaid
	}
	if status == bill.Status {
		return nil
	}
	return tx.WithContext(ctx).Model(&bill).UpdateColumn("Status", status).Error
}

// RefreshBillStatus is the exported form used by the allocation workflow.
func RefreshBillStatus(ctx context.Context, tx *gorm.DB, billId int) error {
	return refreshBillStatus(ctx, tx, billId)
}

// GetOpenBillsByDueDate lists unpaid bills oldest due date first.
// Ties resolve by id ascending.
func GetOpenBillsByDueDate(ctx context.Context, contactId *int) ([]Bill, error) {
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
	var bills []Bill
	if err := dbCtx.Order("due_date").Order("id").Find(&bills).Error; err != nil {
		return nil, err
	}
	for i := range bills {
		allocated, err := GetBillAllocatedAmount(ctx, bills[i].ID)
		if err != nil {
			return nil, err
		}
		bills[i].Outstanding = bills[i].Total.Sub(allocated)
	}
	return bills, nil
}

func PaginateBills(ctx context.Context, limit *int, after *string,
	number *string, status *InvoiceStatus, contactId *int) (*BillsConnection, error) {

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

	edges, pageInfo, err := FetchPageCompositeCursor[Bill](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	var connection BillsConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		billEdge := BillsEdge{Cursor: edge.Cursor, Node: edge.Node}
		connection.Edges = append(connection.Edges, &billEdge)
	}

	return &connection, nil
}
