package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReceivableAllocation applies part of a posted receipt to an invoice.
// Rows are insert/delete only; corrections remove and re-allocate.
type ReceivableAllocation struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CompanyId     string          `gorm:"index;not null" json:"company_id"`
	TransactionId int             `gorm:"index;not null;index:idx_ra_txn_invoice,priority:1" json:"transaction_id" binding:"required"`
	InvoiceId     int             `gorm:"index;not null;index:idx_ra_txn_invoice,priority:2" json:"invoice_id" binding:"required"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	AllocatedAt   time.Time       `gorm:"not null" json:"allocated_at"`
	AllocatedBy   string          `gorm:"size:100" json:"allocated_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PayableAllocation applies part of a posted payment to a bill.
type PayableAllocation struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CompanyId     string          `gorm:"index;not null" json:"company_id"`
	TransactionId int             `gorm:"index;not null;index:idx_pa_txn_bill,priority:1" json:"transaction_id" binding:"required"`
	BillId        int             `gorm:"index;not null;index:idx_pa_txn_bill,priority:2" json:"bill_id" binding:"required"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	AllocatedAt   time.Time       `gorm:"not null" json:"allocated_at"`
	AllocatedBy   string          `gorm:"size:100" json:"allocated_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *ReceivableAllocation) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("allocations are immutable: remove and re-allocate instead")
}

func (a *PayableAllocation) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("allocations are immutable: remove and re-allocate instead")
}

func GetReceivableAllocation(ctx context.Context, id int) (*ReceivableAllocation, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	var result ReceivableAllocation
	err := db.WithContext(ctx).Where("company_id = ?", companyId).First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

func GetPayableAllocation(ctx context.Context, id int) (*PayableAllocation, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	var result PayableAllocation
	err := db.WithContext(ctx).Where("company_id = ?", companyId).First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

func GetReceivableAllocations(ctx context.Context, transactionId *int, invoiceId *int) ([]*ReceivableAllocation, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if transactionId != nil && *transactionId > 0 {
		dbCtx = dbCtx.Where("transaction_id = ?", *transactionId)
	}
	if invoiceId != nil && *invoiceId > 0 {
		dbCtx = dbCtx.Where("invoice_id = ?", *invoiceId)
	}
	var results []*ReceivableAllocation
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func GetPayableAllocations(ctx context.Context, transactionId *int, billId *int) ([]*PayableAllocation, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if transactionId != nil && *transactionId > 0 {
		dbCtx = dbCtx.Where("transaction_id = ?", *transactionId)
	}
	if billId != nil && *billId > 0 {
		dbCtx = dbCtx.Where("bill_id = ?", *billId)
	}
	var results []*PayableAllocation
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// SumReceivableAllocationsForTransaction totals what a receipt has already
// handed out. Runs on the supplied handle so callers can hold a transaction.
func SumReceivableAllocationsForTransaction(ctx context.Context, db *gorm.DB, transactionId int) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Model(&ReceivableAllocation{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("transaction_id = ?", transactionId).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func SumPayableAllocationsForTransaction(ctx context.Context, db *gorm.DB, transactionId int) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Model(&PayableAllocation{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("transaction_id = ?", transactionId).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

// SumReceivableAllocationsForInvoice totals what an invoice has received.
func SumReceivableAllocationsForInvoice(ctx context.Context, db *gorm.DB, invoiceId int) (decimal.Decimal, error) {
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

func SumPayableAllocationsForBill(ctx context.Context, db *gorm.DB, billId int) (decimal.Decimal, error) {
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
