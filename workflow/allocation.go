package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Allocation applies posted receipts to invoices and posted payments to
// bills. Balances are never stored: an invoice's outstanding amount is
// total - sum(allocations), a receipt's unallocated amount is its bank-side
// total - sum(allocations). Both ceilings are re-checked inside the DB
// transaction while holding the company redis lock and a FOR UPDATE row lock
// on the target document, so two concurrent allocations cannot overdraw.

// AllocationSuggestion is one row of the oldest-first payment proposal.
type AllocationSuggestion struct {
	DocumentId  int             `json:"document_id"`
	Number      string          `json:"number"`
	DueDate     *time.Time      `json:"due_date"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Suggested   decimal.Decimal `json:"suggested"`
}

// BankSideTotal sums the transaction's lines that hit bank accounts in the
// direction money moves through the bank for its type. This is the amount a
// receipt or payment can hand out to documents.
func BankSideTotal(ctx context.Context, db *gorm.DB, transaction *models.Transaction) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Model(&models.TransactionLine{}).
		Select("COALESCE(SUM(transaction_lines.amount), 0) AS total").
		Joins("JOIN accounts ON accounts.id = transaction_lines.account_id").
		Where("transaction_lines.transaction_id = ?", transaction.ID).
		Where("accounts.is_bank_account = ?", true).
		Where("transaction_lines.direction = ?", transaction.BankSideDirection()).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

// GetUnallocatedAmount is the bank-side total minus what the transaction has
// already allocated. Derived on demand, never stored.
func GetUnallocatedAmount(ctx context.Context, transactionId int) (decimal.Decimal, error) {
	transaction, err := models.GetTransaction(ctx, transactionId)
	if err != nil {
		return decimal.Zero, err
	}
	db := config.GetDB()
	return unallocatedAmount(ctx, db, transaction)
}

func unallocatedAmount(ctx context.Context, db *gorm.DB, transaction *models.Transaction) (decimal.Decimal, error) {
	total, err := BankSideTotal(ctx, db, transaction)
	if err != nil {
		return decimal.Zero, err
	}
	var allocated decimal.Decimal
	switch transaction.Type {
	case models.TransactionTypeReceipt:
		allocated, err = models.SumReceivableAllocationsForTransaction(ctx, db, transaction.ID)
	case models.TransactionTypePayment:
		allocated, err = models.SumPayableAllocationsForTransaction(ctx, db, transaction.ID)
	default:
		allocated = decimal.Zero
	}
	if err != nil {
		return decimal.Zero, err
	}
	return total.Sub(allocated), nil
}

func validateAllocationSource(transaction *models.Transaction, wantType models.TransactionType) error {
	if transaction.Status != models.TransactionStatusPosted {
		return &models.InvalidStateError{
			Entity:    "transaction",
			Id:        transaction.ID,
			Status:    string(transaction.Status),
			Operation: "allocated from",
		}
	}
	if transaction.Type != wantType {
		return &models.InvalidArgumentError{
			Field:  "transaction_id",
			Reason: fmt.Sprintf("allocations of this kind require a %s transaction, got %s", wantType, transaction.Type),
		}
	}
	return nil
}

// AllocateReceivable applies part of a posted receipt to an invoice.
func AllocateReceivable(ctx context.Context, transactionId int, invoiceId int, amount decimal.Decimal) (*models.ReceivableAllocation, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if !amount.IsPositive() {
		return nil, &models.InvalidArgumentError{Field: "amount", Reason: "allocation amount must be positive"}
	}

	source, err := models.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if err := validateAllocationSource(source, models.TransactionTypeReceipt); err != nil {
		return nil, err
	}

	// lock company
	lock, err := utils.CompanyLock(ctx, companyId, "allocationLock", "allocation.go", "AllocateReceivable")
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

	allocatedBy, _ := utils.GetUserNameFromContext(ctx)
	now := time.Now().UTC()

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

	// Row lock on the target document; ceilings are computed under it.
	var invoice models.Invoice
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ?", companyId).
		First(&invoice, invoiceId).Error; err != nil {
		_ = tx.Rollback().Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if invoice.Status == models.InvoiceStatusVoid {
		_ = tx.Rollback().Error
		return nil, &models.InvalidStateError{
			Entity:    "invoice",
			Id:        invoiceId,
			Status:    string(invoice.Status),
			Operation: "allocated to",
		}
	}

	unallocated, err := unallocatedAmount(ctx, tx, source)
	if err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if amount.GreaterThan(unallocated) {
		_ = tx.Rollback().Error
		return nil, &models.OverAllocationError{Requested: amount, Available: unallocated, Ceiling: "source transaction"}
	}
	allocatedToInvoice, err := models.SumReceivableAllocationsForInvoice(ctx, tx, invoiceId)
	if err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	outstanding := invoice.Total.Sub(allocatedToInvoice)
	if amount.GreaterThan(outstanding) {
		_ = tx.Rollback().Error
		return nil, &models.OverAllocationError{Requested: amount, Available: outstanding, Ceiling: "target document"}
	}

	allocation := models.ReceivableAllocation{
		CompanyId:     companyId,
		TransactionId: transactionId,
		InvoiceId:     invoiceId,
		Amount:        amount,
		AllocatedAt:   now,
		AllocatedBy:   allocatedBy,
	}
	if err := tx.Create(&allocation).Error; err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if err := models.RefreshInvoiceStatus(ctx, tx, invoiceId); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := models.WriteAuditLog(tx, "ALLOCATE", allocation.ID, "receivable_allocations",
		nil, allocation,
		fmt.Sprintf("allocated %s from %s to invoice %s", amount.String(), source.Number, invoice.Number)); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if err := models.PublishToLedger(ctx, tx, companyId, now, allocation.ID,
		models.LedgerReferenceTypeReceivableAllocation, allocation, nil,
		models.PubSubMessageActionCreate); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &allocation, nil
}

// AllocatePayable applies part of a posted payment to a bill.
func AllocatePayable(ctx context.Context, transactionId int, billId int, amount decimal.Decimal) (*models.PayableAllocation, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if !amount.IsPositive() {
		return nil, &models.InvalidArgumentError{Field: "amount", Reason: "allocation amount must be positive"}
	}

	source, err := models.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if err := validateAllocationSource(source, models.TransactionTypePayment); err != nil {
		return nil, err
	}

	// lock company
	lock, err := utils.CompanyLock(ctx, companyId, "allocationLock", "allocation.go", "AllocatePayable")
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

	allocatedBy, _ := utils.GetUserNameFromContext(ctx)
	now := time.Now().UTC()

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

	var bill models.Bill
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ?", companyId).
		First(&bill, billId).Error; err != nil {
		_ = tx.Rollback().Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if bill.Status == models.InvoiceStatusVoid {
		_ = tx.Rollback().Error
		return nil, &models.InvalidStateError{
			Entity:    "bill",
			Id:        billId,
			Status:    string(bill.Status),
			Operation: "allocated to",
		}
	}

	unallocated, err := unallocatedAmount(ctx, tx, source)
	if err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if amount.GreaterThan(unallocated) {
		_ = tx.Rollback().Error
		return nil, &models.OverAllocationError{Requested: amount, Available: unallocated, Ceiling: "source transaction"}
	}
	allocatedToBill, err := models.SumPayableAllocationsForBill(ctx, tx, billId)
	if err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	outstanding := bill.Total.Sub(allocatedToBill)
	if amount.GreaterThan(outstanding) {
		_ = tx.Rollback().Error
		return nil, &models.OverAllocationError{Requested: amount, Available: outstanding, Ceiling: "target document"}
	}

	allocation := models.PayableAllocation{
		CompanyId:     companyId,
		TransactionId: transactionId,
		BillId:        billId,
		Amount:        amount,
		AllocatedAt:   now,
		AllocatedBy:   allocatedBy,
	}
	if err := tx.Create(&allocation).Error; err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if err := models.RefreshBillStatus(ctx, tx, billId); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := models.WriteAuditLog(tx, "ALLOCATE", allocation.ID, "payable_allocations",
		nil, allocation,
		fmt.Sprintf("allocated %s from %s to bill %s", amount.String(), source.Number, bill.Number)); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if err := models.PublishToLedger(ctx, tx, companyId, now, allocation.ID,
		models.LedgerReferenceTypePayableAllocation, allocation, nil,
		models.PubSubMessageActionCreate); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &allocation, nil
}

// RemoveReceivableAllocation deletes an allocation, restoring both derived
// balances. Blocked when the invoice's period is locked: un-paying a document
// in a closed period would change closed-period reporting.
func RemoveReceivableAllocation(ctx context.Context, id int) (*models.ReceivableAllocation, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	allocation, err := models.GetReceivableAllocation(ctx, id)
	if err != nil {
		return nil, err
	}
	// Both the settlement date and the invoice's own period must be open.
	if err := models.ValidatePeriodLock(ctx, allocation.AllocatedAt, companyId, models.ReceivablePeriodLock); err != nil {
		return nil, err
	}
	invoice, err := utils.FetchModelForChange[models.Invoice](ctx, companyId, allocation.InvoiceId)
	if err != nil {
		return nil, err
	}

	// lock company
	lock, err := utils.CompanyLock(ctx, companyId, "allocationLock", "allocation.go", "RemoveReceivableAllocation")
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

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

	if err := tx.WithContext(ctx).Delete(&models.ReceivableAllocation{}, allocation.ID).Error; err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if err := models.RefreshInvoiceStatus(ctx, tx, allocation.InvoiceId); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := models.WriteAuditLog(tx, "UNALLOCATE", allocation.ID, "receivable_allocations",
		allocation, nil,
		fmt.Sprintf("removed allocation of %s from invoice %s", allocation.Amount.String(), invoice.Number)); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if err := models.PublishToLedger(ctx, tx, companyId, time.Now().UTC(), allocation.ID,
		models.LedgerReferenceTypeReceivableAllocation, nil, allocation,
		models.PubSubMessageActionDelete); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return allocation, nil
}

// RemovePayableAllocation mirrors RemoveReceivableAllocation for bills.
func RemovePayableAllocation(ctx context.Context, id int) (*models.PayableAllocation, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	allocation, err := models.GetPayableAllocation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := models.ValidatePeriodLock(ctx, allocation.AllocatedAt, companyId, models.PayablePeriodLock); err != nil {
		return nil, err
	}
	bill, err := utils.FetchModelForChange[models.Bill](ctx, companyId, allocation.BillId)
	if err != nil {
		return nil, err
	}

	// lock company
	lock, err := utils.CompanyLock(ctx, companyId, "allocationLock", "allocation.go", "RemovePayableAllocation")
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

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

	if err := tx.WithContext(ctx).Delete(&models.PayableAllocation{}, allocation.ID).Error; err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if err := models.RefreshBillStatus(ctx, tx, allocation.BillId); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := models.WriteAuditLog(tx, "UNALLOCATE", allocation.ID, "payable_allocations",
		allocation, nil,
		fmt.Sprintf("removed allocation of %s from bill %s", allocation.Amount.String(), bill.Number)); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}
	if err := models.PublishToLedger(ctx, tx, companyId, time.Now().UTC(), allocation.ID,
		models.LedgerReferenceTypePayableAllocation, nil, allocation,
		models.PubSubMessageActionDelete); err != nil {
		_ = tx.Rollback().Error
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return allocation, nil
}

// SuggestAllocations proposes how to spread a transaction's unallocated
// amount across open documents: oldest due date first, ties broken by id,
// each suggestion capped at the document's outstanding balance, stopping when
// the amount runs out. Read-only; nothing is written.
func SuggestAllocations(ctx context.Context, transactionId int) ([]*AllocationSuggestion, error) {

	source, err := models.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if err := validateSuggestionSource(source); err != nil {
		return nil, err
	}

	remaining, err := GetUnallocatedAmount(ctx, transactionId)
	if err != nil {
		return nil, err
	}

	var contactFilter *int
	if source.ContactId > 0 {
		contactFilter = &source.ContactId
	}

	suggestions := make([]*AllocationSuggestion, 0)
	if !remaining.IsPositive() {
		return suggestions, nil
	}

	if source.Type == models.TransactionTypeReceipt {
		invoices, err := models.GetOpenInvoicesByDueDate(ctx, contactFilter)
		if err != nil {
			return nil, err
		}
		for _, invoice := range invoices {
			if !remaining.IsPositive() {
				break
			}
			if !invoice.Outstanding.IsPositive() {
				continue
			}
			suggested := decimal.Min(remaining, invoice.Outstanding)
			suggestions = append(suggestions, &AllocationSuggestion{
				DocumentId:  invoice.ID,
				Number:      invoice.Number,
				DueDate:     invoice.DueDate,
				Outstanding: invoice.Outstanding,
				Suggested:   suggested,
			})
			remaining = remaining.Sub(suggested)
		}
		return suggestions, nil
	}

	bills, err := models.GetOpenBillsByDueDate(ctx, contactFilter)
	if err != nil {
		return nil, err
	}
	for _, bill := range bills {
		if !remaining.IsPositive() {
			break
		}
		if !bill.Outstanding.IsPositive() {
			continue
		}
		suggested := decimal.Min(remaining, bill.Outstanding)
		suggestions = append(suggestions, &AllocationSuggestion{
			DocumentId:  bill.ID,
			Number:      bill.Number,
			DueDate:     bill.DueDate,
			Outstanding: bill.Outstanding,
			Suggested:   suggested,
		})
		remaining = remaining.Sub(suggested)
	}
	return suggestions, nil
}

func validateSuggestionSource(transaction *models.Transaction) error {
	if transaction.Status != models.TransactionStatusPosted {
		return &models.InvalidStateError{
			Entity:    "transaction",
			Id:        transaction.ID,
			Status:    string(transaction.Status),
			Operation: "allocated from",
		}
	}
	if transaction.Type != models.TransactionTypeReceipt && transaction.Type != models.TransactionTypePayment {
		return &models.InvalidArgumentError{
			Field:  "transaction_id",
			Reason: "allocation suggestions require a Receipt or Payment transaction",
		}
	}
	return nil
}
