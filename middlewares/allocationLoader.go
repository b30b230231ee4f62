package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"

	"bitbucket.org/quartzbooks/ledger_backend/models"
)

// Allocation loaders are keyed by the source transaction id so receipt and
// payment listings can show what each one already covers.

type receivableAllocationReader struct {
	db *gorm.DB
}

func (r *receivableAllocationReader) getReceivableAllocations(ctx context.Context, transactionIds []int) []*dataloader.Result[[]*models.ReceivableAllocation] {
	var results []models.ReceivableAllocation

	err := r.db.WithContext(ctx).
		Where("transaction_id IN ?", transactionIds).
		Order("transaction_id, id").
		Find(&results).Error
	if err != nil {
		return handleError[[]*models.ReceivableAllocation](len(transactionIds), err)
	}
	return generateLoaderArrayResults(results, transactionIds)
}

type payableAllocationReader struct {
	db *gorm.DB
}

func (r *payableAllocationReader) getPayableAllocations(ctx context.Context, transactionIds []int) []*dataloader.Result[[]*models.PayableAllocation] {
	var results []models.PayableAllocation

	err := r.db.WithContext(ctx).
		Where("transaction_id IN ?", transactionIds).
		Order("transaction_id, id").
		Find(&results).Error
	if err != nil {
		return handleError[[]*models.PayableAllocation](len(transactionIds), err)
	}
	return generateLoaderArrayResults(results, transactionIds)
}

// GetReceivableAllocationsForTransaction returns a receipt's allocations efficiently
func GetReceivableAllocationsForTransaction(ctx context.Context, transactionId int) ([]*models.ReceivableAllocation, error) {
	loaders := For(ctx)
	return loaders.ReceivableAllocationLoader.Load(ctx, transactionId)()
}

// GetPayableAllocationsForTransaction returns a payment's allocations efficiently
func GetPayableAllocationsForTransaction(ctx context.Context, transactionId int) ([]*models.PayableAllocation, error) {
	loaders := For(ctx)
	return loaders.PayableAllocationLoader.Load(ctx, transactionId)()
}
