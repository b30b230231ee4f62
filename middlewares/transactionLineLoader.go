package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"

	"bitbucket.org/quartzbooks/ledger_backend/models"
)

type transactionLineReader struct {
	db *gorm.DB
}

func (r *transactionLineReader) getTransactionLines(ctx context.Context, transactionIds []int) []*dataloader.Result[[]*models.TransactionLine] {
	var results []models.TransactionLine

	err := r.db.WithContext(ctx).
		Where("transaction_id IN ?", transactionIds).
		Order("transaction_id, position, id").
		Find(&results).Error
	if err != nil {
		return handleError[[]*models.TransactionLine](len(transactionIds), err)
	}
	return generateLoaderArrayResults(results, transactionIds)
}

// GetTransactionLines returns the lines of one transaction efficiently
func GetTransactionLines(ctx context.Context, transactionId int) ([]*models.TransactionLine, error) {
	loaders := For(ctx)
	return loaders.TransactionLineLoader.Load(ctx, transactionId)()
}
