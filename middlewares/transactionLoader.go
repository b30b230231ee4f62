package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"

	"bitbucket.org/quartzbooks/ledger_backend/models"
)

type transactionReader struct {
	db *gorm.DB
}

func (r *transactionReader) getTransactions(ctx context.Context, ids []int) []*dataloader.Result[*models.Transaction] {
	var results []models.Transaction

	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.Transaction](len(ids), err)
	}
	return generateLoaderResults(results, ids)
}

// GetTransaction returns single transaction by id efficiently
func GetTransaction(ctx context.Context, id int) (*models.Transaction, error) {
	loaders := For(ctx)
	return loaders.TransactionLoader.Load(ctx, id)()
}

// GetTransactions returns many transactions by ids efficiently
func GetTransactions(ctx context.Context, ids []int) ([]*models.Transaction, []error) {
	loaders := For(ctx)
	return loaders.TransactionLoader.LoadMany(ctx, ids)()
}
