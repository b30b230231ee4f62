package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"

	"bitbucket.org/quartzbooks/ledger_backend/models"
)

type accountReader struct {
	db *gorm.DB
}

func (r *accountReader) getAccounts(ctx context.Context, ids []int) []*dataloader.Result[*models.Account] {
	var results []models.Account

	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.Account](len(ids), err)
	}
	return generateLoaderResults(results, ids)
}

// GetAccount returns single account by id efficiently
func GetAccount(ctx context.Context, id int) (*models.Account, error) {
	loaders := For(ctx)
	return loaders.AccountLoader.Load(ctx, id)()
}

// GetAccounts returns many accounts by ids efficiently
func GetAccounts(ctx context.Context, ids []int) ([]*models.Account, []error) {
	loaders := For(ctx)
	return loaders.AccountLoader.LoadMany(ctx, ids)()
}
