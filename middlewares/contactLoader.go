package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"

	"bitbucket.org/quartzbooks/ledger_backend/models"
)

type contactReader struct {
	db *gorm.DB
}

func (r *contactReader) getContacts(ctx context.Context, ids []int) []*dataloader.Result[*models.Contact] {
	var results []models.Contact

	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error
	if err != nil {
		return handleError[*models.Contact](len(ids), err)
	}
	return generateLoaderResults(results, ids)
}

// GetContact returns single contact by id efficiently
func GetContact(ctx context.Context, id int) (*models.Contact, error) {
	loaders := For(ctx)
	return loaders.ContactLoader.Load(ctx, id)()
}

// GetContacts returns many contacts by ids efficiently
func GetContacts(ctx context.Context, ids []int) ([]*models.Contact, []error) {
	loaders := For(ctx)
	return loaders.ContactLoader.LoadMany(ctx, ids)()
}
