package utils

import (
	"context"

	"bitbucket.org/quartzbooks/ledger_backend/config"
)

type ModelChangeLocker interface {
	CheckPeriodLock(context.Context) error
}

/* DB fetching */

// fetch model from db
// (may return RecordNotFound)
func FetchSingleModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch model from db
// (ctx's company_id is used in query's WHERE, may return RecordNotFound)
func FetchModel[T any](ctx context.Context, companyId string, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch model and check if model is locked by posting period
func FetchModelForChange[T ModelChangeLocker](ctx context.Context, companyId string, id int, associations ...string) (*T, error) {
	result, err := FetchModel[T](ctx, companyId, id, associations...)
	if err != nil {
		return nil, err
	}
	if err := (*result).CheckPeriodLock(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// fetch all models from db
// (ctx's company_id is used in query's WHERE)
func FetchAllModels[T any](ctx context.Context, companyId string, associations ...string) ([]*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	err := dbCtx.Find(&results).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return results, nil
}
