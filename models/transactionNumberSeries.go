package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"gorm.io/gorm"
)

// Module names resolved against a series when numbering documents.
const (
	NumberModuleReceipt  = "Receipt"
	NumberModulePayment  = "Payment"
	NumberModuleJournal  = "Journal"
	NumberModuleTransfer = "Transfer"
	NumberModuleInvoice  = "Invoice"
	NumberModuleBill     = "Bill"
)

type TransactionNumberSeries struct {
	ID        int                             `gorm:"primary_key" json:"id"`
	CompanyId string                          `gorm:"index;not null" json:"company_id" binding:"required"`
	Name      string                          `gorm:"size:100;not null" json:"name" binding:"required"`
	Modules   []TransactionNumberSeriesModule `gorm:"foreignKey:SeriesId" json:"modules"`
	CreatedAt time.Time                       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time                       `gorm:"autoUpdateTime" json:"updated_at"`
}

type TransactionNumberSeriesModule struct {
	SeriesId   int    `gorm:"primaryKey;autoIncrement:false" json:"series_id" binding:"required"`
	ModuleName string `gorm:"primaryKey;autoIncrement:false" json:"module_name" binding:"required"`
	Prefix     string `gorm:"size:10" json:"prefix"`
}

type NewTransactionNumberSeries struct {
	Name    string                             `json:"name" binding:"required"`
	Modules []NewTransactionNumberSeriesModule `json:"modules"`
}

type NewTransactionNumberSeriesModule struct {
	ModuleName string `json:"module_name" binding:"required"`
	Prefix     string `json:"prefix"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewTransactionNumberSeries) validate(ctx context.Context, companyId string, id int) error {
	// name
	if err := utils.ValidateUnique[TransactionNumberSeries](ctx, companyId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func mapTransactionNumberSeriesModule(input []NewTransactionNumberSeriesModule) []TransactionNumberSeriesModule {
	modules := make([]TransactionNumberSeriesModule, 0)
	for _, m := range input {
		modules = append(modules, TransactionNumberSeriesModule{
			ModuleName: m.ModuleName,
			Prefix:     m.Prefix,
		})
	}

	return modules
}

func CreateTransactionNumberSeries(ctx context.Context, input *NewTransactionNumberSeries) (*TransactionNumberSeries, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	// validate name
	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	series := TransactionNumberSeries{
		CompanyId: companyId,
		Name:      input.Name,
		Modules:   mapTransactionNumberSeriesModule(input.Modules),
	}

	db := config.GetDB()
	// db action
	err := db.WithContext(ctx).Create(&series).Error
	if err != nil {
		return nil, err
	}
	if err := removeTransactionPrefixCache(companyId); err != nil {
		return nil, err
	}
	return &series, nil
}

func UpdateTransactionNumberSeries(ctx context.Context, id int, input *NewTransactionNumberSeries) (*TransactionNumberSeries, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	modules := mapTransactionNumberSeriesModule(input.Modules)

	series, err := utils.FetchModel[TransactionNumberSeries](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	// db action
	if err = tx.WithContext(ctx).Model(&series).
		Updates(map[string]interface{}{
			"Name": input.Name,
		}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.WithContext(ctx).Model(&series).
		Session(&gorm.Session{FullSaveAssociations: true, SkipHooks: true}).
		Association("Modules").
		Unscoped().Replace(&modules); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	if err := RemoveRedisBoth(*series); err != nil {
		return nil, err
	}
	if err := removeTransactionPrefixCache(companyId); err != nil {
		return nil, err
	}

	return series, nil
}

func DeleteTransactionNumberSeries(ctx context.Context, id int) (*TransactionNumberSeries, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	result, err := utils.FetchModel[TransactionNumberSeries](ctx, companyId, id, "Modules")
	if err != nil {
		return nil, err
	}

	// every company keeps at least one series, numbering depends on it
	var count int64
	if err = db.WithContext(ctx).Model(&TransactionNumberSeries{}).
		Where("company_id = ?", companyId).Count(&count).Error; err != nil {
		return nil, err
	}
	if count <= 1 {
		return nil, errors.New("cannot delete the only number series")
	}

	// db action
	err = db.WithContext(ctx).Select("Modules").Delete(&result).Error
	if err != nil {
		return nil, err
	}
	if err := RemoveRedisBoth(*result); err != nil {
		return nil, err
	}
	if err := removeTransactionPrefixCache(companyId); err != nil {
		return nil, err
	}
	return result, nil
}

func GetTransactionNumberSeries(ctx context.Context, id int) (*TransactionNumberSeries, error) {
	return GetResource[TransactionNumberSeries](ctx, id, "Modules")
}

func GetTransactionNumberSeriesAll(ctx context.Context, name *string) ([]*TransactionNumberSeries, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var results []*TransactionNumberSeries

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	// db query
	err := dbCtx.Preload("Modules").Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// get transactionPrefix for module, redis or db
func getTransactionPrefix(ctx context.Context, companyId string, moduleName string) (string, error) {
	transactionPrefixes := make(map[string]string, 0) // moduleName => prefix
	redisKey := "tnsPrefixMap:" + companyId
	exists, err := config.GetRedisObject(redisKey, &transactionPrefixes)
	if err != nil {
		return "", err
	}
	if !exists {

		// retrieves moduleName:prefix map of the company's first series from db
		db := config.GetDB()
		var tnsId int
		if err := db.WithContext(ctx).Model(&TransactionNumberSeries{}).
			Where("company_id = ?", companyId).Order("id").Limit(1).
			Select("id").Scan(&tnsId).Error; err != nil {
			return "", err
		}
		var tnsModules []*TransactionNumberSeriesModule
		if err := db.WithContext(ctx).Model(&TransactionNumberSeriesModule{}).
			Where("series_id = ?", tnsId).Find(&tnsModules).Error; err != nil {
			return "", err
		}

		for _, modulePrefix := range tnsModules {
			transactionPrefixes[modulePrefix.ModuleName] = modulePrefix.Prefix
		}
		if err := config.SetRedisObject(redisKey, &transactionPrefixes, 0); err != nil {
			return "", err
		}
	}

	prefix, ok := transactionPrefixes[moduleName]
	if !ok || prefix == "" {
		return "", nil
	}
	return prefix, nil
}

func removeTransactionPrefixCache(companyId string) error {
	return config.RemoveRedisKey("tnsPrefixMap:" + companyId)
}
