package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Company struct {
	ID               uuid.UUID `gorm:"primary_key" json:"id"`
	Name             string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	ContactName      string    `gorm:"size:100" json:"contact_name"`
	Email            string    `gorm:"size:255" json:"email"`
	Phone            string    `gorm:"size:20" json:"phone"`
	Address          string    `gorm:"type:text" json:"address"`
	Country          string    `gorm:"size:100" json:"country"`
	BaseCurrencyCode string    `gorm:"size:3;not null;default:'USD'" json:"base_currency_code"`
	Timezone         string    `gorm:"size:50" json:"timezone"`
	MigrationDate    time.Time `json:"migration_date"`
	// Period close: writes dated on or before a lock date are rejected
	// by the matching PeriodLockType check.
	ReceivableLockDate time.Time `json:"receivable_lock_date"`
	PayableLockDate    time.Time `json:"payable_lock_date"`
	BankingLockDate    time.Time `json:"banking_lock_date"`
	AccountantLockDate time.Time `json:"accountant_lock_date"`
	IsActive           *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCompany struct {
	Name             string    `json:"name" binding:"required"`
	ContactName      string    `json:"contact_name"`
	Email            string    `json:"email" binding:"required"`
	Phone            string    `json:"phone"`
	Address          string    `json:"address"`
	Country          string    `json:"country"`
	BaseCurrencyCode string    `json:"base_currency_code"`
	Timezone         string    `json:"timezone"`
	MigrationDate    time.Time `json:"migration_date"`
}

type NewPeriodLocking struct {
	ReceivableLockDate time.Time `json:"receivable_lock_date"`
	PayableLockDate    time.Time `json:"payable_lock_date"`
	BankingLockDate    time.Time `json:"banking_lock_date"`
	AccountantLockDate time.Time `json:"accountant_lock_date"`
	Reason             string    `json:"reason"`
}

// PeriodLockingRecord keeps the history of lock date changes (who closed
// which period, when, and why).
type PeriodLockingRecord struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	CompanyId          string    `gorm:"index;not null" json:"company_id"`
	ReceivableLockDate time.Time `json:"receivable_lock_date"`
	PayableLockDate    time.Time `json:"payable_lock_date"`
	BankingLockDate    time.Time `json:"banking_lock_date"`
	AccountantLockDate time.Time `json:"accountant_lock_date"`
	Reason             string    `gorm:"default:null" json:"reason"`
	UserId             int       `gorm:"index;not null" json:"user_id"`
	UserName           string    `gorm:"size:100" json:"user_name"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (company *Company) StoreRedis() error {
	return config.SetRedisObject("Company:"+fmt.Sprint(company.ID), company, 0)
}

func (company *Company) RemoveRedis() error {
	return config.RemoveRedisKey("Company:" + fmt.Sprint(company.ID))
}

func (input *NewCompany) validate(ctx context.Context, id string) error {
	// name
	if err := utils.ValidateUnique[Company](ctx, "", "name", input.Name, id); err != nil {
		return err
	}
	// email
	if err := utils.ValidateUnique[Company](ctx, "", "email", input.Email, id); err != nil {
		return err
	}
	// phone
	if input.Phone != "" {
		if err := utils.ValidateUnique[Company](ctx, "", "phone", input.Phone, id); err != nil {
			return err
		}
	}
	if input.BaseCurrencyCode != "" && len(input.BaseCurrencyCode) != 3 {
		return &InvalidArgumentError{Field: "base_currency_code", Reason: "must be a 3-letter ISO code"}
	}
	return nil
}

func CreateCompany(ctx context.Context, input *NewCompany) (*Company, error) {
	// When creating a company,
	// - create the default chart of accounts.
	// - create the default transaction number series.
	// - create the 'Owner' user.
	if err := input.validate(ctx, ""); err != nil {
		return nil, err
	}
	db := config.GetDB()

	tx := db.Begin()

	companyUUID := uuid.New()
	timezone := "UTC"
	if input.Timezone != "" {
		timezone = input.Timezone
	}
	currencyCode := input.BaseCurrencyCode
	if currencyCode == "" {
		currencyCode = "USD"
	}
	migrateDate := input.MigrationDate
	if migrateDate.IsZero() {
		migrateDate = time.Now()
	}

	company := Company{
		ID:               companyUUID,
		Name:             input.Name,
		ContactName:      input.ContactName,
		Email:            input.Email,
		Phone:            input.Phone,
		Address:          input.Address,
		Country:          input.Country,
		BaseCurrencyCode: currencyCode,
		Timezone:         timezone,
		MigrationDate:    migrateDate,
		IsActive:         utils.NewTrue(),
	}

	// create company
	err := tx.WithContext(ctx).Create(&company).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	companyId := company.ID.String()
	ctx = utils.SetCompanyIdInContext(ctx, companyId)

	// create default chart of accounts
	if err := CreateDefaultAccounts(tx, ctx, companyId); err != nil {
		tx.Rollback()
		return nil, err
	}

	// create default transaction number series
	seriesInput := GetTransactionNumberSeriesDefault()
	if _, err := CreateDefaultTransactionNumberSeries(tx, ctx, seriesInput, companyId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if _, err := CreateDefaultOwner(tx, ctx, companyId, company.Email, company.Name); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err = tx.Commit().Error; err != nil {
		return nil, err
	}

	// caching
	if err := utils.ClearRedisAdmin[Company](); err != nil {
		return nil, err
	}

	return &company, nil
}

func UpdateCompany(ctx context.Context, input *NewCompany) (*Company, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId); err != nil {
		return nil, err
	}

	// db action
	db := config.GetDB()
	tx := db.Begin()
	var company Company
	if err := db.WithContext(ctx).Where("id = ?", companyId).First(&company).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	// the base currency is frozen once transactions exist
	if input.BaseCurrencyCode != "" && input.BaseCurrencyCode != company.BaseCurrencyCode {
		var count int64
		if err := db.WithContext(ctx).Model(&Transaction{}).Where("company_id = ?", companyId).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, errors.New("not allowed to change base currency when transactions exist")
		}
	}

	err := tx.WithContext(ctx).Model(&company).Updates(map[string]interface{}{
		"Name":             input.Name,
		"ContactName":      input.ContactName,
		"Email":            input.Email,
		"Phone":            input.Phone,
		"Address":          input.Address,
		"Country":          input.Country,
		"BaseCurrencyCode": input.BaseCurrencyCode,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// caching
	if err := company.RemoveRedis(); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := utils.ClearRedisAdmin[Company](); err != nil {
		tx.Rollback()
		return nil, err
	}
	return &company, tx.Commit().Error
}

func UpdatePeriodLocking(ctx context.Context, input NewPeriodLocking) (*Company, error) {
	db := config.GetDB()

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	// check exists
	var company Company
	if err := db.WithContext(ctx).Where("id = ?", companyId).First(&company).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok {
		return nil, errors.New("user name is required")
	}

	// db action
	tx := db.Begin()
	err := tx.WithContext(ctx).Model(&company).Updates(map[string]interface{}{
		"ReceivableLockDate": input.ReceivableLockDate,
		"PayableLockDate":    input.PayableLockDate,
		"BankingLockDate":    input.BankingLockDate,
		"AccountantLockDate": input.AccountantLockDate,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	periodLockingRecord := PeriodLockingRecord{
		CompanyId:          companyId,
		ReceivableLockDate: input.ReceivableLockDate,
		PayableLockDate:    input.PayableLockDate,
		BankingLockDate:    input.BankingLockDate,
		AccountantLockDate: input.AccountantLockDate,
		Reason:             input.Reason,
		UserId:             userId,
		UserName:           userName,
	}
	err = tx.WithContext(ctx).Create(&periodLockingRecord).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	// caching
	if err := company.RemoveRedis(); err != nil {
		return nil, err
	}
	if err := utils.ClearRedisAdmin[Company](); err != nil {
		return nil, err
	}
	return &company, nil
}

func GetPeriodLockingHistory(ctx context.Context) ([]*PeriodLockingRecord, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return utils.FetchAllModels[PeriodLockingRecord](ctx, companyId)
}

func ToggleActiveCompany(ctx context.Context, id uuid.UUID, isActive bool) (*Company, error) {

	db := config.GetDB()
	var result Company

	// check exists
	err := db.WithContext(ctx).Where("id = ?", id).First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	// db action
	tx := db.Begin()
	err = tx.WithContext(ctx).Model(&result).Updates(map[string]interface{}{
		"IsActive": isActive,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// toggling related users
	err = tx.WithContext(ctx).Model(&User{}).Where("company_id = ?", id).Updates(map[string]interface{}{
		"IsActive": isActive,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// caching
	if err := result.RemoveRedis(); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := utils.ClearRedisAdmin[Company](); err != nil {
		tx.Rollback()
		return nil, err
	}
	return &result, tx.Commit().Error
}

func GetCompanyById(ctx context.Context, id string) (*Company, error) {

	var result Company

	exists, err := config.GetRedisObject("Company:"+id, &result)
	if err != nil {
		return nil, err
	}

	if !exists {
		db := config.GetDB()
		// db query
		err := db.WithContext(ctx).Where("id = ?", id).First(&result).Error
		if err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		// caching
		if err := result.StoreRedis(); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

func GetCompany(ctx context.Context) (*Company, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return GetCompanyById(ctx, companyId)
}

// GetCompanyById2 reads through a worker transaction without requiring the
// company id in context.
func GetCompanyById2(tx *gorm.DB, id string) (*Company, error) {

	var result Company

	exists, err := config.GetRedisObject("Company:"+id, &result)
	if err != nil {
		return nil, err
	}

	if !exists {
		err := tx.Where("id = ?", id).First(&result).Error
		if err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		if err := result.StoreRedis(); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

func GetCompanies(ctx context.Context, name *string) ([]*Company, error) {

	// the unfiltered admin listing is cached; mutations clear it via ClearRedisAdmin
	if name == nil || *name == "" {
		return ListAllAdmin[Company](ctx, "name")
	}

	db := config.GetDB()
	var results []*Company
	err := db.WithContext(ctx).
		Where("name LIKE ?", "%"+*name+"%").
		Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
