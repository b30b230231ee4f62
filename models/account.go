package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// System default account codes. Seeded per company at creation time and
// resolved through GetSystemAccounts; workflows that need a well-known
// account (bank fees for splits, AR/AP for document coding) look them up
// by these codes instead of hardcoding ids.
const (
	AccountCodeBank               = "BNK"
	AccountCodeAccountsReceivable = "AR"
	AccountCodeAccountsPayable    = "AP"
	AccountCodeTaxPayable         = "TAX"
	AccountCodeRetainedEarnings   = "RE"
	AccountCodeSales              = "SLS"
	AccountCodeOtherIncome        = "OI"
	AccountCodeBankFees           = "FEE"
	AccountCodeGeneralExpense     = "EXP"
)

type Account struct {
	ID                int         `gorm:"primary_key" json:"id"`
	CompanyId         string      `gorm:"index;not null" json:"company_id"`
	Type              AccountType `gorm:"type:enum('Asset', 'Liability', 'Equity', 'Income', 'Expense');default:'Expense';index;size:10;not null" json:"type" binding:"required"`
	Code              string      `gorm:"index;size:20;not null" json:"code" binding:"required"`
	Name              string      `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Description       string      `gorm:"type:text" json:"description"`
	ParentAccountId   int         `gorm:"index;not null" json:"parent_account_id"`
	IsBankAccount     *bool       `gorm:"not null;default:false;index" json:"is_bank_account"`
	CurrencyCode      string      `gorm:"size:3" json:"currency_code"`
	TaxCode           string      `gorm:"size:20" json:"tax_code"`
	IsActive          *bool       `gorm:"not null;default:true" json:"is_active"`
	IsSystemDefault   *bool       `gorm:"not null;default:false" json:"is_system_default"`
	SystemDefaultCode string      `gorm:"index;size:3" json:"system_default_code"`
	CreatedAt         time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	Type            AccountType `json:"type" binding:"required"`
	Code            string      `json:"code" binding:"required"`
	Name            string      `json:"name" binding:"required"`
	Description     string      `json:"description"`
	ParentAccountId int         `json:"parent_account_id"`
	IsBankAccount   *bool       `json:"is_bank_account"`
	CurrencyCode    string      `json:"currency_code"`
	TaxCode         string      `json:"tax_code"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewAccount) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if id == input.ParentAccountId {
			return &InvalidArgumentError{Field: "parent_account_id", Reason: "self-parent not allowed"}
		}
		if err := utils.ValidateResourceId[Account](ctx, companyId, id); err != nil {
			return err
		}
	}
	// name
	if err := utils.ValidateUnique[Account](ctx, companyId, "name", input.Name, id); err != nil {
		return err
	}
	// code
	if err := utils.ValidateUnique[Account](ctx, companyId, "code", input.Code, id); err != nil {
		return err
	}

	if input.CurrencyCode != "" && len(input.CurrencyCode) != 3 {
		return &InvalidArgumentError{Field: "currency_code", Reason: "must be a 3-letter ISO code"}
	}

	if input.ParentAccountId > 0 {
		if err := utils.ValidateResourceId[Account](ctx, companyId, input.ParentAccountId); err != nil {
			return errors.New("parent not found")
		}
		// walk the parent chain; reaching the account itself means the
		// update would close a loop in the tree
		if id > 0 {
			current := input.ParentAccountId
			for depth := 0; current > 0; depth++ {
				if current == id {
					return &InvalidArgumentError{Field: "parent_account_id", Reason: "account cannot be its own ancestor"}
				}
				if depth > 100 {
					return &InvalidArgumentError{Field: "parent_account_id", Reason: "account tree too deep"}
				}
				parent, err := utils.FetchModel[Account](ctx, companyId, current)
				if err != nil {
					return errors.New("parent not found")
				}
				current = parent.ParentAccountId
			}
		}
	}
	return nil
}

func CreateAccount(ctx context.Context, input *NewAccount) (*Account, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	isBank := false
	if input.IsBankAccount != nil {
		isBank = *input.IsBankAccount
	}

	account := Account{
		CompanyId:       companyId,
		Type:            input.Type,
		Code:            input.Code,
		Name:            input.Name,
		Description:     input.Description,
		ParentAccountId: input.ParentAccountId,
		IsBankAccount:   &isBank,
		CurrencyCode:    input.CurrencyCode,
		TaxCode:         input.TaxCode,
		IsActive:        utils.NewTrue(),
		IsSystemDefault: utils.NewFalse(),
	}

	if account.CurrencyCode == "" {
		company, err := GetCompanyById(ctx, companyId)
		if err != nil {
			return nil, err
		}
		account.CurrencyCode = company.BaseCurrencyCode
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&account).Error
	if err != nil {
		return nil, err
	}
	if err := account.RemoveAllRedis(); err != nil {
		return nil, err
	}
	return &account, nil
}

func UpdateAccount(ctx context.Context, id int, input *NewAccount) (*Account, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	account, err := utils.FetchModel[Account](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if input.Type != account.Type || (input.CurrencyCode != "" && input.CurrencyCode != account.CurrencyCode) {
		var count int64
		if err := db.WithContext(ctx).Model(&TransactionLine{}).Where("account_id = ?", account.ID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, errors.New("not allowed to change account type or currency when transaction lines exist")
		}
	}

	updates := map[string]interface{}{
		"Name":        input.Name,
		"Code":        input.Code,
		"Description": input.Description,
		"TaxCode":     input.TaxCode,
	}

	if !*account.IsSystemDefault {
		updates["Type"] = input.Type
		if input.CurrencyCode != "" {
			updates["CurrencyCode"] = input.CurrencyCode
		}
		if input.ParentAccountId > 0 {
			updates["ParentAccountId"] = input.ParentAccountId
		}
		if input.IsBankAccount != nil {
			updates["IsBankAccount"] = *input.IsBankAccount
		}
	}

	err = db.WithContext(ctx).Model(&account).Updates(updates).Error
	if err != nil {
		return nil, err
	}
	if err := RemoveRedisBoth(*account); err != nil {
		return nil, err
	}

	return account, nil
}

func MarkAccountActive(ctx context.Context, id int, isActive bool) (*Account, error) {

	db := config.GetDB()
	var main *Account

	err := db.WithContext(ctx).First(&main, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	tx := db.Begin()
	err = markChildAccountsActive(tx, ctx, main, isActive)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	if err := RemoveRedisBoth(*main); err != nil {
		return nil, err
	}
	return main, nil
}

func markChildAccountsActive(tx *gorm.DB, ctx context.Context, main *Account, isActive bool) error {
	err := tx.WithContext(ctx).Model(&main).Updates(Account{
		IsActive: &isActive,
	}).Error
	if err != nil {
		return err
	}

	// find & update child accounts
	var children []*Account
	err = tx.WithContext(ctx).Where("parent_account_id = ?", main.ID).Find(&children).Error
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := markChildAccountsActive(tx, ctx, child, isActive); err != nil {
			return err
		}
		if err := utils.RemoveRedisItem[Account](child.ID); err != nil {
			return err
		}
	}
	return nil
}

func DeleteAccount(ctx context.Context, id int) (*Account, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()

	result, err := utils.FetchModel[Account](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	if result.IsSystemDefault != nil && *result.IsSystemDefault {
		return nil, errors.New("cannot delete system-default account")
	}

	var count int64
	if err := db.WithContext(ctx).Model(&Account{}).
		Where("parent_account_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("this account has child account(s)")
	}

	// lines of posted or reversed transactions pin the account forever
	if err := db.WithContext(ctx).Model(&TransactionLine{}).
		Joins("JOIN transactions ON transactions.id = transaction_lines.transaction_id").
		Where("transaction_lines.account_id = ?", id).
		Where("transactions.status <> ?", TransactionStatusDraft).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("this account has posted transaction lines")
	}

	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	if err := RemoveRedisBoth(*result); err != nil {
		return nil, err
	}

	return result, nil
}

func GetAccount(ctx context.Context, id int) (*Account, error) {

	return GetResource[Account](ctx, id)
}

func GetAccounts(ctx context.Context, name *string, code *string) ([]*Account, error) {

	db := config.GetDB()
	var results []*Account

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if code != nil && len(*code) > 0 {
		dbCtx = dbCtx.Where("code LIKE ?", "%"+*code+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListAllAccounts is the redis-cached full chart for the current company.
func ListAllAccounts(ctx context.Context) ([]*Account, error) {
	return ListAllResource[Account](ctx, "name")
}

func GetBankAccounts(ctx context.Context) ([]*Account, error) {

	db := config.GetDB()
	var results []*Account

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	err := db.WithContext(ctx).Where("company_id = ?", companyId).
		Where("is_bank_account = ?", true).
		Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetSystemAccounts(companyId string) (map[string]int, error) {
	var accounts []*Account
	var sysAccounts map[string]int

	exists, err := config.GetRedisObject("SystemAccounts:"+companyId, &sysAccounts)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		companyUuid, err := uuid.Parse(companyId)
		if err != nil {
			return nil, err
		}
		if err := db.Select("id", "system_default_code").Where("company_id = ?", companyUuid).Where("is_system_default = ?", true).Find(&accounts).Error; err != nil {
			return nil, err
		}
		sysAccounts = make(map[string]int)
		for _, acc := range accounts {
			sysAccounts[acc.SystemDefaultCode] = acc.ID
		}
		if err := config.SetRedisObject("SystemAccounts:"+companyId, &sysAccounts, 0); err != nil {
			return nil, err
		}
	}
	return sysAccounts, nil
}
