package models

import (
	"context"

	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"gorm.io/gorm"
)

type defaultAccount struct {
	Type              AccountType
	Code              string
	Name              string
	Description       string
	IsBankAccount     bool
	SystemDefaultCode string
}

func GetDefaultChartOfAccounts() []defaultAccount {
	return []defaultAccount{
		{Type: AccountTypeAsset, Code: "1000", Name: "Business Bank Account", Description: "Primary operating bank account", IsBankAccount: true, SystemDefaultCode: AccountCodeBank},
		{Type: AccountTypeAsset, Code: "1100", Name: "Accounts Receivable", Description: "Amounts owed by customers", SystemDefaultCode: AccountCodeAccountsReceivable},
		{Type: AccountTypeLiability, Code: "2000", Name: "Accounts Payable", Description: "Amounts owed to suppliers", SystemDefaultCode: AccountCodeAccountsPayable},
		{Type: AccountTypeLiability, Code: "2100", Name: "Tax Payable", Description: "Collected tax pending remittance", SystemDefaultCode: AccountCodeTaxPayable},
		{Type: AccountTypeEquity, Code: "3000", Name: "Retained Earnings", Description: "Accumulated earnings", SystemDefaultCode: AccountCodeRetainedEarnings},
		{Type: AccountTypeIncome, Code: "4000", Name: "Sales", Description: "Revenue from sales", SystemDefaultCode: AccountCodeSales},
		{Type: AccountTypeIncome, Code: "4100", Name: "Other Income", Description: "Interest and sundry income", SystemDefaultCode: AccountCodeOtherIncome},
		{Type: AccountTypeExpense, Code: "5000", Name: "Bank Fees", Description: "Bank service charges", SystemDefaultCode: AccountCodeBankFees},
		{Type: AccountTypeExpense, Code: "5100", Name: "General Expenses", Description: "Uncategorized operating expenses", SystemDefaultCode: AccountCodeGeneralExpense},
	}
}

func CreateDefaultAccounts(tx *gorm.DB, ctx context.Context, companyId string) error {

	chartOfAccounts := GetDefaultChartOfAccounts()

	for _, data := range chartOfAccounts {
		isBank := data.IsBankAccount
		account := Account{
			CompanyId:         companyId,
			Type:              data.Type,
			Code:              data.Code,
			Name:              data.Name,
			Description:       data.Description,
			IsBankAccount:     &isBank,
			IsActive:          utils.NewTrue(),
			IsSystemDefault:   utils.NewTrue(),
			SystemDefaultCode: data.SystemDefaultCode,
		}

		if err := tx.WithContext(ctx).Create(&account).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	return nil
}

func GetTransactionNumberSeriesDefault() *NewTransactionNumberSeries {
	return &NewTransactionNumberSeries{
		Name: "Default Series",
		Modules: []NewTransactionNumberSeriesModule{
			{ModuleName: NumberModuleReceipt, Prefix: "RCT-"},
			{ModuleName: NumberModulePayment, Prefix: "PAY-"},
			{ModuleName: NumberModuleJournal, Prefix: "JRN-"},
			{ModuleName: NumberModuleTransfer, Prefix: "TRF-"},
			{ModuleName: NumberModuleInvoice, Prefix: "INV-"},
			{ModuleName: NumberModuleBill, Prefix: "BIL-"},
		},
	}
}

func CreateDefaultTransactionNumberSeries(tx *gorm.DB, ctx context.Context, input *NewTransactionNumberSeries, companyId string) (*TransactionNumberSeries, error) {

	modules := make([]TransactionNumberSeriesModule, 0)
	for _, m := range input.Modules {
		modules = append(modules, TransactionNumberSeriesModule{
			ModuleName: m.ModuleName,
			Prefix:     m.Prefix,
		})
	}

	series := TransactionNumberSeries{
		CompanyId: companyId,
		Name:      input.Name,
		Modules:   modules,
	}

	err := tx.WithContext(ctx).Create(&series).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return &series, nil
}
