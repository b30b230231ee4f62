// seed-dev provisions a development company with a small, realistic ledger:
// contacts, an open invoice and bill, a posted receipt allocated against the
// invoice, a draft payment, an allocation rule, and an imported bank feed
// batch so the reconciliation screens have work to do.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"bitbucket.org/quartzbooks/ledger_backend/workflow"
	"github.com/shopspring/decimal"
)

const seedCompanyName = "Quartz Dev Co"

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", step, err)
	os.Exit(1)
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	name := seedCompanyName
	existing, err := models.GetCompanies(ctx, &name)
	if err != nil {
		fail("company lookup", err)
	}
	if len(existing) > 0 {
		fmt.Printf("Company %q already exists (id=%s); nothing to do\n", name, existing[0].ID)
		return
	}

	company, err := models.CreateCompany(ctx, &models.NewCompany{
		Name:             seedCompanyName,
		ContactName:      "Dev Owner",
		Email:            "dev@quartzbooks.local",
		BaseCurrencyCode: "USD",
		Timezone:         "UTC",
	})
	if err != nil {
		fail("create company", err)
	}
	companyId := company.ID.String()
	ctx = utils.SetCompanyIdInContext(ctx, companyId)
	fmt.Printf("Created company %q (id=%s)\n", company.Name, companyId)

	sysAccounts, err := models.GetSystemAccounts(companyId)
	if err != nil {
		fail("system accounts", err)
	}
	bankId := sysAccounts[models.AccountCodeBank]
	arId := sysAccounts[models.AccountCodeAccountsReceivable]
	apId := sysAccounts[models.AccountCodeAccountsPayable]
	expenseId := sysAccounts[models.AccountCodeGeneralExpense]

	customer, err := models.CreateContact(ctx, &models.NewContact{
		Type:  models.ContactTypeCustomer,
		Name:  "Acme Trading",
		Email: "billing@acme.test",
	})
	if err != nil {
		fail("create customer", err)
	}
	supplier, err := models.CreateContact(ctx, &models.NewContact{
		Type:  models.ContactTypeSupplier,
		Name:  "Office Supplies Co",
		Email: "accounts@officesupplies.test",
	})
	if err != nil {
		fail("create supplier", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	dueDate := today.AddDate(0, 0, 14)

	invoice, err := models.CreateInvoice(ctx, &models.NewInvoice{
		ContactId: customer.ID,
		IssueDate: today.AddDate(0, 0, -7),
		DueDate:   &dueDate,
		Reference: "SO-1001",
		Total:     decimal.NewFromInt(500),
	})
	if err != nil {
		fail("create invoice", err)
	}
	_, err = models.CreateBill(ctx, &models.NewBill{
		ContactId: supplier.ID,
		IssueDate: today.AddDate(0, 0, -3),
		Reference: "INV-8842",
		Total:     decimal.NewFromFloat(120.50),
	})
	if err != nil {
		fail("create bill", err)
	}

	// Posted receipt: customer pays part of the invoice through the bank.
	receipt, err := models.CreateTransaction(ctx, &models.NewTransaction{
		Type:        models.TransactionTypeReceipt,
		Date:        today.AddDate(0, 0, -2),
		Description: "Payment from Acme Trading",
		Reference:   "SO-1001",
		ContactId:   customer.ID,
		Lines: []models.NewTransactionLine{
			{AccountId: bankId, Amount: decimal.NewFromInt(300), Direction: models.LineDirectionDebit},
			{AccountId: arId, Amount: decimal.NewFromInt(300), Direction: models.LineDirectionCredit},
		},
	})
	if err != nil {
		fail("create receipt", err)
	}
	if _, err := workflow.PostTransaction(ctx, receipt.ID); err != nil {
		fail("post receipt", err)
	}
	if _, err := workflow.AllocateReceivable(ctx, receipt.ID, invoice.ID, decimal.NewFromInt(300)); err != nil {
		fail("allocate receipt", err)
	}

	// Draft payment left for the posting screens.
	_, err = models.CreateTransaction(ctx, &models.NewTransaction{
		Type:        models.TransactionTypePayment,
		Date:        today,
		Description: "Office supplies settlement",
		ContactId:   supplier.ID,
		Lines: []models.NewTransactionLine{
			{AccountId: apId, Amount: decimal.NewFromFloat(120.50), Direction: models.LineDirectionDebit},
			{AccountId: bankId, Amount: decimal.NewFromFloat(120.50), Direction: models.LineDirectionCredit},
		},
	})
	if err != nil {
		fail("create draft payment", err)
	}

	_, err = models.CreateAllocationRule(ctx, &models.NewAllocationRule{
		Name:            "Coffee supplies",
		MatchExpression: "COFFEE",
		TargetAccountId: expenseId,
		MemoTemplate:    "Coffee run {description}",
		Priority:        10,
	})
	if err != nil {
		fail("create allocation rule", err)
	}

	batch, err := workflow.ImportBankFeed(ctx, &workflow.NewBankFeedImport{
		BankAccountId: bankId,
		SourceName:    "seed-dev",
		Items: []workflow.NewBankFeedRow{
			{PostedDate: today.AddDate(0, 0, -2), Amount: decimal.NewFromInt(300), Description: "ACME TRADING TRANSFER", Reference: "SO-1001"},
			{PostedDate: today.AddDate(0, 0, -1), Amount: decimal.NewFromFloat(-12.40), Description: "COFFEE SUPPLY DOWNTOWN"},
			{PostedDate: today, Amount: decimal.NewFromFloat(-120.50), Description: "OFFICE SUPPLIES CO"},
		},
	})
	if err != nil {
		fail("import bank feed", err)
	}

	fmt.Printf("Seeded: invoice=%s receipt=%s feed_batch=%d items=%d\n",
		invoice.Number, receipt.Number, batch.ID, batch.NewCount)
	fmt.Println("Owner login was created with a random password; run ./cmd/seed-admin and use the admin endpoints, or reset it directly in the users table.")
}
