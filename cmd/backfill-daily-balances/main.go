// backfill-daily-balances drops and recomputes the account_daily_balances
// projection from posted transaction lines.
//
// Usage:
//
//	go run ./cmd/backfill-daily-balances                 # all companies
//	go run ./cmd/backfill-daily-balances -company-id=... # one company
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/workflow"
	"gorm.io/gorm"
)

func main() {
	companyID := flag.String("company-id", "", "Optional: rebuild only one company (uuid string). If empty, rebuilds all companies.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	logger := config.GetLogger()

	var companies []models.Company
	query := db.WithContext(ctx).Model(&models.Company{})
	if strings.TrimSpace(*companyID) != "" {
		query = query.Where("id = ?", strings.TrimSpace(*companyID))
	}
	if err := query.Find(&companies).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list companies: %v\n", err)
		os.Exit(1)
	}
	if len(companies) == 0 {
		fmt.Fprintln(os.Stderr, "no companies found to rebuild")
		return
	}

	for _, company := range companies {
		cid := company.ID.String()
		var accounts int
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			accounts, err = workflow.RebuildDailyBalances(tx, logger, cid, company.Timezone)
			return err
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "company %s rebuild failed: %v\n", cid, err)
			continue
		}
		fmt.Printf("Rebuilt daily balances company=%s accounts=%d\n", cid, accounts)
	}

	fmt.Println("Backfill complete")
}
