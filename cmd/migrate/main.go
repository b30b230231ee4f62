// migrate runs the GORM auto-migration for every ledger table.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/migrate
package main

import (
	"fmt"
	"os"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
)

func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()
	fmt.Println("Migration complete")
}
