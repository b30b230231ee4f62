package models

import (
	"log"

	"bitbucket.org/quartzbooks/ledger_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Company{}, &User{}, &Contact{},
		&Account{},
		&Transaction{}, &TransactionLine{},
		&Invoice{}, &Bill{},
		&ReceivableAllocation{}, &PayableAllocation{},
		&AllocationRule{},
		&BankFeedBatch{}, &BankFeedItem{}, &ReconciliationMatch{},
		&TransactionNumberSeries{}, &TransactionNumberSeriesModule{},
		&AccountDailyBalance{},
		&PeriodLockingRecord{},
		&Attachment{},
		&IntegrityFinding{},
		&AuditLog{},
		&PubSubMessageRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
