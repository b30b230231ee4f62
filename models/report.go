package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report view structs. These are query projections, not tables.

type TrialBalanceRow struct {
	AccountId   int             `json:"account_id"`
	AccountType string          `json:"account_type"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// TrialBalanceReport nets each account's posted lines as of a date. A ledger
// that satisfies the per-transaction balance invariant always reports
// TotalDebit == TotalCredit.
type TrialBalanceReport struct {
	AsOfDate    time.Time          `json:"as_of_date"`
	Rows        []*TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal    `json:"total_debit"`
	TotalCredit decimal.Decimal    `json:"total_credit"`
}

type AccountActivityReport struct {
	AccountId      int                    `json:"account_id"`
	AccountCode    string                 `json:"account_code"`
	AccountName    string                 `json:"account_name"`
	FromDate       *time.Time             `json:"from_date"`
	ToDate         *time.Time             `json:"to_date"`
	OpeningBalance decimal.Decimal        `json:"opening_balance"`
	Days           []*AccountDailyBalance `json:"days"`
	ClosingBalance decimal.Decimal        `json:"closing_balance"`
}

// ReconciliationSummary is the reconciliation worklist state of one bank
// account: imported statement line counts by status plus the unreconciled
// remainder.
type ReconciliationSummary struct {
	BankAccountId     int             `json:"bank_account_id"`
	BankAccountCode   string          `json:"bank_account_code"`
	BankAccountName   string          `json:"bank_account_name"`
	TotalCount        int             `json:"total_count"`
	NewCount          int             `json:"new_count"`
	MatchedCount      int             `json:"matched_count"`
	CreatedCount      int             `json:"created_count"`
	IgnoredCount      int             `json:"ignored_count"`
	SplitCount        int             `json:"split_count"`
	UnreconciledTotal decimal.Decimal `json:"unreconciled_total"`
	UnreconciledItems []*BankFeedItem `json:"unreconciled_items"`
}
