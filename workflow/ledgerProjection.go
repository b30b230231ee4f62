package workflow

import (
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RefreshDailyBalances recomputes account_daily_balances buckets for the given
// accounts from sinceDateTime forward. Day buckets use the company timezone.
// Running balances are seeded from the last bucket before the window, so only
// the affected range is rewritten.
//
// Reversed originals keep contributing to the sums; the reversal transaction
// carries the offsetting legs.
func RefreshDailyBalances(tx *gorm.DB, logger *logrus.Logger, companyId string, timezone string, accountIds []int, sinceDateTime time.Time) error {
	if len(accountIds) == 0 {
		return nil
	}
	if timezone == "" {
		timezone = "UTC"
	}

	var lastDailyBalances []*models.AccountDailyBalance
	err := tx.Raw(`
	WITH LatestValues AS (
		SELECT
			*,
			ROW_NUMBER() OVER (PARTITION BY account_id ORDER BY transaction_date DESC) AS rn
		FROM
			account_daily_balances
		WHERE company_id = ? AND account_id IN ? AND transaction_date < DATE(CONVERT_TZ(?, 'UTC', ?))
	)
	SELECT
		*
	FROM
		LatestValues
	WHERE
		rn = 1
	`, companyId, accountIds, sinceDateTime, timezone).Find(&lastDailyBalances).Error
	if err != nil {
		return err
	}

	for _, accountId := range accountIds {

		prevBalance := decimal.NewFromInt(0)

		for _, balance := range lastDailyBalances {
			if balance.AccountId == accountId {
				prevBalance = balance.RunningBalance
				break
			}
		}

		err = tx.Exec(`
		INSERT INTO account_daily_balances (company_id, account_id, transaction_date,
			debit, credit, balance, running_balance)
	SELECT * FROM (
		SELECT *, t1.total_debit - t1.total_credit AS total,
		? + SUM(t1.total_debit - t1.total_credit) OVER (PARTITION BY company_id, account_id ORDER BY transaction_date) AS running_total
	FROM
	(SELECT
		t.company_id,
		l.account_id,
		DATE(CONVERT_TZ(t.date, 'UTC', ?)) AS transaction_date,
		SUM(CASE WHEN l.direction = 'Debit' THEN l.amount ELSE 0 END) AS total_debit,
		SUM(CASE WHEN l.direction = 'Credit' THEN l.amount ELSE 0 END) AS total_credit
	FROM
		transaction_lines AS l
		JOIN transactions AS t ON t.id = l.transaction_id
	WHERE
		t.company_id = ?
		AND l.account_id = ?
		AND t.status IN ('Posted', 'Reversed')
		AND DATE(CONVERT_TZ(t.date, 'UTC', ?)) >= DATE(CONVERT_TZ(?, 'UTC', ?))
	GROUP BY
		t.company_id,
		l.account_id,
		transaction_date
	) AS t1
	) AS t
	ON DUPLICATE KEY UPDATE debit = total_debit, credit = total_credit, balance = total, running_balance = running_total
			`, prevBalance, timezone, companyId, accountId, timezone, sinceDateTime, timezone).Error
		if err != nil {
			return err
		}
	}

	return deleteStaleDailyBalances(tx, timezone, companyId, accountIds, sinceDateTime)
}

// Remove day buckets whose ledger activity disappeared (rebuilds, timezone changes).
func deleteStaleDailyBalances(tx *gorm.DB, timezone string, companyId string, accountIds []int, sinceDateTime time.Time) error {
	return tx.Exec(`
	DELETE adb
FROM account_daily_balances AS adb
LEFT JOIN (
	SELECT
		l.account_id,
		DATE(CONVERT_TZ(t.date, 'UTC', ?)) AS transaction_date
	FROM transaction_lines AS l
	JOIN transactions AS t ON t.id = l.transaction_id
	WHERE t.company_id = ? AND l.account_id IN ? AND t.status IN ('Posted', 'Reversed')
	GROUP BY l.account_id, transaction_date
) AS act
	ON act.account_id = adb.account_id
	AND act.transaction_date = adb.transaction_date
WHERE
	adb.company_id = ? AND adb.account_id IN ?
	AND adb.transaction_date >= DATE(CONVERT_TZ(?, 'UTC', ?)) AND act.transaction_date IS NULL;
		`, timezone, companyId, accountIds, companyId, accountIds, sinceDateTime, timezone).Error
}

// RebuildDailyBalances drops and recomputes the whole projection for a company.
// Returns the number of accounts rebuilt.
func RebuildDailyBalances(tx *gorm.DB, logger *logrus.Logger, companyId string, timezone string) (int, error) {
	if err := tx.Where("company_id = ?", companyId).Delete(&models.AccountDailyBalance{}).Error; err != nil {
		return 0, err
	}

	var accountIds []int
	err := tx.Model(&models.TransactionLine{}).
		Distinct("transaction_lines.account_id").
		Joins("JOIN transactions AS t ON t.id = transaction_lines.transaction_id").
		Where("transaction_lines.company_id = ? AND t.status IN ?", companyId,
			[]models.TransactionStatus{models.TransactionStatusPosted, models.TransactionStatusReversed}).
		Pluck("transaction_lines.account_id", &accountIds).Error
	if err != nil {
		return 0, err
	}
	if len(accountIds) == 0 {
		return 0, nil
	}

	var earliest *time.Time
	err = tx.Model(&models.Transaction{}).
		Where("company_id = ? AND status IN ?", companyId,
			[]models.TransactionStatus{models.TransactionStatusPosted, models.TransactionStatusReversed}).
		Select("MIN(date)").
		Scan(&earliest).Error
	if err != nil {
		return 0, err
	}
	if earliest == nil {
		return 0, nil
	}

	if err := RefreshDailyBalances(tx, logger, companyId, timezone, accountIds, *earliest); err != nil {
		return 0, err
	}
	return len(accountIds), nil
}
