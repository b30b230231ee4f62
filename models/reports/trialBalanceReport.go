package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// GetTrialBalanceReport nets every account's lines from posted and reversed
// transactions dated on or before toDate, interpreted as end of day in the
// company timezone. Reversed originals stay in the sums; their reversal
// transactions carry the offsetting legs, so a reversed pair nets to zero.
func GetTrialBalanceReport(ctx context.Context, toDate models.MyDateString) (*models.TrialBalanceReport, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	company, err := models.GetCompany(ctx)
	if err != nil {
		return nil, err
	}
	if err := toDate.EndOfDayUTCTime(company.Timezone); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("Report:TrialBalance:%s:%s", companyId, time.Time(toDate).Format("2006-01-02T15"))
	if reportCacheEnabled() {
		var cached models.TrialBalanceReport
		if hit, err := cacheGet(cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}
	started := time.Now()

	db := config.GetDB()
	rows, err := db.WithContext(ctx).Raw(`
		SELECT
			a.id           AS account_id,
			a.type         AS account_type,
			a.code         AS account_code,
			a.name         AS account_name,
			CASE WHEN t1.net >= 0 THEN t1.net ELSE 0 END      AS debit,
			CASE WHEN t1.net < 0 THEN ABS(t1.net) ELSE 0 END  AS credit
		FROM (
			SELECT
				l.account_id,
				SUM(CASE WHEN l.direction = 'Debit' THEN l.amount ELSE -l.amount END) AS net
			FROM
				transaction_lines AS l
				JOIN transactions AS t ON t.id = l.transaction_id
			WHERE
				t.company_id = ?
				AND t.status IN ('Posted', 'Reversed')
				AND t.date <= ?
			GROUP BY
				l.account_id
		) AS t1
		JOIN accounts AS a ON a.id = t1.account_id
		ORDER BY
			CASE a.type
				WHEN 'Asset' THEN 1
				WHEN 'Liability' THEN 2
				WHEN 'Equity' THEN 3
				WHEN 'Income' THEN 4
				ELSE 5
			END,
			a.code
	`, companyId, time.Time(toDate)).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := models.TrialBalanceReport{
		AsOfDate:    time.Time(toDate),
		TotalDebit:  decimal.NewFromInt(0),
		TotalCredit: decimal.NewFromInt(0),
	}
	for rows.Next() {
		var row models.TrialBalanceRow
		if err := rows.Scan(
			&row.AccountId,
			&row.AccountType,
			&row.AccountCode,
			&row.AccountName,
			&row.Debit,
			&row.Credit,
		); err != nil {
			return nil, err
		}
		report.Rows = append(report.Rows, &row)
		report.TotalDebit = report.TotalDebit.Add(row.Debit)
		report.TotalCredit = report.TotalCredit.Add(row.Credit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logSlowReport(ctx, "trial_balance", started, map[string]any{"rows": len(report.Rows)})
	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, &report, reportCacheTTL())
	}
	return &report, nil
}
