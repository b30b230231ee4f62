package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunIntegrityChecks sweeps one company's books for drift and writes a row to
// integrity_findings per mismatch. Intended to run nightly or via the admin
// trigger; all findings of one run share a correlation id.
//
// The sweeps are read-only over the source tables. Nothing is repaired here;
// findings point an operator at the entity to fix (usually via outbox replay
// or a projection rebuild).
func RunIntegrityChecks(ctx context.Context, companyId string) (correlationId string, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	db := config.GetDB()
	if db == nil {
		return "", fmt.Errorf("db is nil")
	}
	logger := config.GetLogger()

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	now := time.Now().UTC()

	company, err := models.GetCompanyById2(db.WithContext(ctx), companyId)
	if err != nil {
		return cid, err
	}
	timezone := company.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	counts := map[string]int{}
	record := func(checkType, entityType string, entityId int, details string) {
		counts[checkType]++
		_ = db.WithContext(ctx).Create(&models.IntegrityFinding{
			CompanyId:     companyId,
			CheckType:     checkType,
			EntityType:    entityType,
			EntityId:      entityId,
			Details:       details,
			CorrelationId: cid,
			CreatedAt:     now,
		}).Error
	}

	// 1) Posted/Reversed transactions must balance.
	type unbalancedRow struct {
		ID          int
		DebitTotal  string
		CreditTotal string
	}
	var unbalanced []unbalancedRow
	if err := db.WithContext(ctx).Raw(`
		SELECT
			t.id,
			CAST(SUM(CASE WHEN l.direction = 'Debit' THEN l.amount ELSE 0 END) AS CHAR) AS debit_total,
			CAST(SUM(CASE WHEN l.direction = 'Credit' THEN l.amount ELSE 0 END) AS CHAR) AS credit_total
		FROM transactions t
		JOIN transaction_lines l ON l.transaction_id = t.id
		WHERE t.company_id = ? AND t.status IN ('Posted', 'Reversed')
		GROUP BY t.id
		HAVING ROUND(SUM(CASE WHEN l.direction = 'Debit' THEN l.amount ELSE 0 END), 4)
			<> ROUND(SUM(CASE WHEN l.direction = 'Credit' THEN l.amount ELSE 0 END), 4)
	`, companyId).Scan(&unbalanced).Error; err != nil {
		return cid, err
	}
	for _, r := range unbalanced {
		record("UNBALANCED_TRANSACTION", "Transaction", r.ID,
			fmt.Sprintf("sum(debits)=%s != sum(credits)=%s", r.DebitTotal, r.CreditTotal))
	}

	// 2) Reversal linkage must hold both ways.
	type idRow struct{ ID int }
	var brokenReversed []idRow
	if err := db.WithContext(ctx).Raw(`
		SELECT t.id
		FROM transactions t
		LEFT JOIN transactions r ON r.id = t.reversed_by_transaction_id
		WHERE t.company_id = ? AND t.status = 'Reversed'
		  AND (t.reversed_by_transaction_id IS NULL
			   OR r.id IS NULL
			   OR r.reverses_transaction_id IS NULL
			   OR r.reverses_transaction_id <> t.id)
	`, companyId).Scan(&brokenReversed).Error; err != nil {
		return cid, err
	}
	for _, r := range brokenReversed {
		record("REVERSAL_LINK", "Transaction", r.ID,
			"reversed transaction has no valid back-reference to its reversal")
	}

	var danglingReversals []idRow
	if err := db.WithContext(ctx).Raw(`
		SELECT t.id
		FROM transactions t
		LEFT JOIN transactions o ON o.id = t.reverses_transaction_id
		WHERE t.company_id = ? AND t.is_reversal = 1
		  AND (t.reverses_transaction_id IS NULL OR o.id IS NULL OR o.status <> 'Reversed')
	`, companyId).Scan(&danglingReversals).Error; err != nil {
		return cid, err
	}
	for _, r := range danglingReversals {
		record("REVERSAL_LINK", "Transaction", r.ID,
			"reversal transaction does not point at a reversed original")
	}

	// 3) Allocations must hang off posted source transactions.
	type orphanRow struct {
		ID            int
		TransactionId int
	}
	var orphanReceivable []orphanRow
	if err := db.WithContext(ctx).Raw(`
		SELECT a.id, a.transaction_id
		FROM receivable_allocations a
		LEFT JOIN transactions t ON t.id = a.transaction_id
		WHERE a.company_id = ? AND (t.id IS NULL OR t.status <> 'Posted')
	`, companyId).Scan(&orphanReceivable).Error; err != nil {
		return cid, err
	}
	for _, r := range orphanReceivable {
		record("ORPHAN_ALLOCATION", "ReceivableAllocation", r.ID,
			fmt.Sprintf("source transaction %d is missing or not posted", r.TransactionId))
	}

	var orphanPayable []orphanRow
	if err := db.WithContext(ctx).Raw(`
		SELECT a.id, a.transaction_id
		FROM payable_allocations a
		LEFT JOIN transactions t ON t.id = a.transaction_id
		WHERE a.company_id = ? AND (t.id IS NULL OR t.status <> 'Posted')
	`, companyId).Scan(&orphanPayable).Error; err != nil {
		return cid, err
	}
	for _, r := range orphanPayable {
		record("ORPHAN_ALLOCATION", "PayableAllocation", r.ID,
			fmt.Sprintf("source transaction %d is missing or not posted", r.TransactionId))
	}

	// 4) No document may be allocated past its total.
	type overrunRow struct {
		ID        int
		DocTotal  string
		Allocated string
	}
	var invoiceOverruns []overrunRow
	if err := db.WithContext(ctx).Raw(`
		SELECT i.id, CAST(i.total AS CHAR) AS doc_total, CAST(SUM(a.amount) AS CHAR) AS allocated
		FROM invoices i
		JOIN receivable_allocations a ON a.invoice_id = i.id
		WHERE i.company_id = ?
		GROUP BY i.id
		HAVING ROUND(SUM(a.amount), 4) > ROUND(i.total, 4)
	`, companyId).Scan(&invoiceOverruns).Error; err != nil {
		return cid, err
	}
	for _, r := range invoiceOverruns {
		record("ALLOCATION_OVERRUN", "Invoice", r.ID,
			fmt.Sprintf("allocated=%s exceeds total=%s", r.Allocated, r.DocTotal))
	}

	var billOverruns []overrunRow
	if err := db.WithContext(ctx).Raw(`
		SELECT b.id, CAST(b.total AS CHAR) AS doc_total, CAST(SUM(a.amount) AS CHAR) AS allocated
		FROM bills b
		JOIN payable_allocations a ON a.bill_id = b.id
		WHERE b.company_id = ?
		GROUP BY b.id
		HAVING ROUND(SUM(a.amount), 4) > ROUND(b.total, 4)
	`, companyId).Scan(&billOverruns).Error; err != nil {
		return cid, err
	}
	for _, r := range billOverruns {
		record("ALLOCATION_OVERRUN", "Bill", r.ID,
			fmt.Sprintf("allocated=%s exceeds total=%s", r.Allocated, r.DocTotal))
	}

	// 5) Resolved feed items must link a live transaction and a match row.
	var unlinkedItems []idRow
	if err := db.WithContext(ctx).Raw(`
		SELECT id
		FROM bank_feed_items
		WHERE company_id = ? AND status IN ('Matched', 'Created', 'Split') AND transaction_id IS NULL
	`, companyId).Scan(&unlinkedItems).Error; err != nil {
		return cid, err
	}
	for _, r := range unlinkedItems {
		record("FEED_RESOLUTION", "BankFeedItem", r.ID,
			"resolved feed item has no transaction_id")
	}

	type staleMatchRow struct {
		ID            int
		TransactionId int
	}
	var staleMatches []staleMatchRow
	if err := db.WithContext(ctx).Raw(`
		SELECT i.id, i.transaction_id
		FROM bank_feed_items i
		JOIN transactions t ON t.id = i.transaction_id
		WHERE i.company_id = ? AND i.status IN ('Matched', 'Created', 'Split') AND t.status = 'Reversed'
	`, companyId).Scan(&staleMatches).Error; err != nil {
		return cid, err
	}
	for _, r := range staleMatches {
		record("FEED_RESOLUTION", "BankFeedItem", r.ID,
			fmt.Sprintf("matched transaction %d has been reversed", r.TransactionId))
	}

	var missingMatchRows []idRow
	if err := db.WithContext(ctx).Raw(`
		SELECT i.id
		FROM bank_feed_items i
		LEFT JOIN reconciliation_matches m
			ON m.feed_item_id = i.id AND m.transaction_id = i.transaction_id
		WHERE i.company_id = ? AND i.status IN ('Matched', 'Created', 'Split')
		  AND i.transaction_id IS NOT NULL AND m.id IS NULL
	`, companyId).Scan(&missingMatchRows).Error; err != nil {
		return cid, err
	}
	for _, r := range missingMatchRows {
		record("FEED_RESOLUTION", "BankFeedItem", r.ID,
			"resolved feed item has no reconciliation match row")
	}

	// 6) Daily balance projection vs sum(transaction_lines).
	type driftRow struct {
		AccountId       int
		TransactionDate time.Time
		ProjectedDebit  string
		ProjectedCredit string
		SourceDebit     string
		SourceCredit    string
	}
	var drifts []driftRow
	if err := db.WithContext(ctx).Raw(`
		SELECT
			adb.account_id,
			adb.transaction_date,
			CAST(adb.debit AS CHAR) AS projected_debit,
			CAST(adb.credit AS CHAR) AS projected_credit,
			CAST(COALESCE(src.total_debit, 0) AS CHAR) AS source_debit,
			CAST(COALESCE(src.total_credit, 0) AS CHAR) AS source_credit
		FROM account_daily_balances adb
		LEFT JOIN (
			SELECT
				l.account_id,
				DATE(CONVERT_TZ(t.date, 'UTC', ?)) AS transaction_date,
				SUM(CASE WHEN l.direction = 'Debit' THEN l.amount ELSE 0 END) AS total_debit,
				SUM(CASE WHEN l.direction = 'Credit' THEN l.amount ELSE 0 END) AS total_credit
			FROM transaction_lines l
			JOIN transactions t ON t.id = l.transaction_id
			WHERE t.company_id = ? AND t.status IN ('Posted', 'Reversed')
			GROUP BY l.account_id, transaction_date
		) src ON src.account_id = adb.account_id AND src.transaction_date = adb.transaction_date
		WHERE adb.company_id = ?
		  AND (src.account_id IS NULL
			   OR ROUND(adb.debit, 4) <> ROUND(src.total_debit, 4)
			   OR ROUND(adb.credit, 4) <> ROUND(src.total_credit, 4))
	`, timezone, companyId, companyId).Scan(&drifts).Error; err != nil {
		return cid, err
	}
	for _, r := range drifts {
		record("DAILY_BALANCE_DRIFT", "AccountDailyBalance", r.AccountId,
			fmt.Sprintf("date=%s projected debit/credit=%s/%s != source=%s/%s",
				r.TransactionDate.Format("2006-01-02"), r.ProjectedDebit, r.ProjectedCredit, r.SourceDebit, r.SourceCredit))
	}

	// 7) Stored document status vs allocation-derived status.
	type statusRow struct {
		ID        int
		Status    string
		Total     string
		Allocated string
	}
	var invoiceStatusDrift []statusRow
	if err := db.WithContext(ctx).Raw(`
		SELECT i.id, i.status,
			CAST(i.total AS CHAR) AS total,
			CAST(COALESCE(SUM(a.amount), 0) AS CHAR) AS allocated
		FROM invoices i
		LEFT JOIN receivable_allocations a ON a.invoice_id = i.id
		WHERE i.company_id = ? AND i.status <> 'Void'
		GROUP BY i.id
		HAVING (i.status = 'Paid' AND ROUND(COALESCE(SUM(a.amount), 0), 4) <> ROUND(i.total, 4))
			OR (i.status = 'Open' AND ROUND(COALESCE(SUM(a.amount), 0), 4) > 0)
			OR (i.status = 'Partially Paid'
				AND (ROUND(COALESCE(SUM(a.amount), 0), 4) = 0
					 OR ROUND(COALESCE(SUM(a.amount), 0), 4) >= ROUND(i.total, 4)))
	`, companyId).Scan(&invoiceStatusDrift).Error; err != nil {
		return cid, err
	}
	for _, r := range invoiceStatusDrift {
		record("DOCUMENT_STATUS", "Invoice", r.ID,
			fmt.Sprintf("status=%s disagrees with allocated=%s of total=%s", r.Status, r.Allocated, r.Total))
	}

	var billStatusDrift []statusRow
	if err := db.WithContext(ctx).Raw(`
		SELECT b.id, b.status,
			CAST(b.total AS CHAR) AS total,
			CAST(COALESCE(SUM(a.amount), 0) AS CHAR) AS allocated
		FROM bills b
		LEFT JOIN payable_allocations a ON a.bill_id = b.id
		WHERE b.company_id = ? AND b.status <> 'Void'
		GROUP BY b.id
		HAVING (b.status = 'Paid' AND ROUND(COALESCE(SUM(a.amount), 0), 4) <> ROUND(b.total, 4))
			OR (b.status = 'Open' AND ROUND(COALESCE(SUM(a.amount), 0), 4) > 0)
			OR (b.status = 'Partially Paid'
				AND (ROUND(COALESCE(SUM(a.amount), 0), 4) = 0
					 OR ROUND(COALESCE(SUM(a.amount), 0), 4) >= ROUND(b.total, 4)))
	`, companyId).Scan(&billStatusDrift).Error; err != nil {
		return cid, err
	}
	for _, r := range billStatusDrift {
		record("DOCUMENT_STATUS", "Bill", r.ID,
			fmt.Sprintf("status=%s disagrees with allocated=%s of total=%s", r.Status, r.Allocated, r.Total))
	}

	if logger != nil {
		total := 0
		for _, n := range counts {
			total += n
		}
		logger.WithFields(logrus.Fields{
			"field":          "IntegrityChecks",
			"company_id":     companyId,
			"correlation_id": cid,
			"findings":       total,
			"by_check":       counts,
		}).Info("integrity checks completed")
	}
	return cid, nil
}
