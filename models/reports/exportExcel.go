package reports

import (
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/xuri/excelize/v2"
)

func setRow(f *excelize.File, sheet string, rowNo int, values []interface{}) error {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}
	return nil
}

func headerRow(headings []string) []interface{} {
	row := make([]interface{}, len(headings))
	for i, h := range headings {
		row[i] = h
	}
	return row
}

// BuildTrialBalanceWorkbook renders the trial balance as a single-sheet
// workbook with a totals row.
func BuildTrialBalanceWorkbook(report *models.TrialBalanceReport) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	if err := setRow(f, sheet, 1, headerRow([]string{"Type", "Code", "Account", "Debit", "Credit"})); err != nil {
		return nil, err
	}
	rowNo := 2
	for _, row := range report.Rows {
		values := []interface{}{
			row.AccountType,
			row.AccountCode,
			row.AccountName,
			row.Debit.InexactFloat64(),
			row.Credit.InexactFloat64(),
		}
		if err := setRow(f, sheet, rowNo, values); err != nil {
			return nil, err
		}
		rowNo++
	}
	totals := []interface{}{
		"", "", "Total",
		report.TotalDebit.InexactFloat64(),
		report.TotalCredit.InexactFloat64(),
	}
	if err := setRow(f, sheet, rowNo, totals); err != nil {
		return nil, err
	}
	return f, nil
}

// BuildReconciliationSummaryWorkbook renders one sheet of per-account status
// counts and one sheet listing the unreconciled statement lines.
func BuildReconciliationSummaryWorkbook(summaries []*models.ReconciliationSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	summarySheet := f.GetSheetName(0)
	if err := f.SetSheetName(summarySheet, "Summary"); err != nil {
		return nil, err
	}
	summarySheet = "Summary"

	headings := []string{"Code", "Bank Account", "Total", "New", "Matched", "Created", "Ignored", "Split", "Unreconciled Amount"}
	if err := setRow(f, summarySheet, 1, headerRow(headings)); err != nil {
		return nil, err
	}
	rowNo := 2
	for _, s := range summaries {
		values := []interface{}{
			s.BankAccountCode,
			s.BankAccountName,
			s.TotalCount,
			s.NewCount,
			s.MatchedCount,
			s.CreatedCount,
			s.IgnoredCount,
			s.SplitCount,
			s.UnreconciledTotal.InexactFloat64(),
		}
		if err := setRow(f, summarySheet, rowNo, values); err != nil {
			return nil, err
		}
		rowNo++
	}

	itemSheet := "Unreconciled"
	if _, err := f.NewSheet(itemSheet); err != nil {
		return nil, err
	}
	itemHeadings := []string{"Bank Account", "Posted Date", "Amount", "Description", "Reference"}
	if err := setRow(f, itemSheet, 1, headerRow(itemHeadings)); err != nil {
		return nil, err
	}
	rowNo = 2
	for _, s := range summaries {
		for _, item := range s.UnreconciledItems {
			values := []interface{}{
				s.BankAccountName,
				item.PostedDate.Format("2006-01-02"),
				item.Amount.InexactFloat64(),
				item.Description,
				item.Reference,
			}
			if err := setRow(f, itemSheet, rowNo, values); err != nil {
				return nil, err
			}
			rowNo++
		}
	}
	return f, nil
}
