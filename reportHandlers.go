package main

import (
	"net/http"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/models/reports"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func writeWorkbook(c *gin.Context, f *excelize.File, filename string) {
	defer f.Close()
	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write workbook"})
	}
}

func trialBalanceAsOf(c *gin.Context) (models.MyDateString, bool) {
	toDate, ok := optionalQueryDate(c, "to_date")
	if !ok {
		return models.MyDateString{}, false
	}
	if toDate == nil {
		d := models.MyDateString(time.Now().UTC())
		return d, true
	}
	return *toDate, true
}

func trialBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		toDate, ok := trialBalanceAsOf(c)
		if !ok {
			return
		}
		report, err := reports.GetTrialBalanceReport(c.Request.Context(), toDate)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func trialBalanceExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		toDate, ok := trialBalanceAsOf(c)
		if !ok {
			return
		}
		report, err := reports.GetTrialBalanceReport(c.Request.Context(), toDate)
		if err != nil {
			abortWithError(c, err)
			return
		}
		f, err := reports.BuildTrialBalanceWorkbook(report)
		if err != nil {
			abortWithError(c, err)
			return
		}
		writeWorkbook(c, f, "trial-balance-"+report.AsOfDate.Format("2006-01-02")+".xlsx")
	}
}

func accountActivityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountId, ok := optionalQueryInt(c, "account_id")
		if !ok {
			return
		}
		if accountId == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
			return
		}
		fromDate, ok := optionalQueryDate(c, "from_date")
		if !ok {
			return
		}
		toDate, ok := optionalQueryDate(c, "to_date")
		if !ok {
			return
		}
		var from, to *time.Time
		if fromDate != nil {
			t := time.Time(*fromDate)
			from = &t
		}
		if toDate != nil {
			t := time.Time(*toDate)
			to = &t
		}
		report, err := reports.GetAccountActivityReport(c.Request.Context(), *accountId, from, to)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func reconciliationSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bankAccountId, ok := optionalQueryInt(c, "bank_account_id")
		if !ok {
			return
		}
		summaries, err := reports.GetReconciliationSummaryReport(c.Request.Context(), bankAccountId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, summaries)
	}
}

func reconciliationSummaryExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bankAccountId, ok := optionalQueryInt(c, "bank_account_id")
		if !ok {
			return
		}
		summaries, err := reports.GetReconciliationSummaryReport(c.Request.Context(), bankAccountId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		f, err := reports.BuildReconciliationSummaryWorkbook(summaries)
		if err != nil {
			abortWithError(c, err)
			return
		}
		writeWorkbook(c, f, "reconciliation-summary-"+time.Now().UTC().Format("2006-01-02")+".xlsx")
	}
}
