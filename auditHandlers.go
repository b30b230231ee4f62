package main

import (
	"net/http"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/gin-gonic/gin"
)

func listAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		referenceType := optionalQueryString(c, "reference_type")
		referenceId, ok := optionalQueryInt(c, "reference_id")
		if !ok {
			return
		}
		limit, ok := optionalQueryInt(c, "limit")
		if !ok {
			return
		}
		after := optionalQueryString(c, "after")
		logs, err := models.PaginateAuditLogs(c.Request.Context(), referenceType, referenceId, limit, after)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, logs)
	}
}

func outboxStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		referenceType := optionalQueryString(c, "reference_type")
		referenceId, ok := optionalQueryInt(c, "reference_id")
		if !ok {
			return
		}
		if referenceType == nil || referenceId == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reference_type and reference_id are required"})
			return
		}
		status, err := models.GetOutboxStatus(c.Request.Context(), models.LedgerReferenceType(*referenceType), *referenceId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func listIntegrityFindingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checkType := ""
		if raw := optionalQueryString(c, "check_type"); raw != nil {
			checkType = *raw
		}
		correlationId := ""
		if raw := optionalQueryString(c, "correlation_id"); raw != nil {
			correlationId = *raw
		}
		limit, ok := optionalQueryInt(c, "limit")
		if !ok {
			return
		}
		findings, err := models.ListIntegrityFindings(c.Request.Context(), checkType, correlationId, limit)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, findings)
	}
}
