package main

import (
	"net/http"
	"strings"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func createAllocationRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAllocationRule
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rule, err := models.CreateAllocationRule(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rule)
	}
}

func listAllocationRulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rules, err := models.ListAllocationRules(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, rules)
	}
}

func getAllocationRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		rule, err := models.GetAllocationRule(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

func deleteAllocationRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		rule, err := models.DeleteAllocationRule(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

func toggleAllocationRuleActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}
		rule, err := models.ToggleActiveAllocationRule(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

// ruleMatchHandler dry-runs the rule set against a hypothetical feed line,
// so a new rule can be checked before statements arrive.
func ruleMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		description := strings.TrimSpace(c.Query("description"))
		rawAmount := strings.TrimSpace(c.Query("amount"))
		if description == "" || rawAmount == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "description and amount are required"})
			return
		}
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal"})
			return
		}
		date := time.Now().UTC()
		if raw := strings.TrimSpace(c.Query("date")); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be a date (YYYY-MM-DD)"})
				return
			}
			date = t
		}
		result, err := workflow.TestAllocationRule(c.Request.Context(), description, amount, date)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
