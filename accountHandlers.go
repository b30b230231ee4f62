package main

import (
	"net/http"
	"strings"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/gin-gonic/gin"
)

func createAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAccount
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		account, err := models.CreateAccount(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, account)
	}
}

// listAccountsHandler filters by name/code substring; bank_only=true narrows
// to active bank accounts (the reconciliation picker).
func listAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Query("bank_only"), "true") {
			accounts, err := models.GetBankAccounts(c.Request.Context())
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, accounts)
			return
		}
		name := optionalQueryString(c, "name")
		code := optionalQueryString(c, "code")
		accounts, err := models.GetAccounts(c.Request.Context(), name, code)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, accounts)
	}
}

func getAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		account, err := models.GetAccount(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func updateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewAccount
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		account, err := models.UpdateAccount(c.Request.Context(), id, &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func deleteAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		account, err := models.DeleteAccount(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func toggleAccountActiveHandler() gin.HandlerFunc {
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
		account, err := models.MarkAccountActive(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}
