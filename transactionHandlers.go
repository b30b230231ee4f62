package main

import (
	"net/http"
	"strings"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/middlewares"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/workflow"
	"github.com/gin-gonic/gin"
)

func createTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewTransaction
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		transaction, err := models.CreateTransaction(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, transaction)
	}
}

func listTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, after, ok := paginationParams(c)
		if !ok {
			return
		}
		var transactionType *models.TransactionType
		if raw := strings.TrimSpace(c.Query("type")); raw != "" {
			t := models.TransactionType(raw)
			transactionType = &t
		}
		var status *models.TransactionStatus
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			s := models.TransactionStatus(raw)
			status = &s
		}
		fromDate, ok := optionalQueryDate(c, "from_date")
		if !ok {
			return
		}
		toDate, ok := optionalQueryDate(c, "to_date")
		if !ok {
			return
		}
		contactId, ok := optionalQueryInt(c, "contact_id")
		if !ok {
			return
		}
		connection, err := models.PaginateTransactions(c.Request.Context(), limit, after,
			optionalQueryString(c, "number"), transactionType, status, fromDate, toDate, contactId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, connection)
	}
}

// transactionDetail is the read model for one transaction: the document, its
// contact and what it has settled so far, hydrated through the batched loaders.
type transactionDetail struct {
	*models.Transaction
	Contact               *models.Contact                `json:"contact,omitempty"`
	ReceivableAllocations []*models.ReceivableAllocation `json:"receivable_allocations,omitempty"`
	PayableAllocations    []*models.PayableAllocation    `json:"payable_allocations,omitempty"`
}

func getTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		transaction, err := models.GetTransaction(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		detail := transactionDetail{Transaction: transaction}
		if transaction.ContactId > 0 {
			contact, err := middlewares.GetContact(c.Request.Context(), transaction.ContactId)
			if err != nil {
				abortWithError(c, err)
				return
			}
			detail.Contact = contact
		}
		switch transaction.Type {
		case models.TransactionTypeReceipt:
			allocations, err := middlewares.GetReceivableAllocationsForTransaction(c.Request.Context(), transaction.ID)
			if err != nil {
				abortWithError(c, err)
				return
			}
			detail.ReceivableAllocations = allocations
		case models.TransactionTypePayment:
			allocations, err := middlewares.GetPayableAllocationsForTransaction(c.Request.Context(), transaction.ID)
			if err != nil {
				abortWithError(c, err)
				return
			}
			detail.PayableAllocations = allocations
		}
		c.JSON(http.StatusOK, detail)
	}
}

func updateTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewTransaction
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		transaction, err := models.UpdateTransaction(c.Request.Context(), id, &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

func deleteTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		transaction, err := models.DeleteTransaction(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

func postTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		transaction, err := workflow.PostTransaction(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

type reverseTransactionRequest struct {
	Reason string `json:"reason" binding:"required"`
	Date   string `json:"date"`
}

func reverseTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req reverseTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
			return
		}
		var date *time.Time
		if raw := strings.TrimSpace(req.Date); raw != "" {
			layout := "2006-01-02"
			if strings.Contains(raw, "T") {
				layout = time.RFC3339
			}
			t, err := time.Parse(layout, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be a date (YYYY-MM-DD)"})
				return
			}
			date = &t
		}
		transaction, err := workflow.ReverseTransaction(c.Request.Context(), id, req.Reason, date)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

func unallocatedAmountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		amount, err := workflow.GetUnallocatedAmount(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"transaction_id": id,
			"unallocated":    amount,
		})
	}
}

func allocationSuggestionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		suggestions, err := workflow.SuggestAllocations(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, suggestions)
	}
}
