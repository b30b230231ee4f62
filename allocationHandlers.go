package main

import (
	"net/http"

	"bitbucket.org/quartzbooks/ledger_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type newReceivableAllocationRequest struct {
	TransactionId int             `json:"transaction_id" binding:"required"`
	InvoiceId     int             `json:"invoice_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

func createReceivableAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req newReceivableAllocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_id, invoice_id and amount are required"})
			return
		}
		allocation, err := workflow.AllocateReceivable(c.Request.Context(), req.TransactionId, req.InvoiceId, req.Amount)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, allocation)
	}
}

func removeReceivableAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		allocation, err := workflow.RemoveReceivableAllocation(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, allocation)
	}
}

type newPayableAllocationRequest struct {
	TransactionId int             `json:"transaction_id" binding:"required"`
	BillId        int             `json:"bill_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

func createPayableAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req newPayableAllocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_id, bill_id and amount are required"})
			return
		}
		allocation, err := workflow.AllocatePayable(c.Request.Context(), req.TransactionId, req.BillId, req.Amount)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, allocation)
	}
}

func removePayableAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		allocation, err := workflow.RemovePayableAllocation(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, allocation)
	}
}
