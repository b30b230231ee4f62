package main

import (
	"net/http"
	"strings"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/gin-gonic/gin"
)

func createInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewInvoice
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		invoice, err := models.CreateInvoice(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, invoice)
	}
}

func listInvoicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, after, ok := paginationParams(c)
		if !ok {
			return
		}
		var status *models.InvoiceStatus
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			s := models.InvoiceStatus(raw)
			status = &s
		}
		contactId, ok := optionalQueryInt(c, "contact_id")
		if !ok {
			return
		}
		connection, err := models.PaginateInvoices(c.Request.Context(), limit, after,
			optionalQueryString(c, "number"), status, contactId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, connection)
	}
}

func getInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		invoice, err := models.GetInvoice(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

func updateInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewInvoice
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		invoice, err := models.UpdateInvoice(c.Request.Context(), id, &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

func deleteInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		invoice, err := models.DeleteInvoice(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

func voidInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		invoice, err := models.VoidInvoice(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

// openInvoicesHandler returns open and partially paid invoices oldest due
// first, the order the allocation suggester consumes them in.
func openInvoicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contactId, ok := optionalQueryInt(c, "contact_id")
		if !ok {
			return
		}
		invoices, err := models.GetOpenInvoicesByDueDate(c.Request.Context(), contactId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoices)
	}
}

func createBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBill
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		bill, err := models.CreateBill(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, bill)
	}
}

func listBillsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, after, ok := paginationParams(c)
		if !ok {
			return
		}
		var status *models.InvoiceStatus
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			s := models.InvoiceStatus(raw)
			status = &s
		}
		contactId, ok := optionalQueryInt(c, "contact_id")
		if !ok {
			return
		}
		connection, err := models.PaginateBills(c.Request.Context(), limit, after,
			optionalQueryString(c, "number"), status, contactId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, connection)
	}
}

func getBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		bill, err := models.GetBill(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	}
}

func updateBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewBill
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		bill, err := models.UpdateBill(c.Request.Context(), id, &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	}
}

func deleteBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		bill, err := models.DeleteBill(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	}
}

func voidBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		bill, err := models.VoidBill(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	}
}

func openBillsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contactId, ok := optionalQueryInt(c, "contact_id")
		if !ok {
			return
		}
		bills, err := models.GetOpenBillsByDueDate(c.Request.Context(), contactId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, bills)
	}
}
