package main

import (
	"net/http"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// toggleActiveRequest is shared by every .../:id/active endpoint.
type toggleActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func getCompanyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		company, err := models.GetCompany(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, company)
	}
}

func updateCompanyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCompany
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		company, err := models.UpdateCompany(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, company)
	}
}

// updatePeriodLockingHandler moves the period lock dates. Documents dated on
// or before a lock date can no longer be posted, reversed or allocated.
func updatePeriodLockingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPeriodLocking
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		company, err := models.UpdatePeriodLocking(c.Request.Context(), input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, company)
	}
}

func getPeriodLockingHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := models.GetPeriodLockingHistory(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func createCompanyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input models.NewCompany
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		company, err := models.CreateCompany(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, company)
	}
}

func listCompaniesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		name := optionalQueryString(c, "name")
		companies, err := models.GetCompanies(c.Request.Context(), name)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, companies)
	}
}

func toggleCompanyActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid company id"})
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}
		company, err := models.ToggleActiveCompany(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, company)
	}
}
