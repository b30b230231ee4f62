package main

import (
	"net/http"
	"strings"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/gin-gonic/gin"
)

func createContactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewContact
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		contact, err := models.CreateContact(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, contact)
	}
}

func listContactsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, after, ok := paginationParams(c)
		if !ok {
			return
		}
		var contactType *models.ContactType
		if raw := strings.TrimSpace(c.Query("type")); raw != "" {
			t := models.ContactType(raw)
			contactType = &t
		}
		var isActive *bool
		if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
			b := strings.EqualFold(raw, "true")
			isActive = &b
		}
		connection, err := models.PaginateContacts(c.Request.Context(), limit, after,
			contactType, optionalQueryString(c, "name"), optionalQueryString(c, "email"), isActive)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, connection)
	}
}

func getContactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		contact, err := models.GetContact(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, contact)
	}
}

func updateContactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewContact
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		contact, err := models.UpdateContact(c.Request.Context(), id, &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, contact)
	}
}

func deleteContactHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		contact, err := models.DeleteContact(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, contact)
	}
}

func toggleContactActiveHandler() gin.HandlerFunc {
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
		contact, err := models.ToggleActiveContact(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, contact)
	}
}
