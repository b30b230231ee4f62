package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type uploadSignRequest struct {
	FileName      string `json:"file_name"`
	MimeType      string `json:"mime_type"`
	Size          int64  `json:"size"`
	ReferenceType string `json:"reference_type"`
}

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

// signUploadHandler hands the client a short-lived signed PUT URL. The object
// key is namespaced by company so the complete step (and any download) can
// enforce tenant ownership by prefix.
func signUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		companyId, ok := utils.GetCompanyIdFromContext(c.Request.Context())
		if !ok || companyId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req uploadSignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.FileName == "" || req.MimeType == "" || req.Size <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file_name, mime_type and size are required"})
			return
		}
		if req.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}
		if !utils.IsAllowedUploadContentType(req.MimeType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
			return
		}

		ext := strings.ToLower(filepath.Ext(req.FileName))
		if ext == "" {
			ext = extensionFromMimeType(req.MimeType)
		}
		if ext == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file extension is required"})
			return
		}

		entity := sanitizeSegment(strings.ToLower(strings.TrimSpace(req.ReferenceType)))
		if entity == "" {
			entity = "attachments"
		}

		objectKey := path.Join(companyId, entity, uuid.New().String()+ext)
		signed, err := utils.SignUpload(c.Request.Context(), objectKey, req.MimeType, 15*time.Minute)
		if err != nil {
			logUploadError(logger, err, c.Request.Context())
			message := "failed to sign upload"
			if !strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
				message = fmt.Sprintf("failed to sign upload: %v", err)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": message})
			return
		}

		logger.WithFields(logrus.Fields{
			"company_id": companyId,
			"mime_type":  req.MimeType,
			"size":       req.Size,
			"object_key": objectKey,
		}).Info("[upload.sign]")

		c.JSON(http.StatusOK, gin.H{
			"upload_url": signed.UploadURL,
			"method":     signed.Method,
			"headers":    signed.Headers,
			"object_key": signed.ObjectKey,
			"expires_at": signed.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
}

// completeUploadHandler records the uploaded object as an attachment on a
// ledger document. The object must live under this company's prefix.
func completeUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		companyId, ok := utils.GetCompanyIdFromContext(c.Request.Context())
		if !ok || companyId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req models.NewAttachment
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if !strings.HasPrefix(req.ObjectKey, companyId+"/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid object key"})
			return
		}
		if req.FileName == "" {
			req.FileName = path.Base(req.ObjectKey)
		}

		attachment, err := models.CreateAttachment(c.Request.Context(), &req)
		if err != nil {
			logUploadError(logger, err, c.Request.Context())
			abortWithError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"company_id": companyId,
			"object_key": req.ObjectKey,
			"status":     "completed",
		}).Info("[upload.complete]")

		c.JSON(http.StatusOK, attachment)
	}
}

func listAttachmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		referenceType := strings.TrimSpace(c.Query("reference_type"))
		referenceId, ok := optionalQueryInt(c, "reference_id")
		if !ok {
			return
		}
		if referenceType == "" || referenceId == nil || *referenceId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reference_type and reference_id are required"})
			return
		}
		results, err := models.GetAttachments(c.Request.Context(), referenceType, *referenceId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func deleteAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.DeleteAttachment(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func attachmentDownloadURLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		url, err := models.GetAttachmentDownloadURL(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"download_url": url})
	}
}

// getSessionUser resolves the session username (set by SessionMiddleware)
// into the user record, Redis first.
func getSessionUser(ctx context.Context) (*models.User, error) {
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return nil, errors.New("unauthorized")
	}

	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		if db == nil {
			return nil, errors.New("db is nil")
		}
		if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Take(&user).Error; err != nil {
			return nil, errors.New("unauthorized")
		}
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, errors.New("unauthorized")
	}
	return &user, nil
}

func sanitizeSegment(input string) string {
	var out strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func extensionFromMimeType(mimeType string) string {
	switch mimeType {
	case "text/csv":
		return ".csv"
	case "text/plain":
		return ".txt"
	case "application/pdf":
		return ".pdf"
	case "application/vnd.ms-excel":
		return ".xls"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	default:
		return ""
	}
}

func logUploadError(logger *logrus.Logger, err error, ctx context.Context) {
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	logger.WithFields(logrus.Fields{
		"error":          err.Error(),
		"correlation_id": cid,
	}).Error("[upload.error]")
}
