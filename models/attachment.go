package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
)

// Attachment links a stored object (receipt, statement page, contract) to a
// ledger document. The bytes live in GCS under the company prefix; the row
// only records the key and the reference.
type Attachment struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CompanyId     string    `gorm:"index;not null" json:"company_id"`
	ReferenceType string    `gorm:"size:10;not null;index:idx_attachment_reference,priority:1" json:"reference_type"`
	ReferenceId   int       `gorm:"not null;index:idx_attachment_reference,priority:2" json:"reference_id"`
	FileName      string    `gorm:"size:255;not null" json:"file_name"`
	ObjectKey     string    `gorm:"size:512;not null" json:"object_key"`
	MimeType      string    `gorm:"size:100" json:"mime_type"`
	Size          int64     `json:"size"`
	CreatedBy     string    `gorm:"size:100" json:"created_by"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewAttachment struct {
	ObjectKey     string `json:"object_key" binding:"required"`
	FileName      string `json:"file_name"`
	MimeType      string `json:"mime_type"`
	Size          int64  `json:"size"`
	ReferenceType string `json:"reference_type" binding:"required"`
	ReferenceId   int    `json:"reference_id" binding:"required"`
}

// attachmentReferenceTables maps the short reference codes (the same ones the
// outbox and audit log use) onto the tables an attachment may point at.
var attachmentReferenceTables = map[LedgerReferenceType]string{
	LedgerReferenceTypeTransaction:  "transactions",
	LedgerReferenceTypeInvoice:      "invoices",
	LedgerReferenceTypeBill:         "bills",
	LedgerReferenceTypeBankFeedItem: "bank_feed_items",
	LedgerReferenceTypeContact:      "contacts",
	LedgerReferenceTypeAccount:      "accounts",
}

func validateAttachmentReference(ctx context.Context, companyId string, referenceType string, referenceId int) error {
	table, ok := attachmentReferenceTables[LedgerReferenceType(referenceType)]
	if !ok {
		return &InvalidArgumentError{Field: "reference_type", Reason: "attachments may reference TXN, IV, BL, BFI, CT or AC"}
	}
	if referenceId <= 0 {
		return &InvalidArgumentError{Field: "reference_id", Reason: "must be a positive id"}
	}

	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Table(table).
		Where("company_id = ? AND id = ?", companyId, referenceId).
		Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// CreateAttachment records an uploaded object against a document. The object
// must already exist in storage and must live under the company prefix.
func CreateAttachment(ctx context.Context, input *NewAttachment) (*Attachment, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := validateAttachmentReference(ctx, companyId, input.ReferenceType, input.ReferenceId); err != nil {
		return nil, err
	}

	exists, err := utils.ObjectExistsInGCS(ctx, input.ObjectKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &InvalidArgumentError{Field: "object_key", Reason: "object was not uploaded"}
	}

	userName, _ := utils.GetUserNameFromContext(ctx)
	result := Attachment{
		CompanyId:     companyId,
		ReferenceType: input.ReferenceType,
		ReferenceId:   input.ReferenceId,
		FileName:      input.FileName,
		ObjectKey:     input.ObjectKey,
		MimeType:      input.MimeType,
		Size:          input.Size,
		CreatedBy:     userName,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func GetAttachments(ctx context.Context, referenceType string, referenceId int) ([]*Attachment, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if _, ok := attachmentReferenceTables[LedgerReferenceType(referenceType)]; !ok {
		return nil, &InvalidArgumentError{Field: "reference_type", Reason: "attachments may reference TXN, IV, BL, BFI, CT or AC"}
	}

	db := config.GetDB()
	var results []*Attachment
	if err := db.WithContext(ctx).
		Where("company_id = ? AND reference_type = ? AND reference_id = ?", companyId, referenceType, referenceId).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteAttachment removes the row and then the stored object. Object
// deletion failures are surfaced but the row stays gone.
func DeleteAttachment(ctx context.Context, id int) (*Attachment, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	var result Attachment
	if err := db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyId, id).
		Take(&result).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}
	if err := utils.DeleteObjectFromGCS(ctx, result.ObjectKey); err != nil {
		return &result, err
	}
	return &result, nil
}

// GetAttachmentDownloadURL signs a short-lived download link for the stored
// object.
func GetAttachmentDownloadURL(ctx context.Context, id int) (string, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return "", errors.New("company id is required")
	}

	db := config.GetDB()
	var result Attachment
	if err := db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyId, id).
		Take(&result).Error; err != nil {
		return "", utils.ErrorRecordNotFound
	}

	signed, err := utils.SignDownload(ctx, result.ObjectKey, 15*time.Minute)
	if err != nil {
		return "", err
	}
	return signed.DownloadURL, nil
}
