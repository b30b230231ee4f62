package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
)

type Contact struct {
	ID                      int          `gorm:"primary_key" json:"id"`
	CompanyId               string       `gorm:"index;not null" json:"company_id" binding:"required"`
	Type                    ContactType  `gorm:"type:enum('Customer','Supplier');not null" json:"type" binding:"required"`
	Name                    string       `gorm:"size:100;not null" json:"name" binding:"required"`
	Email                   string       `gorm:"size:100" json:"email"`
	Phone                   string       `gorm:"size:20" json:"phone"`
	Mobile                  string       `gorm:"size:20" json:"mobile"`
	PaymentTerms            PaymentTerms `gorm:"type:enum('Net15', 'Net30', 'Net45', 'Net60', 'DueMonthEnd', 'DueNextMonthEnd', 'DueOnReceipt', 'Custom');not null;default:'DueOnReceipt'" json:"payment_terms"`
	PaymentTermsCustomDays  int          `gorm:"default:0" json:"payment_terms_custom_days"`
	Notes                   string       `gorm:"type:text" json:"notes"`
	IsActive                *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt               time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewContact struct {
	Type                   ContactType  `json:"type" binding:"required"`
	Name                   string       `json:"name" binding:"required"`
	Email                  string       `json:"email"`
	Phone                  string       `json:"phone"`
	Mobile                 string       `json:"mobile"`
	PhoneCountryCode       string       `json:"phone_country_code"`
	PaymentTerms           PaymentTerms `json:"payment_terms"`
	PaymentTermsCustomDays int          `json:"payment_terms_custom_days"`
	Notes                  string       `json:"notes"`
}

type ContactsEdge struct {
	Cursor string   `json:"cursor"`
	Node   *Contact `json:"node"`
}

type ContactsConnection struct {
	Edges    []*ContactsEdge `json:"edges"`
	PageInfo *PageInfo       `json:"pageInfo"`
}

// returns decoded cursor string
func (c Contact) GetCursor() string {
	return c.CreatedAt.String()
}

func (input *NewContact) validate(ctx context.Context, companyId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Contact](ctx, companyId, id); err != nil {
			return err
		}
	}
	// validate unique name
	if err := utils.ValidateUnique[Contact](ctx, companyId, "name", input.Name, id); err != nil {
		return err
	}
	// validate email
	if input.Email != "" {
		if !utils.IsValidEmail(input.Email) {
			return &InvalidArgumentError{Field: "email", Reason: "invalid email address"}
		}
		if err := utils.ValidateUnique[Contact](ctx, companyId, "email", input.Email, id); err != nil {
			return err
		}
	}
	// validate phone
	if input.Phone != "" {
		countryCode := input.PhoneCountryCode
		if countryCode == "" {
			countryCode = "US"
		}
		if err := utils.ValidatePhoneNumber(input.Phone, countryCode); err != nil {
			return &InvalidArgumentError{Field: "phone", Reason: err.Error()}
		}
		if err := utils.ValidateUnique[Contact](ctx, companyId, "phone", input.Phone, id); err != nil {
			return err
		}
	}
	if input.Mobile != "" {
		countryCode := input.PhoneCountryCode
		if countryCode == "" {
			countryCode = "US"
		}
		if err := utils.ValidatePhoneNumber(input.Mobile, countryCode); err != nil {
			return &InvalidArgumentError{Field: "mobile", Reason: err.Error()}
		}
	}
	return nil
}

func CreateContact(ctx context.Context, input *NewContact) (*Contact, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	paymentTerms := input.PaymentTerms
	if paymentTerms == "" {
		paymentTerms = PaymentTermsDueOnReceipt
	}

	contact := Contact{
		CompanyId:              companyId,
		Type:                   input.Type,
		Name:                   input.Name,
		Email:                  input.Email,
		Phone:                  input.Phone,
		Mobile:                 input.Mobile,
		PaymentTerms:           paymentTerms,
		PaymentTermsCustomDays: input.PaymentTermsCustomDays,
		Notes:                  input.Notes,
		IsActive:               utils.NewTrue(),
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&contact).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishToLedger(ctx, tx, companyId, contact.CreatedAt, contact.ID, LedgerReferenceTypeContact, contact, nil, PubSubMessageActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisList[Contact](companyId); err != nil {
		return nil, err
	}
	return &contact, nil
}

func UpdateContact(ctx context.Context, id int, input *NewContact) (*Contact, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	contact, err := utils.FetchModel[Contact](ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	oldContact := *contact

	// the contact type is frozen once documents reference it
	if input.Type != contact.Type {
		var count int64
		db := config.GetDB()
		if err := db.WithContext(ctx).Model(&Invoice{}).Where("company_id = ? AND contact_id = ?", companyId, id).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			if err := db.WithContext(ctx).Model(&Bill{}).Where("company_id = ? AND contact_id = ?", companyId, id).Count(&count).Error; err != nil {
				return nil, err
			}
		}
		if count > 0 {
			return nil, errors.New("not allowed to change contact type when documents exist")
		}
	}

	db := config.GetDB()
	tx := db.Begin()
	err = tx.WithContext(ctx).Model(&contact).Updates(map[string]interface{}{
		"Type":                   input.Type,
		"Name":                   input.Name,
		"Email":                  input.Email,
		"Phone":                  input.Phone,
		"Mobile":                 input.Mobile,
		"PaymentTerms":           input.PaymentTerms,
		"PaymentTermsCustomDays": input.PaymentTermsCustomDays,
		"Notes":                  input.Notes,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishToLedger(ctx, tx, companyId, time.Now(), contact.ID, LedgerReferenceTypeContact, contact, oldContact, PubSubMessageActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisItem[Contact](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Contact](companyId); err != nil {
		return nil, err
	}
	return contact, nil
}

func DeleteContact(ctx context.Context, id int) (*Contact, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	contact, err := utils.FetchModel[Contact](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	// refuse when documents reference the contact
	invoiceCount, err := utils.ResourceCountWhere[Invoice](ctx, companyId, "contact_id = ?", id)
	if err != nil {
		return nil, err
	}
	if invoiceCount > 0 {
		return nil, errors.New("contact is already used in invoices")
	}
	billCount, err := utils.ResourceCountWhere[Bill](ctx, companyId, "contact_id = ?", id)
	if err != nil {
		return nil, err
	}
	if billCount > 0 {
		return nil, errors.New("contact is already used in bills")
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Delete(&contact).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishToLedger(ctx, tx, companyId, time.Now(), contact.ID, LedgerReferenceTypeContact, nil, contact, PubSubMessageActionDelete); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	// caching
	if err := utils.RemoveRedisItem[Contact](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Contact](companyId); err != nil {
		return nil, err
	}
	return contact, nil
}

func ToggleActiveContact(ctx context.Context, id int, isActive bool) (*Contact, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	return ToggleActiveModel[Contact](ctx, companyId, id, isActive)
}

func GetContact(ctx context.Context, id int) (*Contact, error) {

	return GetResource[Contact](ctx, id)
}

func GetContacts(ctx context.Context, contactType *ContactType, name *string) ([]*Contact, error) {
	db := config.GetDB()

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	var results []*Contact
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if contactType != nil {
		dbCtx = dbCtx.Where("type = ?", *contactType)
	}
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}

	return results, nil
}

func PaginateContacts(ctx context.Context, limit *int, after *string,
	contactType *ContactType, name *string, email *string, isActive *bool) (*ContactsConnection, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if contactType != nil {
		dbCtx.Where("type = ?", *contactType)
	}
	if name != nil && *name != "" {
		dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if email != nil && *email != "" {
		dbCtx.Where("email LIKE ?", "%"+*email+"%")
	}
	if isActive != nil {
		dbCtx.Where("is_active = ?", isActive)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[Contact](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	var contactsConnection ContactsConnection
	contactsConnection.PageInfo = pageInfo
	for _, edge := range edges {
		contactEdge := ContactsEdge{Cursor: edge.Cursor, Node: edge.Node}
		contactsConnection.Edges = append(contactsConnection.Edges, &contactEdge)
	}

	return &contactsConnection, err
}
