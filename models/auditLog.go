package models

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"gorm.io/gorm"
)

// AuditLog is the append-only record of every write side effect: postings,
// reversals, allocations, matches, splits, toggles. Rows are written inside
// the same DB transaction as the change they describe.
type AuditLog struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CompanyId     string    `gorm:"index;not null" json:"company_id"`
	ActionType    string    `gorm:"size:20;not null" json:"action_type" binding:"required"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceId   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:255" json:"reference_type"`
	UserId        int       `gorm:"index;not null" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (l *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("audit logs are append-only: updates are not allowed")
}

func (l *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return errors.New("audit logs are append-only: deletes are not allowed")
}

type AuditLogsConnection struct {
	Edges    []*AuditLogsEdge `json:"edges"`
	PageInfo *PageInfo        `json:"pageInfo"`
}

type AuditLogsEdge struct {
	Cursor string    `json:"cursor"`
	Node   *AuditLog `json:"node"`
}

func (l AuditLog) GetCursor() string {
	return strconv.Itoa(l.ID)
}

func writeAuditLog(tx *gorm.DB,
	actionType string,
	referenceId int,
	referenceType string,
	before interface{},
	after interface{},
	description string) (err error) {

	var log AuditLog

	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	ctx := tx.Statement.Context
	// get companyId, userId, userName from context
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return errors.New("company id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok {
		return errors.New("user name is required")
	}

	log.CompanyId = companyId
	log.ActionType = actionType
	log.Before = string(b)
	log.After = string(a)
	log.Description = description
	log.ReferenceId = referenceId
	log.ReferenceType = referenceType
	log.UserId = userId
	log.UserName = userName

	err = tx.Create(&log).Error
	return err
}

// WriteAuditLog is the exported form used by the workflow package.
func WriteAuditLog(tx *gorm.DB, actionType string, referenceId int, referenceType string, before interface{}, after interface{}, description string) error {
	return writeAuditLog(tx, actionType, referenceId, referenceType, before, after, description)
}

// PaginateAuditLogs walks the trail newest-first. The cursor is the row id,
// which is unique, so the plain cursor form is enough here.
func PaginateAuditLogs(ctx context.Context, referenceType *string, referenceId *int, limit *int, after *string) (*AuditLogsConnection, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if referenceType != nil && *referenceType != "" {
		dbCtx = dbCtx.Where("reference_type = ?", *referenceType)
	}
	if referenceId != nil && *referenceId > 0 {
		dbCtx = dbCtx.Where("reference_id = ?", *referenceId)
	}
	max := 100
	if limit != nil && *limit > 0 && *limit < 1000 {
		max = *limit
	}

	edges, pageInfo, err := FetchPagePureCursor[AuditLog](dbCtx, max, after, "id", "<")
	if err != nil {
		return nil, err
	}

	var connection AuditLogsConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		auditLogEdge := AuditLogsEdge{Cursor: edge.Cursor, Node: edge.Node}
		connection.Edges = append(connection.Edges, &auditLogEdge)
	}
	return &connection, nil
}
