package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BankFeedItem is one imported statement row. Amount is signed with
// positive meaning money into the bank account.
type BankFeedItem struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	CompanyId             string          `gorm:"index;not null;index:idx_bfi_company_status,priority:1" json:"company_id"`
	BankAccountId         int             `gorm:"index;not null;index:idx_bfi_dedup,priority:1" json:"bank_account_id" binding:"required"`
	BatchId               int             `gorm:"index" json:"batch_id"`
	PostedDate            time.Time       `gorm:"not null;index;index:idx_bfi_dedup,priority:2" json:"posted_date" binding:"required"`
	Amount                decimal.Decimal `gorm:"type:decimal(20,4);not null;index:idx_bfi_dedup,priority:3" json:"amount"`
	Description           string          `gorm:"size:255" json:"description"`
	NormalizedDescription string          `gorm:"size:255;index:idx_bfi_dedup,priority:4" json:"normalized_description"`
	Reference             string          `gorm:"size:255" json:"reference"`
	Status                FeedItemStatus  `gorm:"type:enum('New', 'Matched', 'Created', 'Ignored', 'Split');default:'New';size:10;not null;index:idx_bfi_company_status,priority:2" json:"status"`
	TransactionId         *int            `gorm:"index" json:"transaction_id"`
	MatchedTransaction    *Transaction    `gorm:"foreignKey:TransactionId" json:"matched_transaction"`
	// Rule suggestion captured at ingestion time.
	SuggestedAccountId *int      `json:"suggested_account_id"`
	SuggestedTaxCode   string    `gorm:"size:20" json:"suggested_tax_code"`
	SuggestedMemo      string    `gorm:"size:255" json:"suggested_memo"`
	SuggestingRuleId   *int      `json:"suggesting_rule_id"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type BankFeedItemsConnection struct {
	Edges    []*BankFeedItemsEdge `json:"edges"`
	PageInfo *PageInfo            `json:"pageInfo"`
}

type BankFeedItemsEdge struct {
	Cursor string        `json:"cursor"`
	Node   *BankFeedItem `json:"node"`
}

func (i BankFeedItem) GetCursor() string {
	return i.CreatedAt.String()
}

// IsInflow reports whether money moved into the bank account.
func (i BankFeedItem) IsInflow() bool {
	return i.Amount.IsPositive()
}

// AbsAmount is the unsigned statement amount used for matching and splits.
func (i BankFeedItem) AbsAmount() decimal.Decimal {
	return i.Amount.Abs()
}

// Feed item state machine:
//
//	NEW -> MATCHED | CREATED | SPLIT | IGNORED
//	MATCHED, CREATED -> NEW (unmatch)
//	IGNORED -> NEW (unignore)
//	SPLIT is terminal.
func (s FeedItemStatus) CanTransitionTo(next FeedItemStatus) bool {
	switch s {
	case FeedItemStatusNew:
		return next == FeedItemStatusMatched || next == FeedItemStatusCreated ||
			next == FeedItemStatusSplit || next == FeedItemStatusIgnored
	case FeedItemStatusMatched, FeedItemStatusCreated, FeedItemStatusIgnored:
		return next == FeedItemStatusNew
	default:
		return false
	}
}

// NormalizeFeedDescription lowercases and collapses runs of whitespace so
// "COFFEE  SUPPLY" and "coffee supply" dedup to the same row.
func NormalizeFeedDescription(description string) string {
	return strings.Join(strings.Fields(strings.ToLower(description)), " ")
}

func GetBankFeedItem(ctx context.Context, id int) (*BankFeedItem, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	var result BankFeedItem
	err := db.WithContext(ctx).Preload("MatchedTransaction").
		Where("company_id = ?", companyId).
		First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// GetNewBankFeedItems lists unreconciled items for an account, oldest first.
func GetNewBankFeedItems(ctx context.Context, bankAccountId int) ([]*BankFeedItem, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	db := config.GetDB()
	var results []*BankFeedItem
	err := db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Where("bank_account_id = ?", bankAccountId).
		Where("status = ?", FeedItemStatusNew).
		Order("posted_date").Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FindDuplicateFeedItem checks the dedup identity
// (bank account, posted date, amount, normalized description).
func FindDuplicateFeedItem(ctx context.Context, db *gorm.DB, companyId string,
	bankAccountId int, postedDate time.Time, amount decimal.Decimal, normalizedDescription string) (bool, error) {

	var count int64
	err := db.WithContext(ctx).Model(&BankFeedItem{}).
		Where("company_id = ?", companyId).
		Where("bank_account_id = ?", bankAccountId).
		Where("posted_date = ?", postedDate).
		Where("amount = ?", amount).
		Where("normalized_description = ?", normalizedDescription).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func PaginateBankFeedItems(ctx context.Context, limit *int, after *string,
	bankAccountId *int, status *FeedItemStatus, batchId *int) (*BankFeedItemsConnection, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("MatchedTransaction").Where("company_id = ?", companyId)
	if bankAccountId != nil && *bankAccountId > 0 {
		dbCtx.Where("bank_account_id = ?", *bankAccountId)
	}
	if status != nil {
		dbCtx.Where("status = ?", *status)
	}
	if batchId != nil && *batchId > 0 {
		dbCtx.Where("batch_id = ?", *batchId)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[BankFeedItem](dbCtx, *limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}

	var connection BankFeedItemsConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		itemEdge := BankFeedItemsEdge{Cursor: edge.Cursor, Node: edge.Node}
		connection.Edges = append(connection.Edges, &itemEdge)
	}

	return &connection, nil
}
