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

// AllocationRule codes incoming bank feed descriptions to an account.
// Rules are immutable once created: delete and recreate to change one.
// Enable/disable is the only mutation, applied via ToggleActiveModel.
type AllocationRule struct {
	ID              int              `gorm:"primary_key" json:"id"`
	CompanyId       string           `gorm:"index;not null" json:"company_id"`
	Name            string           `gorm:"size:100;not null" json:"name" binding:"required"`
	MatchExpression string           `gorm:"size:255;not null" json:"match_expression" binding:"required"`
	AmountMin       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount_min"`
	AmountMax       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount_max"`
	TargetAccountId int              `gorm:"index;not null" json:"target_account_id" binding:"required"`
	TargetTaxCode   string           `gorm:"size:20" json:"target_tax_code"`
	MemoTemplate    string           `gorm:"size:255" json:"memo_template"`
	Priority        int              `gorm:"not null;default:0;index" json:"priority"`
	IsActive        *bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAllocationRule struct {
	Name            string           `json:"name" binding:"required"`
	MatchExpression string           `json:"match_expression" binding:"required"`
	AmountMin       *decimal.Decimal `json:"amount_min"`
	AmountMax       *decimal.Decimal `json:"amount_max"`
	TargetAccountId int              `json:"target_account_id" binding:"required"`
	TargetTaxCode   string           `json:"target_tax_code"`
	MemoTemplate    string           `json:"memo_template"`
	Priority        int              `json:"priority"`
}

func (r *AllocationRule) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("allocation rules are immutable: delete and recreate instead")
}

func (r AllocationRule) GetId() int {
	return r.ID
}

// Rules carry no document date; nothing to lock against.
func (r AllocationRule) CheckPeriodLock(ctx context.Context) error {
	return nil
}

// MatchPattern normalizes the stored expression for substring matching.
// Accepts both a bare literal and the CONTAINS '...' form; always lowercase.
func (r AllocationRule) MatchPattern() string {
	expr := strings.TrimSpace(r.MatchExpression)
	upper := strings.ToUpper(expr)
	if strings.HasPrefix(upper, "CONTAINS") {
		rest := strings.TrimSpace(expr[len("CONTAINS"):])
		rest = strings.TrimPrefix(rest, "'")
		rest = strings.TrimSuffix(rest, "'")
		expr = rest
	}
	return strings.ToLower(expr)
}

// AmountWithin reports whether the amount satisfies the optional bounds.
// A nil bound leaves that side unconstrained.
func (r AllocationRule) AmountWithin(amount decimal.Decimal) bool {
	if r.AmountMin != nil && amount.LessThan(*r.AmountMin) {
		return false
	}
	if r.AmountMax != nil && amount.GreaterThan(*r.AmountMax) {
		return false
	}
	return true
}

func (input *NewAllocationRule) validate(ctx context.Context, companyId string) error {
	if err := utils.ValidateResourceId[Account](ctx, companyId, input.TargetAccountId); err != nil {
		return errors.New("target account not found")
	}
	if strings.TrimSpace(input.MatchExpression) == "" {
		return &InvalidArgumentError{Field: "match_expression", Reason: "must not be empty"}
	}
	if input.AmountMin != nil && input.AmountMax != nil && input.AmountMin.GreaterThan(*input.AmountMax) {
		return &InvalidArgumentError{Field: "amount_min", Reason: "must not exceed amount_max"}
	}
	return nil
}

func CreateAllocationRule(ctx context.Context, input *NewAllocationRule) (*AllocationRule, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := input.validate(ctx, companyId); err != nil {
		return nil, err
	}

	isActive := true
	rule := AllocationRule{
		CompanyId:       companyId,
		Name:            input.Name,
		MatchExpression: input.MatchExpression,
		AmountMin:       input.AmountMin,
		AmountMax:       input.AmountMax,
		TargetAccountId: input.TargetAccountId,
		TargetTaxCode:   input.TargetTaxCode,
		MemoTemplate:    input.MemoTemplate,
		Priority:        input.Priority,
		IsActive:        &isActive,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&rule).Error; err != nil {
		return nil, err
	}
	if err := rule.RemoveAllRedis(); err != nil {
		return nil, err
	}
	return &rule, nil
}

func DeleteAllocationRule(ctx context.Context, id int) (*AllocationRule, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	rule, err := utils.FetchModelForChange[AllocationRule](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&rule).Error; err != nil {
		return nil, err
	}
	if err := RemoveRedisBoth(*rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func ToggleActiveAllocationRule(ctx context.Context, id int, isActive bool) (*AllocationRule, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return ToggleActiveModel[AllocationRule](ctx, companyId, id, isActive)
}

func GetAllocationRule(ctx context.Context, id int) (*AllocationRule, error) {
	return GetResource[AllocationRule](ctx, id)
}

// ListAllocationRules returns the company's rules in match order:
// priority descending, then id ascending so older rules win ties.
func ListAllocationRules(ctx context.Context) ([]*AllocationRule, error) {
	return ListAllResource[AllocationRule](ctx, "priority DESC", "id ASC")
}

// GetEnabledAllocationRules filters the cached list down to active rules.
func GetEnabledAllocationRules(ctx context.Context) ([]*AllocationRule, error) {
	rules, err := ListAllocationRules(ctx)
	if err != nil {
		return nil, err
	}
	enabled := make([]*AllocationRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive != nil && *r.IsActive {
			enabled = append(enabled, r)
		}
	}
	return enabled, nil
}
