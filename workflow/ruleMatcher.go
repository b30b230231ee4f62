package workflow

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
)

// FindMatchingRule walks an already-ordered rule slice (priority descending,
// id ascending; see ListAllocationRules) and returns the first enabled rule
// whose pattern appears in the description and whose amount bounds admit the
// amount. Nil when nothing matches. Pure function: deterministic given the
// slice order, so equal priorities resolve to the lower id.
func FindMatchingRule(rules []*models.AllocationRule, description string, amount decimal.Decimal) *models.AllocationRule {
	haystack := strings.ToLower(description)
	for _, rule := range rules {
		if rule.IsActive != nil && !*rule.IsActive {
			continue
		}
		pattern := rule.MatchPattern()
		if pattern == "" {
			continue
		}
		if !strings.Contains(haystack, pattern) {
			continue
		}
		if !rule.AmountWithin(amount) {
			continue
		}
		return rule
	}
	return nil
}

// FindMatchingRuleForCompany loads the company's enabled rules and matches.
func FindMatchingRuleForCompany(ctx context.Context, description string, amount decimal.Decimal) (*models.AllocationRule, error) {
	rules, err := models.GetEnabledAllocationRules(ctx)
	if err != nil {
		return nil, err
	}
	return FindMatchingRule(rules, description, amount), nil
}

// ApplyMemoTemplate substitutes {description}, {amount} and {date} tokens.
// An empty template falls back to the raw description.
func ApplyMemoTemplate(template string, description string, amount decimal.Decimal, date time.Time) string {
	if template == "" {
		return description
	}
	memo := template
	memo = strings.ReplaceAll(memo, "{description}", description)
	memo = strings.ReplaceAll(memo, "{amount}", amount.String())
	memo = strings.ReplaceAll(memo, "{date}", date.Format("2006-01-02"))
	return memo
}

// TestAllocationRule runs the matcher against a hypothetical feed line.
// Used by the rule-test endpoint so users can dry-run a ruleset.
type RuleTestResult struct {
	Matched         bool   `json:"matched"`
	RuleId          int    `json:"rule_id,omitempty"`
	RuleName        string `json:"rule_name,omitempty"`
	TargetAccountId int    `json:"target_account_id,omitempty"`
	TargetTaxCode   string `json:"target_tax_code,omitempty"`
	Memo            string `json:"memo,omitempty"`
}

func TestAllocationRule(ctx context.Context, description string, amount decimal.Decimal, date time.Time) (*RuleTestResult, error) {
	rule, err := FindMatchingRuleForCompany(ctx, description, amount)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return &RuleTestResult{Matched: false}, nil
	}
	return &RuleTestResult{
		Matched:         true,
		RuleId:          rule.ID,
		RuleName:        rule.Name,
		TargetAccountId: rule.TargetAccountId,
		TargetTaxCode:   rule.TargetTaxCode,
		Memo:            ApplyMemoTemplate(rule.MemoTemplate, description, amount, date),
	}, nil
}
