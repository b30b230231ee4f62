package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultCandidateWindowDays = 7

// MatchCandidate is a posted transaction proposed for a bank feed item,
// annotated with the reasons it qualified. Reasons are informational: the
// caller (or the user) picks, we do not auto-rank beyond date proximity.
type MatchCandidate struct {
	Transaction *models.Transaction `json:"transaction"`
	Reasons     []string            `json:"reasons"`
}

// FindMatchCandidates proposes posted transactions for a feed item.
//
// Pass 1 (exact): transactions touching the item's bank account whose
// movement through that account equals |item.amount| exactly, dated within
// ±windowDays (default 7) of the item's posted date.
//
// Pass 2 (fuzzy, only when Pass 1 finds nothing): the window doubles and the
// exact-amount requirement is replaced by description similarity: the two
// descriptions must share at least one case-folded whitespace token of three
// or more characters.
//
// Candidates come back ordered by date distance, then id.
func FindMatchCandidates(ctx context.Context, itemId int, windowDays *int) ([]*MatchCandidate, error) {

	item, err := models.GetBankFeedItem(ctx, itemId)
	if err != nil {
		return nil, err
	}

	window := defaultCandidateWindowDays
	if windowDays != nil && *windowDays > 0 {
		window = *windowDays
	}

	candidates, err := exactPass(ctx, item, window)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		candidates, err = fuzzyPass(ctx, item, window*2)
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := dayDistance(item.PostedDate, candidates[i].Transaction.Date)
		dj := dayDistance(item.PostedDate, candidates[j].Transaction.Date)
		if di != dj {
			return di < dj
		}
		return candidates[i].Transaction.ID < candidates[j].Transaction.ID
	})
	return candidates, nil
}

func exactPass(ctx context.Context, item *models.BankFeedItem, window int) ([]*MatchCandidate, error) {
	transactions, err := postedTransactionsTouchingAccount(ctx, item.CompanyId, item.BankAccountId,
		item.PostedDate.AddDate(0, 0, -window), item.PostedDate.AddDate(0, 0, window))
	if err != nil {
		return nil, err
	}

	want := item.AbsAmount()
	candidates := make([]*MatchCandidate, 0)
	for _, transaction := range transactions {
		if !accountMovement(transaction, item.BankAccountId).Equal(want) {
			continue
		}
		candidates = append(candidates, &MatchCandidate{
			Transaction: transaction,
			Reasons:     candidateReasons(item, transaction, true, window),
		})
	}
	return candidates, nil
}

func fuzzyPass(ctx context.Context, item *models.BankFeedItem, window int) ([]*MatchCandidate, error) {
	transactions, err := postedTransactionsTouchingAccount(ctx, item.CompanyId, item.BankAccountId,
		item.PostedDate.AddDate(0, 0, -window), item.PostedDate.AddDate(0, 0, window))
	if err != nil {
		return nil, err
	}

	want := item.AbsAmount()
	candidates := make([]*MatchCandidate, 0)
	for _, transaction := range transactions {
		if len(sharedTokens(item.Description, transaction.Description)) == 0 {
			continue
		}
		amountExact := accountMovement(transaction, item.BankAccountId).Equal(want)
		candidates = append(candidates, &MatchCandidate{
			Transaction: transaction,
			Reasons:     candidateReasons(item, transaction, amountExact, window),
		})
	}
	return candidates, nil
}

func postedTransactionsTouchingAccount(ctx context.Context, companyId string, accountId int, from, to time.Time) ([]*models.Transaction, error) {
	db := config.GetDB()
	lineFilter := db.WithContext(ctx).Model(&models.TransactionLine{}).
		Select("transaction_id").
		Where("account_id = ?", accountId)

	var transactions []*models.Transaction
	err := db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("company_id = ?", companyId).
		Where("status = ?", models.TransactionStatusPosted).
		Where("date BETWEEN ? AND ?", from, to).
		Where("id IN (?)", lineFilter).
		Order("date").Order("id").
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// accountMovement is the absolute net amount a transaction moves through one
// account: |sum(debits) - sum(credits)| over the lines hitting it. Absolute
// because feed items carry signed amounts and candidates are compared on
// magnitude.
func accountMovement(transaction *models.Transaction, accountId int) decimal.Decimal {
	net := decimal.Zero
	for _, line := range transaction.Lines {
		if line.AccountId != accountId {
			continue
		}
		if line.Direction == models.LineDirectionDebit {
			net = net.Add(line.Amount)
		} else {
			net = net.Sub(line.Amount)
		}
	}
	return net.Abs()
}

func candidateReasons(item *models.BankFeedItem, transaction *models.Transaction, amountExact bool, window int) []string {
	reasons := make([]string, 0, 3)
	if amountExact {
		reasons = append(reasons, "amount-exact")
	}
	switch d := dayDistance(item.PostedDate, transaction.Date); {
	case d == 0:
		reasons = append(reasons, "same-day")
	case d <= 3:
		reasons = append(reasons, "within-3-days")
	default:
		reasons = append(reasons, fmt.Sprintf("within-%d-days", window))
	}
	if shared := sharedTokens(item.Description, transaction.Description); len(shared) > 0 {
		reasons = append(reasons, "token-overlap: "+strings.Join(shared, ", "))
	}
	return reasons
}

func dayDistance(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(ad.Sub(bd).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

// descriptionTokens case-folds and splits on whitespace, keeping tokens of
// three or more characters. Short tokens ("to", "of", reference digits) cause
// too many accidental overlaps to be useful.
func descriptionTokens(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func sharedTokens(a, b string) []string {
	inB := make(map[string]bool)
	for _, t := range descriptionTokens(b) {
		inB[t] = true
	}
	shared := make([]string, 0)
	seen := make(map[string]bool)
	for _, t := range descriptionTokens(a) {
		if inB[t] && !seen[t] {
			shared = append(shared, t)
			seen[t] = true
		}
	}
	return shared
}
