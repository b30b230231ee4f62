package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/models/reports"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"bitbucket.org/quartzbooks/ledger_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Golden-path regression over the whole engine: posting lifecycle, reversal,
// allocation ceilings, feed import with dedup and rule suggestions, candidate
// matching, the feed item state machine, splits, and the derived reports.
func TestPostingAllocationAndReconciliationGoldenFlow(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "ledger_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	// Audit hooks require a user in context.
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	company, err := models.CreateCompany(ctx, &models.NewCompany{
		Name:     "Golden Ledger Co",
		Email:    "owner@golden.local",
		Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	companyId := company.ID.String()
	ctx = utils.SetCompanyIdInContext(ctx, companyId)

	sysAccounts, err := models.GetSystemAccounts(companyId)
	if err != nil {
		t.Fatalf("GetSystemAccounts: %v", err)
	}
	bankId := sysAccounts[models.AccountCodeBank]
	arId := sysAccounts[models.AccountCodeAccountsReceivable]
	salesId := sysAccounts[models.AccountCodeSales]
	expenseId := sysAccounts[models.AccountCodeGeneralExpense]
	feesId := sysAccounts[models.AccountCodeBankFees]
	if bankId == 0 || arId == 0 || salesId == 0 || expenseId == 0 || feesId == 0 {
		t.Fatalf("missing system accounts (bank=%d ar=%d sales=%d exp=%d fee=%d)",
			bankId, arId, salesId, expenseId, feesId)
	}

	// 1) Posting lifecycle: draft -> posted, double post refused.
	draft, err := models.CreateTransaction(ctx, &models.NewTransaction{
		Type:        models.TransactionTypeReceipt,
		Date:        time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		Description: "Initial receipt",
		Lines: []models.NewTransactionLine{
			{AccountId: bankId, Amount: decimal.RequireFromString("500.00"), Direction: models.LineDirectionDebit},
			{AccountId: arId, Amount: decimal.RequireFromString("500.00"), Direction: models.LineDirectionCredit},
		},
	})
	if err != nil {
		t.Fatalf("CreateTransaction(draft): %v", err)
	}
	if draft.Status != models.TransactionStatusDraft {
		t.Fatalf("expected Draft status, got %s", draft.Status)
	}
	if draft.PostedAt != nil {
		t.Fatalf("a draft must not carry posting metadata")
	}
	if !strings.HasPrefix(draft.Number, "RCT-") {
		t.Fatalf("expected receipt number prefix RCT-, got %s", draft.Number)
	}

	posted, err := workflow.PostTransaction(ctx, draft.ID)
	if err != nil {
		t.Fatalf("PostTransaction: %v", err)
	}
	if posted.Status != models.TransactionStatusPosted || posted.PostedAt == nil {
		t.Fatalf("expected Posted with posting metadata, got %s / %v", posted.Status, posted.PostedAt)
	}
	if posted.PostedBy != "Test" {
		t.Fatalf("expected PostedBy Test, got %q", posted.PostedBy)
	}

	_, err = workflow.PostTransaction(ctx, draft.ID)
	var invalidState *models.InvalidStateError
	if !errors.As(err, &invalidState) {
		t.Fatalf("expected InvalidStateError on double post, got %v", err)
	}

	// Unbalanced drafts are storable but refuse to post.
	unbalanced, err := models.CreateTransaction(ctx, &models.NewTransaction{
		Type: models.TransactionTypeJournal,
		Date: time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
		Lines: []models.NewTransactionLine{
			{AccountId: bankId, Amount: decimal.RequireFromString("100.00"), Direction: models.LineDirectionDebit},
			{AccountId: salesId, Amount: decimal.RequireFromString("99.99"), Direction: models.LineDirectionCredit},
		},
	})
	if err != nil {
		t.Fatalf("CreateTransaction(unbalanced): %v", err)
	}
	_, err = workflow.PostTransaction(ctx, unbalanced.ID)
	var unbalancedErr *models.UnbalancedError
	if !errors.As(err, &unbalancedErr) {
		t.Fatalf("expected UnbalancedError, got %v", err)
	}
	reloaded, err := models.GetTransaction(ctx, unbalanced.ID)
	if err != nil {
		t.Fatalf("GetTransaction(unbalanced): %v", err)
	}
	if reloaded.Status != models.TransactionStatusDraft {
		t.Fatalf("a failed post must leave the draft untouched, got %s", reloaded.Status)
	}

	// 2) Reversal: opposite legs, linked both ways, idempotent.
	reversal, err := workflow.ReverseTransaction(ctx, posted.ID, "duplicate entry", nil)
	if err != nil {
		t.Fatalf("ReverseTransaction: %v", err)
	}
	if !reversal.IsReversal || reversal.ReversesTransactionId == nil || *reversal.ReversesTransactionId != posted.ID {
		t.Fatalf("reversal linkage wrong: %+v", reversal)
	}
	if reversal.Number != "REV-"+posted.Number {
		t.Fatalf("expected reversal number REV-%s, got %s", posted.Number, reversal.Number)
	}
	if len(reversal.Lines) != 2 {
		t.Fatalf("expected 2 reversal lines, got %d", len(reversal.Lines))
	}
	for i, l := range reversal.Lines {
		original := posted.Lines[i]
		if l.Direction != original.Direction.Opposite() || !l.Amount.Equal(original.Amount) {
			t.Fatalf("line %d: expected %s %s flipped, got %s %s",
				i, original.Direction, original.Amount.String(), l.Direction, l.Amount.String())
		}
	}
	originalAfter, err := models.GetTransaction(ctx, posted.ID)
	if err != nil {
		t.Fatalf("GetTransaction(original): %v", err)
	}
	if originalAfter.Status != models.TransactionStatusReversed {
		t.Fatalf("expected original Reversed, got %s", originalAfter.Status)
	}
	if originalAfter.ReversedByTransactionId == nil || *originalAfter.ReversedByTransactionId != reversal.ID {
		t.Fatalf("original not linked to reversal")
	}

	again, err := workflow.ReverseTransaction(ctx, posted.ID, "second attempt", nil)
	if err != nil {
		t.Fatalf("ReverseTransaction(repeat): %v", err)
	}
	if again.ID != reversal.ID {
		t.Fatalf("reversing twice must return the existing reversal, got %d and %d", reversal.ID, again.ID)
	}

	// Concurrent reversals settle under the company posting lock: every caller
	// gets the same reversal and exactly one reversal row exists.
	raceDraft, err := models.CreateTransaction(ctx, &models.NewTransaction{
		Type:        models.TransactionTypeJournal,
		Date:        time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
		Description: "Accrual to reverse",
		Lines: []models.NewTransactionLine{
			{AccountId: expenseId, Amount: decimal.RequireFromString("80.00"), Direction: models.LineDirectionDebit},
			{AccountId: salesId, Amount: decimal.RequireFromString("80.00"), Direction: models.LineDirectionCredit},
		},
	})
	if err != nil {
		t.Fatalf("CreateTransaction(race reversal target): %v", err)
	}
	raceTarget, err := workflow.PostTransaction(ctx, raceDraft.ID)
	if err != nil {
		t.Fatalf("PostTransaction(race reversal target): %v", err)
	}

	const racers = 4
	var wg sync.WaitGroup
	reversalIds := make([]int, racers)
	reversalErrs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := workflow.ReverseTransaction(ctx, raceTarget.ID, "booked twice", nil)
			if err != nil {
				reversalErrs[i] = err
				return
			}
			reversalIds[i] = r.ID
		}(i)
	}
	wg.Wait()
	for i := 0; i < racers; i++ {
		if reversalErrs[i] != nil {
			t.Fatalf("concurrent ReverseTransaction[%d]: %v", i, reversalErrs[i])
		}
		if reversalIds[i] != reversalIds[0] {
			t.Fatalf("concurrent reversals returned different reversals: %v", reversalIds)
		}
	}
	var reversalRows int64
	if err := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("reverses_transaction_id = ?", raceTarget.ID).
		Count(&reversalRows).Error; err != nil {
		t.Fatalf("count reversal rows: %v", err)
	}
	if reversalRows != 1 {
		t.Fatalf("expected exactly one reversal row for transaction %d, got %d", raceTarget.ID, reversalRows)
	}

	// Concurrent posts of the same draft: one winner, the rest refused, and a
	// single audit row and outbox event.
	racePostDraft, err := models.CreateTransaction(ctx, &models.NewTransaction{
		Type:        models.TransactionTypeJournal,
		Date:        time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
		Description: "Posted from two tabs",
		Lines: []models.NewTransactionLine{
			{AccountId: expenseId, Amount: decimal.RequireFromString("60.00"), Direction: models.LineDirectionDebit},
			{AccountId: salesId, Amount: decimal.RequireFromString("60.00"), Direction: models.LineDirectionCredit},
		},
	})
	if err != nil {
		t.Fatalf("CreateTransaction(race post target): %v", err)
	}
	postErrs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, postErrs[i] = workflow.PostTransaction(ctx, racePostDraft.ID)
		}(i)
	}
	wg.Wait()
	winners := 0
	for i, err := range postErrs {
		if err == nil {
			winners++
			continue
		}
		if !errors.As(err, &invalidState) {
			t.Fatalf("concurrent PostTransaction[%d]: expected InvalidStateError, got %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning post, got %d", winners)
	}
	var postAudits int64
	if err := db.WithContext(ctx).Model(&models.AuditLog{}).
		Where("action_type = ? AND reference_id = ?", "POST", racePostDraft.ID).
		Count(&postAudits).Error; err != nil {
		t.Fatalf("count post audit rows: %v", err)
	}
	if postAudits != 1 {
		t.Fatalf("expected one POST audit row, got %d", postAudits)
	}
	var postEvents int64
	if err := db.WithContext(ctx).Model(&models.PubSubMessageRecord{}).
		Where("reference_type = ? AND reference_id = ? AND action = ?",
			models.LedgerReferenceTypeTransaction, racePostDraft.ID, models.PubSubMessageActionCreate).
		Count(&postEvents).Error; err != nil {
		t.Fatalf("count post outbox events: %v", err)
	}
	if postEvents != 1 {
		t.Fatalf("expected one outbox event for the post, got %d", postEvents)
	}

	// 3) Allocation: ceilings enforced, status derived from allocations.
	customer, err := models.CreateContact(ctx, &models.NewContact{
		Type: models.ContactTypeCustomer,
		Name: "Acme Trading",
	})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	invoice, err := models.CreateInvoice(ctx, &models.NewInvoice{
		ContactId: customer.ID,
		IssueDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Reference: "SO-1001",
		Total:     decimal.RequireFromString("300.00"),
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if invoice.Status != models.InvoiceStatusOpen {
		t.Fatalf("expected new invoice Open, got %s", invoice.Status)
	}

	receiptDraft, err := models.CreateTransaction(ctx, &models.NewTransaction{
		Type:        models.TransactionTypeReceipt,
		Date:        time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC),
		Description: "Receipt from ACME TRADING",
		Reference:   "SO-1001",
		ContactId:   customer.ID,
		Lines: []models.NewTransactionLine{
			{AccountId: bankId, Amount: decimal.RequireFromString("500.00"), Direction: models.LineDirectionDebit},
			{AccountId: arId, Amount: decimal.RequireFromString("500.00"), Direction: models.LineDirectionCredit},
		},
	})
	if err != nil {
		t.Fatalf("CreateTransaction(receipt): %v", err)
	}
	receipt, err := workflow.PostTransaction(ctx, receiptDraft.ID)
	if err != nil {
		t.Fatalf("PostTransaction(receipt): %v", err)
	}

	suggestions, err := workflow.SuggestAllocations(ctx, receipt.ID)
	if err != nil {
		t.Fatalf("SuggestAllocations: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].DocumentId != invoice.ID {
		t.Fatalf("expected one suggestion for invoice %d, got %+v", invoice.ID, suggestions)
	}
	if !suggestions[0].Suggested.Equal(decimal.RequireFromString("300.00")) {
		t.Fatalf("expected suggestion capped at outstanding 300.00, got %s", suggestions[0].Suggested.String())
	}

	allocation, err := workflow.AllocateReceivable(ctx, receipt.ID, invoice.ID, decimal.RequireFromString("300.00"))
	if err != nil {
		t.Fatalf("AllocateReceivable: %v", err)
	}
	unallocated, err := workflow.GetUnallocatedAmount(ctx, receipt.ID)
	if err != nil {
		t.Fatalf("GetUnallocatedAmount: %v", err)
	}
	if !unallocated.Equal(decimal.RequireFromString("200.00")) {
		t.Fatalf("expected 200.00 unallocated after a 300.00 allocation, got %s", unallocated.String())
	}
	paidInvoice, err := models.GetInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if paidInvoice.Status != models.InvoiceStatusPaid || !paidInvoice.Outstanding.IsZero() {
		t.Fatalf("expected Paid with zero outstanding, got %s / %s",
			paidInvoice.Status, paidInvoice.Outstanding.String())
	}

	_, err = workflow.AllocateReceivable(ctx, receipt.ID, invoice.ID, decimal.RequireFromString("250.00"))
	var overAllocation *models.OverAllocationError
	if !errors.As(err, &overAllocation) {
		t.Fatalf("expected OverAllocationError, got %v", err)
	}

	removed, err := workflow.RemoveReceivableAllocation(ctx, allocation.ID)
	if err != nil {
		t.Fatalf("RemoveReceivableAllocation: %v", err)
	}
	if !removed.Amount.Equal(decimal.RequireFromString("300.00")) {
		t.Fatalf("expected removed allocation of 300.00, got %s", removed.Amount.String())
	}
	reopened, err := models.GetInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoice(after removal): %v", err)
	}
	if reopened.Status != models.InvoiceStatusOpen || !reopened.Outstanding.Equal(decimal.RequireFromString("300.00")) {
		t.Fatalf("expected Open with 300.00 outstanding after removal, got %s / %s",
			reopened.Status, reopened.Outstanding.String())
	}
	if _, err := workflow.AllocateReceivable(ctx, receipt.ID, invoice.ID, decimal.RequireFromString("300.00")); err != nil {
		t.Fatalf("AllocateReceivable(again): %v", err)
	}

	// 4) Feed import: dedup on the normalized identity, rule suggestions.
	rule, err := models.CreateAllocationRule(ctx, &models.NewAllocationRule{
		Name:            "Coffee supplies",
		MatchExpression: "COFFEE",
		TargetAccountId: expenseId,
		MemoTemplate:    "Coffee run {description}",
		Priority:        10,
	})
	if err != nil {
		t.Fatalf("CreateAllocationRule: %v", err)
	}

	batch, err := workflow.ImportBankFeed(ctx, &workflow.NewBankFeedImport{
		BankAccountId: bankId,
		SourceName:    "test-import",
		Items: []workflow.NewBankFeedRow{
			{PostedDate: time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("500.00"), Description: "ACME TRADING TRANSFER", Reference: "SO-1001"},
			{PostedDate: time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("-12.40"), Description: "COFFEE SUPPLY DOWNTOWN"},
			{PostedDate: time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("-12.40"), Description: "coffee  SUPPLY downtown"},
			{PostedDate: time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("-123.45"), Description: "OFFICE SUPPLIES CO"},
		},
	})
	if err != nil {
		t.Fatalf("ImportBankFeed: %v", err)
	}
	if batch.TotalCount != 4 || batch.NewCount != 3 || batch.DuplicateCount != 1 {
		t.Fatalf("expected counts 4/3/1, got %d/%d/%d", batch.TotalCount, batch.NewCount, batch.DuplicateCount)
	}

	items, err := models.GetNewBankFeedItems(ctx, bankId)
	if err != nil {
		t.Fatalf("GetNewBankFeedItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 new items, got %d", len(items))
	}
	acmeItem, coffeeItem, officeItem := items[0], items[1], items[2]
	if acmeItem.SuggestedAccountId != nil {
		t.Fatalf("acme item must carry no rule suggestion")
	}
	if coffeeItem.SuggestedAccountId == nil || *coffeeItem.SuggestedAccountId != expenseId {
		t.Fatalf("coffee item should suggest the expense account")
	}
	if coffeeItem.SuggestedMemo != "Coffee run COFFEE SUPPLY DOWNTOWN" {
		t.Fatalf("unexpected suggested memo %q", coffeeItem.SuggestedMemo)
	}
	if coffeeItem.SuggestingRuleId == nil || *coffeeItem.SuggestingRuleId != rule.ID {
		t.Fatalf("coffee item should reference the suggesting rule")
	}

	// 5) Candidates: exact amounts inside the ±7 day window, ordered by date
	// distance; an equal-amount transaction 20 days out stays off the list
	// even though it shares description tokens with the item.
	nearDraft, err := models.CreateTransaction(ctx, &models.NewTransaction{
		Type:        models.TransactionTypeReceipt,
		Date:        time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
		Description: "Wire in",
		Lines: []models.NewTransactionLine{
			{AccountId: bankId, Amount: decimal.RequireFromString("500.00"), Direction: models.LineDirectionDebit},
			{AccountId: arId, Amount: decimal.RequireFromString("500.00"), Direction: models.LineDirectionCredit},
		},
	})
	if err != nil {
		t.Fatalf("CreateTransaction(near receipt): %v", err)
	}
	nearReceipt, err := workflow.PostTransaction(ctx, nearDraft.ID)
	if err != nil {
		t.Fatalf("PostTransaction(near receipt): %v", err)
	}
	farDraft, err := models.CreateTransaction(ctx, &models.NewTransaction{
		Type:        models.TransactionTypeReceipt,
		Date:        time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		Description: "ACME TRADING LATE TRANSFER",
		Lines: []models.NewTransactionLine{
			{AccountId: bankId, Amount: decimal.RequireFromString("500.00"), Direction: models.LineDirectionDebit},
			{AccountId: arId, Amount: decimal.RequireFromString("500.00"), Direction: models.LineDirectionCredit},
		},
	})
	if err != nil {
		t.Fatalf("CreateTransaction(far receipt): %v", err)
	}
	if _, err := workflow.PostTransaction(ctx, farDraft.ID); err != nil {
		t.Fatalf("PostTransaction(far receipt): %v", err)
	}

	candidates, err := workflow.FindMatchCandidates(ctx, acmeItem.ID, nil)
	if err != nil {
		t.Fatalf("FindMatchCandidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected the same-day and +2d receipts as candidates, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Transaction.ID != receipt.ID || candidates[1].Transaction.ID != nearReceipt.ID {
		t.Fatalf("expected candidates ordered by date distance [%d %d], got [%d %d]",
			receipt.ID, nearReceipt.ID, candidates[0].Transaction.ID, candidates[1].Transaction.ID)
	}
	hasReason := func(c *workflow.MatchCandidate, want string) bool {
		for _, r := range c.Reasons {
			if r == want {
				return true
			}
		}
		return false
	}
	if !hasReason(candidates[0], "amount-exact") || !hasReason(candidates[0], "same-day") {
		t.Fatalf("expected amount-exact and same-day reasons, got %v", candidates[0].Reasons)
	}
	if !hasReason(candidates[1], "amount-exact") || !hasReason(candidates[1], "within-3-days") {
		t.Fatalf("expected amount-exact and within-3-days reasons on the +2d receipt, got %v", candidates[1].Reasons)
	}

	officeCandidates, err := workflow.FindMatchCandidates(ctx, officeItem.ID, nil)
	if err != nil {
		t.Fatalf("FindMatchCandidates(office): %v", err)
	}
	if len(officeCandidates) != 0 {
		t.Fatalf("expected no candidates for the office item, got %d", len(officeCandidates))
	}

	// 6) Match / unmatch round trip.
	matchedItem, err := workflow.MatchItem(ctx, acmeItem.ID, receipt.ID, models.MatchTypeManual)
	if err != nil {
		t.Fatalf("MatchItem: %v", err)
	}
	if matchedItem.Status != models.FeedItemStatusMatched || matchedItem.TransactionId == nil || *matchedItem.TransactionId != receipt.ID {
		t.Fatalf("match state wrong: %+v", matchedItem)
	}
	_, err = workflow.MatchItem(ctx, acmeItem.ID, receipt.ID, models.MatchTypeManual)
	var alreadyMatched *models.AlreadyMatchedError
	if !errors.As(err, &alreadyMatched) {
		t.Fatalf("expected AlreadyMatchedError on a second match, got %v", err)
	}
	unmatchedItem, err := workflow.UnmatchItem(ctx, acmeItem.ID)
	if err != nil {
		t.Fatalf("UnmatchItem: %v", err)
	}
	if unmatchedItem.Status != models.FeedItemStatusNew || unmatchedItem.TransactionId != nil {
		t.Fatalf("unmatch must revert to New with no transaction, got %+v", unmatchedItem)
	}

	// 7) Ignore / unignore round trip.
	if _, err := workflow.IgnoreItem(ctx, officeItem.ID); err != nil {
		t.Fatalf("IgnoreItem: %v", err)
	}
	unignored, err := workflow.UnignoreItem(ctx, officeItem.ID)
	if err != nil {
		t.Fatalf("UnignoreItem: %v", err)
	}
	if unignored.Status != models.FeedItemStatusNew {
		t.Fatalf("expected New after unignore, got %s", unignored.Status)
	}

	// 8) Split: exact-sum guard, posted counter legs, terminal state.
	_, _, err = workflow.SplitItem(ctx, officeItem.ID, []workflow.SplitAllocation{
		{AccountId: expenseId, Amount: decimal.RequireFromString("100.00")},
	})
	var splitErr *models.UnbalancedSplitError
	if !errors.As(err, &splitErr) {
		t.Fatalf("expected UnbalancedSplitError, got %v", err)
	}

	splitItem, splitTxn, err := workflow.SplitItem(ctx, officeItem.ID, []workflow.SplitAllocation{
		{AccountId: expenseId, Amount: decimal.RequireFromString("111.05"), Memo: "stationery"},
		{AccountId: feesId, Amount: decimal.RequireFromString("12.40")},
	})
	if err != nil {
		t.Fatalf("SplitItem: %v", err)
	}
	if splitItem.Status != models.FeedItemStatusSplit {
		t.Fatalf("expected Split status, got %s", splitItem.Status)
	}
	if splitTxn.Status != models.TransactionStatusPosted || splitTxn.Type != models.TransactionTypePayment {
		t.Fatalf("expected a posted Payment for an outflow split, got %s %s", splitTxn.Status, splitTxn.Type)
	}
	if len(splitTxn.Lines) != 3 {
		t.Fatalf("expected bank leg plus two counter legs, got %d lines", len(splitTxn.Lines))
	}
	if !splitTxn.DebitTotal().Equal(splitTxn.CreditTotal()) {
		t.Fatalf("split transaction does not balance: %s vs %s",
			splitTxn.DebitTotal().String(), splitTxn.CreditTotal().String())
	}
	if _, err := workflow.UnmatchItem(ctx, officeItem.ID); !errors.As(err, &invalidState) {
		t.Fatalf("split items are terminal; expected InvalidStateError, got %v", err)
	}

	// 9) NEW -> CREATED from the stored rule suggestion, recorded as Auto.
	createdItem, createdTxn, err := workflow.CreateTransactionForItem(ctx, coffeeItem.ID, 0, "", "")
	if err != nil {
		t.Fatalf("CreateTransactionForItem: %v", err)
	}
	if createdItem.Status != models.FeedItemStatusCreated {
		t.Fatalf("expected Created status, got %s", createdItem.Status)
	}
	if createdTxn.Status != models.TransactionStatusPosted || createdTxn.Type != models.TransactionTypePayment {
		t.Fatalf("expected a posted Payment, got %s %s", createdTxn.Status, createdTxn.Type)
	}
	if len(createdTxn.Lines) != 2 || createdTxn.Lines[1].Memo != "Coffee run COFFEE SUPPLY DOWNTOWN" {
		t.Fatalf("expected the suggested memo on the counter leg, got %+v", createdTxn.Lines)
	}
	var match models.ReconciliationMatch
	if err := db.WithContext(ctx).
		Where("feed_item_id = ?", coffeeItem.ID).
		Order("id DESC").First(&match).Error; err != nil {
		t.Fatalf("expected a reconciliation match row: %v", err)
	}
	if match.MatchType != models.MatchTypeAuto {
		t.Fatalf("suggestion-driven creation must record an Auto match, got %s", match.MatchType)
	}

	// 10) Trial balance: debits equal credits over the whole ledger.
	asOf := models.MyDateString(time.Now().UTC().AddDate(1, 0, 0))
	trialBalance, err := reports.GetTrialBalanceReport(ctx, asOf)
	if err != nil {
		t.Fatalf("GetTrialBalanceReport: %v", err)
	}
	if !trialBalance.TotalDebit.Equal(trialBalance.TotalCredit) {
		t.Fatalf("trial balance out of balance: debits %s, credits %s",
			trialBalance.TotalDebit.String(), trialBalance.TotalCredit.String())
	}
	if !trialBalance.TotalDebit.IsPositive() {
		t.Fatalf("expected a non-trivial trial balance, got %s", trialBalance.TotalDebit.String())
	}

	// 11) Daily balance projection agrees with the ledger.
	logger := logrus.New()
	if err := db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.RebuildDailyBalances(tx, logger, companyId, company.Timezone)
		return err
	}); err != nil {
		t.Fatalf("RebuildDailyBalances: %v", err)
	}
	days, err := models.ListAccountDailyBalances(ctx, bankId, nil, nil)
	if err != nil {
		t.Fatalf("ListAccountDailyBalances: %v", err)
	}
	if len(days) == 0 {
		t.Fatalf("expected daily balance rows for the bank account")
	}
	// 500 (reversed original) + 500 (receipt) + 500 (near) + 500 (far)
	// - 12.40 - 123.45 - 500 (reversal).
	closing := days[len(days)-1].RunningBalance
	if !closing.Equal(decimal.RequireFromString("1364.15")) {
		t.Fatalf("expected bank running balance 1364.15, got %s", closing.String())
	}

	// 12) Nothing above may leak the advisory posting lock onto a pooled
	// connection: the lock must be free once every unit of work returned.
	var lockFree int
	if err := db.WithContext(ctx).
		Raw("SELECT IS_FREE_LOCK(?)", "posting:"+companyId).
		Scan(&lockFree).Error; err != nil {
		t.Fatalf("IS_FREE_LOCK: %v", err)
	}
	if lockFree != 1 {
		t.Fatalf("posting lock for company %s leaked onto a pooled connection", companyId)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ledger-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ledger-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=ledger_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
