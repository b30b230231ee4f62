package main

import (
	"net/http"

	"bitbucket.org/quartzbooks/ledger_backend/middlewares"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"bitbucket.org/quartzbooks/ledger_backend/workflow"
	"github.com/gin-gonic/gin"
)

func importBankFeedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.NewBankFeedImport
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		batch, err := workflow.ImportBankFeed(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, batch)
	}
}

func listBankFeedBatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bankAccountId, ok := optionalQueryInt(c, "bank_account_id")
		if !ok {
			return
		}
		limit, ok := optionalQueryInt(c, "limit")
		if !ok {
			return
		}
		batches, err := models.GetBankFeedBatches(c.Request.Context(), bankAccountId, limit)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, batches)
	}
}

func getBankFeedBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		batch, err := models.GetBankFeedBatch(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func bankFeedStatementURLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		url, err := models.GetBankFeedBatchStatementURL(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"statement_url": url})
	}
}

func listBankFeedItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, after, ok := paginationParams(c)
		if !ok {
			return
		}
		bankAccountId, ok := optionalQueryInt(c, "bank_account_id")
		if !ok {
			return
		}
		batchId, ok := optionalQueryInt(c, "batch_id")
		if !ok {
			return
		}
		var status *models.FeedItemStatus
		if raw := optionalQueryString(c, "status"); raw != nil {
			s := models.FeedItemStatus(*raw)
			switch s {
			case models.FeedItemStatusNew, models.FeedItemStatusMatched,
				models.FeedItemStatusCreated, models.FeedItemStatusIgnored,
				models.FeedItemStatusSplit:
				status = &s
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of New, Matched, Created, Ignored, Split"})
				return
			}
		}
		connection, err := models.PaginateBankFeedItems(c.Request.Context(), limit, after, bankAccountId, status, batchId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, connection)
	}
}

// unmatchedBankFeedItemsHandler is the reconciliation worklist for one bank
// account, oldest statement line first.
func unmatchedBankFeedItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bankAccountId, ok := optionalQueryInt(c, "bank_account_id")
		if !ok {
			return
		}
		if bankAccountId == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bank_account_id is required"})
			return
		}
		items, err := workflow.FindUnmatchedItems(c.Request.Context(), *bankAccountId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		rows := make([]*unmatchedItemRow, 0, len(items))
		for _, item := range items {
			row := &unmatchedItemRow{BankFeedItem: item}
			// The account loader batches these lookups across the loop.
			if item.SuggestedAccountId != nil && *item.SuggestedAccountId > 0 {
				account, err := middlewares.GetAccount(c.Request.Context(), *item.SuggestedAccountId)
				if err != nil {
					abortWithError(c, err)
					return
				}
				row.SuggestedAccount = account
			}
			rows = append(rows, row)
		}
		c.JSON(http.StatusOK, rows)
	}
}

// unmatchedItemRow is a worklist entry: the feed item plus the account its
// rule suggestion points at, so the coding proposal is displayable as-is.
type unmatchedItemRow struct {
	*models.BankFeedItem
	SuggestedAccount *models.Account `json:"suggested_account,omitempty"`
}

func getBankFeedItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		item, err := models.GetBankFeedItem(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		detail := feedItemDetail{BankFeedItem: item}
		if item.TransactionId != nil && *item.TransactionId > 0 {
			lines, err := middlewares.GetTransactionLines(c.Request.Context(), *item.TransactionId)
			if err != nil {
				abortWithError(c, err)
				return
			}
			detail.MatchedTransactionLines = lines
		}
		c.JSON(http.StatusOK, detail)
	}
}

type feedItemDetail struct {
	*models.BankFeedItem
	MatchedTransactionLines []*models.TransactionLine `json:"matched_transaction_lines,omitempty"`
}

func matchCandidatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		windowDays, ok := optionalQueryInt(c, "window_days")
		if !ok {
			return
		}
		candidates, err := workflow.FindMatchCandidates(c.Request.Context(), id, windowDays)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, candidates)
	}
}

type matchItemRequest struct {
	TransactionId int              `json:"transaction_id" binding:"required"`
	MatchType     models.MatchType `json:"match_type"`
}

func matchBankFeedItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req matchItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		matchType := req.MatchType
		if matchType == "" {
			matchType = models.MatchTypeManual
		}
		item, err := workflow.MatchItem(c.Request.Context(), id, req.TransactionId, matchType)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func unmatchBankFeedItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		item, err := workflow.UnmatchItem(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func ignoreBankFeedItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		item, err := workflow.IgnoreItem(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func unignoreBankFeedItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		item, err := workflow.UnignoreItem(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

type splitItemRequest struct {
	Allocations []workflow.SplitAllocation `json:"allocations" binding:"required"`
}

func splitBankFeedItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req splitItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item, transaction, err := workflow.SplitItem(c.Request.Context(), id, req.Allocations)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": item, "transaction": transaction})
	}
}

// AccountId is optional: when omitted the item's rule suggestion is used
// and the match is recorded as Auto.
type createTransactionForItemRequest struct {
	AccountId int    `json:"account_id"`
	TaxCode   string `json:"tax_code"`
	Memo      string `json:"memo"`
}

func createTransactionForItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req createTransactionForItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item, transaction, err := workflow.CreateTransactionForItem(c.Request.Context(), id, req.AccountId, req.TaxCode, req.Memo)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": item, "transaction": transaction})
	}
}

// reconciliationMatchRow is one audit entry plus the transaction it points
// at, hydrated through the batched transaction loader.
type reconciliationMatchRow struct {
	*models.ReconciliationMatch
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

func listReconciliationMatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		feedItemId, ok := optionalQueryInt(c, "feed_item_id")
		if !ok {
			return
		}
		transactionId, ok := optionalQueryInt(c, "transaction_id")
		if !ok {
			return
		}
		limit, ok := optionalQueryInt(c, "limit")
		if !ok {
			return
		}
		matches, err := models.GetReconciliationMatches(c.Request.Context(), feedItemId, transactionId, limit)
		if err != nil {
			abortWithError(c, err)
			return
		}
		rows := make([]*reconciliationMatchRow, 0, len(matches))
		for _, match := range matches {
			transaction, err := middlewares.GetTransaction(c.Request.Context(), match.TransactionId)
			if err != nil {
				abortWithError(c, err)
				return
			}
			rows = append(rows, &reconciliationMatchRow{ReconciliationMatch: match, Transaction: transaction})
		}
		c.JSON(http.StatusOK, rows)
	}
}
