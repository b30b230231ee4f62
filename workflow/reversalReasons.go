package workflow

// Standardized reasons for ledger reversals.
// These are human-readable strings stored in Transaction.reversal_reason.
// Callers may also pass free text; these cover the common cases.
const (
	ReversalReasonManual         = "Manual reversal"
	ReversalReasonDuplicateEntry = "Duplicate entry"
	ReversalReasonPostingError   = "Posting error"
	ReversalReasonWrongAccount   = "Posted to wrong account"
)
