package config

import (
	"os"
	"strings"
)

// SuggestCodingOnImport controls whether bank feed ingestion runs the
// allocation rule matcher over each new item and stores the suggested coding.
//
// Set via env:
// - FEED_CODING_SUGGESTIONS=false to disable (default on)
func SuggestCodingOnImport() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("FEED_CODING_SUGGESTIONS")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// OutboxDirectDispatch makes outbox writers attempt an immediate dispatch
// right after commit instead of waiting for the next dispatcher tick.
//
// Set via env:
// - OUTBOX_DIRECT_DISPATCH=true
func OutboxDirectDispatch() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DIRECT_DISPATCH")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
