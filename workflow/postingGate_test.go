package workflow

import (
	"testing"

	"bitbucket.org/quartzbooks/ledger_backend/models"
)

func TestLockTypeForReferenceType(t *testing.T) {
	cases := []struct {
		referenceType string
		lockType      models.PeriodLockType
		gated         bool
	}{
		{"TXN", models.AccountantPeriodLock, true},
		{"IV", models.ReceivablePeriodLock, true},
		{"RA", models.ReceivablePeriodLock, true},
		{"BL", models.PayablePeriodLock, true},
		{"PA", models.PayablePeriodLock, true},
		{"BFI", models.BankingPeriodLock, true},
		{"BFB", models.BankingPeriodLock, true},
		{"RM", models.BankingPeriodLock, true},
		{"AC", "", false},
		{"CT", "", false},
		{"ARL", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		lockType, gated := LockTypeForReferenceType(tc.referenceType)
		if gated != tc.gated {
			t.Fatalf("%q: expected gated=%v, got %v", tc.referenceType, tc.gated, gated)
		}
		if lockType != tc.lockType {
			t.Fatalf("%q: expected lock type %q, got %q", tc.referenceType, tc.lockType, lockType)
		}
	}
}
