package model

import (
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// LedgerView is the derived state of one account partition. It is rebuilt
// wholesale on every snapshot; OrderedEntries and RunningBalances are parallel.
type LedgerView struct {
	AccountID       string              `json:"accountId"`
	Status          Status              `json:"status"`
	Reason          string              `json:"reason,omitempty"`
	OrderedEntries  []TransactionRecord `json:"orderedEntries"`
	RunningBalances []decimal.Decimal   `json:"runningBalances"`
}

func LoadingView(accountID string) LedgerView {
	return LedgerView{
		AccountID:       accountID,
		Status:          StatusLoading,
		OrderedEntries:  []TransactionRecord{},
		RunningBalances: []decimal.Decimal{},
	}
}

// WithError keeps the entries and balances and only flips the status.
func (v LedgerView) WithError(reason string) LedgerView {
	v.Status = StatusError
	v.Reason = reason
	return v
}

// Balance returns the final running balance, zero for an empty ledger.
func (v LedgerView) Balance() decimal.Decimal {
	if len(v.RunningBalances) == 0 {
		return decimal.Zero
	}
	return v.RunningBalances[len(v.RunningBalances)-1]
}

func (v LedgerView) Settled() bool {
	return v.Status != StatusLoading
}
