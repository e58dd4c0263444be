package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document field names shared by every store and by the deposit writer.
const (
	FieldAccountID   = "accountId"
	FieldDescription = "description"
	FieldDebit       = "debit"
	FieldCredit      = "credit"
	FieldTimestamp   = "timestamp"
	FieldUserID      = "userId"
)

type TransactionRecord struct {
	ID                 string          `json:"id"`
	AccountID          string          `json:"accountId"`
	Description        string          `json:"description"`
	Debit              decimal.Decimal `json:"debit"`
	Credit             decimal.Decimal `json:"credit"`
	Timestamp          time.Time       `json:"timestamp"`
	TimestampEstimated bool            `json:"timestampEstimated"`
	UserID             string          `json:"userId"`
}

// Net is the signed contribution of the record to the running balance.
func (r TransactionRecord) Net() decimal.Decimal {
	return r.Debit.Sub(r.Credit)
}

// Document is a raw store payload as delivered in a snapshot.
type Document struct {
	ID   string                 `json:"id"`
	Data map[string]interface{} `json:"data"`
}

// Filter selects one account partition of a ledger collection.
type Filter struct {
	Collection string `json:"collection"`
	AccountID  string `json:"accountId"`
}

type AppendResult struct {
	ID          string    `json:"id"`
	CommittedAt time.Time `json:"committedAt"`
}

type serverTimestamp struct{}

// ServerTimestamp asks the store to stamp the field with its own commit time.
var ServerTimestamp interface{} = serverTimestamp{}

func IsServerTimestamp(v interface{}) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// NewDepositData builds the document payload for a deposit: the amount is a debit,
// credit is zero and the timestamp is left for the store to assign.
func NewDepositData(accountID string, amount decimal.Decimal, description, userID string) map[string]interface{} {
	return map[string]interface{}{
		FieldAccountID:   accountID,
		FieldDescription: description,
		FieldDebit:       amount,
		FieldCredit:      decimal.Zero,
		FieldTimestamp:   ServerTimestamp,
		FieldUserID:      userID,
	}
}

// CloneData copies a document payload one level deep.
func CloneData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
