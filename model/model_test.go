package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	module := "txn"
	id := GenerateUUIDWithSuffix(module)
	assert.Contains(t, id, module+"_")
	assert.NotEqual(t, id, GenerateUUIDWithSuffix(module))
}

func TestParseTimestamp(t *testing.T) {
	resolved := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		raw      interface{}
		expected time.Time
		state    TimestampState
	}{
		{name: "missing", raw: nil, state: TimestampPending},
		{name: "server timestamp sentinel", raw: ServerTimestamp, state: TimestampPending},
		{name: "zero time", raw: time.Time{}, state: TimestampPending},
		{name: "time value", raw: resolved, expected: resolved, state: TimestampResolved},
		{name: "time pointer", raw: &resolved, expected: resolved, state: TimestampResolved},
		{name: "epoch millis float", raw: float64(resolved.UnixMilli()), expected: resolved, state: TimestampResolved},
		{name: "epoch millis int64", raw: resolved.UnixMilli(), expected: resolved, state: TimestampResolved},
		{name: "json number", raw: json.Number("1714559400000"), expected: resolved, state: TimestampResolved},
		{name: "rfc3339", raw: "2024-05-01T10:30:00Z", expected: resolved, state: TimestampResolved},
		{name: "seconds map", raw: map[string]interface{}{"seconds": float64(resolved.Unix()), "nanoseconds": float64(0)}, expected: resolved, state: TimestampResolved},
		{name: "rest seconds map", raw: map[string]interface{}{"_seconds": resolved.Unix(), "_nanoseconds": 0}, expected: resolved, state: TimestampResolved},
		{name: "garbage string", raw: "yesterday", state: TimestampMalformed},
		{name: "map without seconds", raw: map[string]interface{}{"when": "now"}, state: TimestampMalformed},
		{name: "bool", raw: true, state: TimestampMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, state := ParseTimestamp(tt.raw)
			assert.Equal(t, tt.state, state)
			if tt.state == TimestampResolved {
				assert.True(t, tt.expected.Equal(got), "expected %s got %s", tt.expected, got)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      interface{}
		expected string
		wantErr  bool
	}{
		{name: "nil", raw: nil, expected: "0"},
		{name: "float", raw: 5.0, expected: "5"},
		{name: "int", raw: 2, expected: "2"},
		{name: "string", raw: "12.50", expected: "12.5"},
		{name: "empty string", raw: "", expected: "0"},
		{name: "json number", raw: json.Number("3.25"), expected: "3.25"},
		{name: "decimal", raw: decimal.RequireFromString("7.01"), expected: "7.01"},
		{name: "float32", raw: float32(2.5), expected: "2.5"},
		{name: "float64 NaN", raw: math.NaN(), wantErr: true},
		{name: "float32 NaN", raw: float32(math.NaN()), wantErr: true},
		{name: "float32 infinity", raw: float32(math.Inf(-1)), wantErr: true},
		{name: "not a number", raw: "five", wantErr: true},
		{name: "unsupported type", raw: []string{"1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.expected).Equal(got), "got %s", got)
		})
	}
}

func TestDecodeRecord(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := Document{
		ID: "txn_1",
		Data: map[string]interface{}{
			FieldAccountID:   "Allmer Bank",
			FieldDescription: "Quick Deposit",
			FieldDebit:       5.0,
			FieldCredit:      0.0,
			FieldTimestamp:   ts,
			FieldUserID:      "user-1",
		},
	}

	record, state, issues := DecodeRecord(doc)
	assert.Empty(t, issues)
	assert.Equal(t, TimestampResolved, state)
	assert.Equal(t, "txn_1", record.ID)
	assert.Equal(t, "Allmer Bank", record.AccountID)
	assert.Equal(t, "Quick Deposit", record.Description)
	assert.Equal(t, "user-1", record.UserID)
	assert.True(t, record.Debit.Equal(decimal.NewFromInt(5)))
	assert.True(t, record.Credit.IsZero())
	assert.True(t, ts.Equal(record.Timestamp))
}

func TestDecodeRecord_MissingAmountsArePermitted(t *testing.T) {
	record, state, issues := DecodeRecord(Document{ID: "txn_2", Data: map[string]interface{}{
		FieldDescription: "memo only",
	}})
	assert.Empty(t, issues)
	assert.Equal(t, TimestampPending, state)
	assert.True(t, record.Net().IsZero())
}

func TestDecodeRecord_MalformedFieldsAreReported(t *testing.T) {
	record, state, issues := DecodeRecord(Document{ID: "txn_3", Data: map[string]interface{}{
		FieldDescription: "bad",
		FieldDebit:       "lots",
		FieldCredit:      1,
		FieldTimestamp:   "not a time",
	}})

	assert.Equal(t, TimestampMalformed, state)
	require.Len(t, issues, 2)
	assert.Equal(t, FieldDebit, issues[0].Field)
	assert.Equal(t, FieldTimestamp, issues[1].Field)
	assert.Contains(t, issues[1].Error(), "txn_3")
	assert.True(t, record.Debit.IsZero())
	assert.True(t, record.Net().Equal(decimal.NewFromInt(-1)))
}

func TestDecodeRecord_NonFiniteAmountIsReported(t *testing.T) {
	var (
		record TransactionRecord
		issues []*MalformedRecordError
	)
	require.NotPanics(t, func() {
		record, _, issues = DecodeRecord(Document{ID: "txn_4", Data: map[string]interface{}{
			FieldDebit:  float32(math.NaN()),
			FieldCredit: float32(math.Inf(1)),
		}})
	})

	require.Len(t, issues, 2)
	assert.Equal(t, FieldDebit, issues[0].Field)
	assert.Equal(t, FieldCredit, issues[1].Field)
	assert.True(t, record.Net().IsZero())
}

func TestNewDepositData(t *testing.T) {
	data := NewDepositData("Allmer Bank", decimal.NewFromInt(5), "Quick Deposit", "uid")
	assert.Equal(t, "Allmer Bank", data[FieldAccountID])
	assert.True(t, IsServerTimestamp(data[FieldTimestamp]))
	assert.True(t, data[FieldCredit].(decimal.Decimal).IsZero())
}

func TestLedgerView_WithErrorKeepsData(t *testing.T) {
	view := LedgerView{
		Status:          StatusReady,
		OrderedEntries:  []TransactionRecord{{ID: "a"}},
		RunningBalances: []decimal.Decimal{decimal.NewFromInt(3)},
	}
	errored := view.WithError("permission denied")
	assert.Equal(t, StatusError, errored.Status)
	assert.Equal(t, "permission denied", errored.Reason)
	assert.Equal(t, view.OrderedEntries, errored.OrderedEntries)
	assert.True(t, errored.Balance().Equal(decimal.NewFromInt(3)))
	assert.True(t, LoadingView("x").Balance().IsZero())
}
