package model

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

type TimestampState int

const (
	TimestampResolved TimestampState = iota
	TimestampPending
	TimestampMalformed
)

func (s TimestampState) String() string {
	switch s {
	case TimestampResolved:
		return "resolved"
	case TimestampPending:
		return "pending"
	default:
		return "malformed"
	}
}

// MalformedRecordError describes a field that could not be interpreted. It never
// stops a snapshot from being folded: the field falls back to "now" or zero.
type MalformedRecordError struct {
	RecordID string
	Field    string
	Value    interface{}
	Err      error
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("record %s: malformed %s %v: %v", e.RecordID, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("record %s: malformed %s %v", e.RecordID, e.Field, e.Value)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

type recordDocument struct {
	AccountID   string          `mapstructure:"accountId"`
	Description string          `mapstructure:"description"`
	Debit       decimal.Decimal `mapstructure:"debit"`
	Credit      decimal.Decimal `mapstructure:"credit"`
	Timestamp   interface{}     `mapstructure:"timestamp"`
	UserID      string          `mapstructure:"userId"`
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func decimalHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}
	return ParseAmount(data)
}

// DecodeRecord turns a raw document into a TransactionRecord. The returned state
// tells the caller whether Timestamp still has to be synthesized. Problems with
// individual fields are reported but the record is always usable.
func DecodeRecord(doc Document) (TransactionRecord, TimestampState, []*MalformedRecordError) {
	var issues []*MalformedRecordError

	data := CloneData(doc.Data)
	for _, field := range []string{FieldDebit, FieldCredit} {
		raw, ok := data[field]
		if !ok {
			continue
		}
		amount, err := ParseAmount(raw)
		if err != nil {
			issues = append(issues, &MalformedRecordError{RecordID: doc.ID, Field: field, Value: raw, Err: err})
			amount = decimal.Zero
		}
		data[field] = amount
	}

	var raw recordDocument
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       decimalHook,
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		issues = append(issues, &MalformedRecordError{RecordID: doc.ID, Field: "document", Err: err})
	} else if err := decoder.Decode(data); err != nil {
		// mapstructure keeps the fields it managed to decode.
		issues = append(issues, &MalformedRecordError{RecordID: doc.ID, Field: "document", Err: err})
	}

	record := TransactionRecord{
		ID:          doc.ID,
		AccountID:   raw.AccountID,
		Description: raw.Description,
		Debit:       raw.Debit,
		Credit:      raw.Credit,
		UserID:      raw.UserID,
	}

	ts, state := ParseTimestamp(raw.Timestamp)
	if state == TimestampMalformed {
		issues = append(issues, &MalformedRecordError{RecordID: doc.ID, Field: FieldTimestamp, Value: raw.Timestamp})
	}
	record.Timestamp = ts
	return record, state, issues
}

// ParseAmount accepts the numeric shapes stores hand back. Missing means zero.
func ParseAmount(v interface{}) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, nil
		}
		return *x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, fmt.Errorf("amount %v is not finite", x)
		}
		return decimal.NewFromFloat(x), nil
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return decimal.Zero, fmt.Errorf("amount %v is not finite", x)
		}
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case uint32:
		return decimal.NewFromInt(int64(x)), nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		if strings.TrimSpace(x) == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(strings.TrimSpace(x))
	case []byte:
		return decimal.NewFromString(string(x))
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", v)
	}
}

// ParseTimestamp normalizes a stored timestamp. Numbers are epoch milliseconds;
// maps carry seconds and nanoseconds. A missing value or a ServerTimestamp that
// has not been committed yet is pending.
func ParseTimestamp(raw interface{}) (time.Time, TimestampState) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, TimestampPending
	case serverTimestamp:
		return time.Time{}, TimestampPending
	case time.Time:
		if v.IsZero() {
			return time.Time{}, TimestampPending
		}
		return v.UTC(), TimestampResolved
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, TimestampPending
		}
		return v.UTC(), TimestampResolved
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return time.Time{}, TimestampMalformed
		}
		return fromMillis(v), TimestampResolved
	case int64:
		return time.UnixMilli(v).UTC(), TimestampResolved
	case int:
		return time.UnixMilli(int64(v)).UTC(), TimestampResolved
	case json.Number:
		if ms, err := v.Int64(); err == nil {
			return time.UnixMilli(ms).UTC(), TimestampResolved
		}
		if ms, err := v.Float64(); err == nil {
			return fromMillis(ms), TimestampResolved
		}
		return time.Time{}, TimestampMalformed
	case string:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
		if err != nil {
			return time.Time{}, TimestampMalformed
		}
		return t.UTC(), TimestampResolved
	case map[string]interface{}:
		return fromSecondsMap(v)
	default:
		return time.Time{}, TimestampMalformed
	}
}

func fromMillis(ms float64) time.Time {
	whole := math.Floor(ms)
	nanos := int64((ms - whole) * float64(time.Millisecond))
	return time.UnixMilli(int64(whole)).Add(time.Duration(nanos)).UTC()
}

func fromSecondsMap(m map[string]interface{}) (time.Time, TimestampState) {
	secRaw, ok := m["seconds"]
	if !ok {
		secRaw, ok = m["_seconds"]
	}
	if !ok {
		return time.Time{}, TimestampMalformed
	}
	nanoRaw, ok := m["nanoseconds"]
	if !ok {
		nanoRaw = m["_nanoseconds"]
	}

	sec, err := ParseAmount(secRaw)
	if err != nil {
		return time.Time{}, TimestampMalformed
	}
	nanos, err := ParseAmount(nanoRaw)
	if err != nil {
		return time.Time{}, TimestampMalformed
	}
	return time.Unix(sec.IntPart(), nanos.IntPart()).UTC(), TimestampResolved
}
