/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ledgersync

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/ledgersync/internal/metrics"
	"github.com/blnkfinance/ledgersync/model"
)

// estimator hands out client-side timestamps for records whose server timestamp
// has not been observed yet. An estimate sticks to its record id until the real
// value shows up, so replaying a snapshot yields the same order.
type estimator struct {
	now       func() time.Time
	estimates map[string]time.Time
}

func newEstimator(now func() time.Time) *estimator {
	return &estimator{now: now, estimates: make(map[string]time.Time)}
}

func (e *estimator) estimate(id string) time.Time {
	if ts, ok := e.estimates[id]; ok {
		return ts
	}
	ts := e.now().UTC()
	e.estimates[id] = ts
	return ts
}

// keep drops estimates for records that resolved or left the partition.
func (e *estimator) keep(ids map[string]struct{}) {
	for id := range e.estimates {
		if _, ok := ids[id]; !ok {
			delete(e.estimates, id)
		}
	}
}

// normalize decodes every document and assigns a timestamp to each record.
func (e *estimator) normalize(docs []model.Document) []model.TransactionRecord {
	records := make([]model.TransactionRecord, 0, len(docs))
	estimated := make(map[string]struct{})

	for _, doc := range docs {
		record, state, issues := model.DecodeRecord(doc)
		for _, issue := range issues {
			metrics.MalformedRecord(issue.Field)
			logrus.WithFields(logrus.Fields{
				"record_id": issue.RecordID,
				"field":     issue.Field,
			}).Warn(issue.Error())
		}
		if state != model.TimestampResolved {
			record.Timestamp = e.estimate(record.ID)
			record.TimestampEstimated = true
			estimated[record.ID] = struct{}{}
		}
		records = append(records, record)
	}

	e.keep(estimated)
	return records
}

// BuildLedgerView sorts records by (timestamp, id) and folds debit minus credit
// into running balances. The input slice is not modified.
func BuildLedgerView(accountID string, records []model.TransactionRecord) model.LedgerView {
	ordered := make([]model.TransactionRecord, len(records))
	copy(ordered, records)

	sort.SliceStable(ordered, func(i, j int) bool {
		return recordLess(ordered[i], ordered[j])
	})

	balances := make([]decimal.Decimal, len(ordered))
	balance := decimal.Zero
	for i, record := range ordered {
		balance = balance.Add(record.Net())
		balances[i] = balance
	}

	return model.LedgerView{
		AccountID:       accountID,
		Status:          model.StatusReady,
		OrderedEntries:  ordered,
		RunningBalances: balances,
	}
}

func recordLess(a, b model.TransactionRecord) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}
