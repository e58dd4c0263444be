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
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/blnkfinance/ledgersync/internal/metrics"
	"github.com/blnkfinance/ledgersync/internal/notification"
	"github.com/blnkfinance/ledgersync/model"
)

var depositTracer = otel.Tracer("ledgersync.deposits")

// QuickDepositDefaults are the amount and description used by QuickDeposit.
type QuickDepositDefaults struct {
	Amount      decimal.Decimal
	Description string
}

type DepositOption func(*DepositWriter)

// WithTimeout bounds each append. Zero leaves the caller's context alone.
func WithTimeout(d time.Duration) DepositOption {
	return func(w *DepositWriter) { w.timeout = d }
}

func WithQuickDeposit(defaults QuickDepositDefaults) DepositOption {
	return func(w *DepositWriter) { w.quick = defaults }
}

// DepositWriter appends deposit records to the session's ledger. It never
// touches a LedgerView: a write shows up once the aggregator sees the next
// snapshot containing it.
type DepositWriter struct {
	session *Session
	timeout time.Duration
	quick   QuickDepositDefaults
}

func NewDepositWriter(session *Session, opts ...DepositOption) *DepositWriter {
	w := &DepositWriter{
		session: session,
		quick: QuickDepositDefaults{
			Amount:      decimal.RequireFromString("5.00"),
			Description: "Quick Deposit",
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RecordDeposit appends a debit of amount for accountID, stamped with the
// store's commit time. An empty writerID falls back to the session identity.
// Failures are returned as *WriteError and never retried.
func (w *DepositWriter) RecordDeposit(ctx context.Context, accountID string, amount decimal.Decimal, description, writerID string) (model.AppendResult, error) {
	ctx, span := depositTracer.Start(ctx, "Recording deposit")
	defer span.End()
	span.SetAttributes(
		attribute.String("ledger.account_id", accountID),
		attribute.String("ledger.amount", amount.String()),
	)

	id, ok := w.session.Identity()
	if !ok {
		span.RecordError(ErrNotAuthenticated)
		span.SetStatus(codes.Error, ErrNotAuthenticated.Error())
		return model.AppendResult{}, ErrNotAuthenticated
	}
	if strings.TrimSpace(accountID) == "" {
		span.RecordError(ErrInvalidAccount)
		return model.AppendResult{}, ErrInvalidAccount
	}
	if !amount.IsPositive() {
		span.RecordError(ErrInvalidAmount)
		return model.AppendResult{}, ErrInvalidAmount
	}
	if writerID == "" {
		writerID = id.ID
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	data := model.NewDepositData(accountID, amount, description, writerID)
	res, err := w.session.Store().Append(ctx, w.session.LedgerPath(), data)
	if err != nil {
		writeErr := &WriteError{AccountID: accountID, Err: err}
		metrics.ObserveDeposit(metrics.ResultError, time.Since(start))
		span.RecordError(writeErr)
		span.SetStatus(codes.Error, writeErr.Error())
		notification.NotifyError(writeErr)
		return model.AppendResult{}, writeErr
	}
	metrics.ObserveDeposit(metrics.ResultSuccess, time.Since(start))

	span.SetAttributes(attribute.String("ledger.entry_id", res.ID))
	logrus.WithFields(logrus.Fields{
		"account_id": accountID,
		"entry_id":   res.ID,
		"amount":     amount.String(),
		"writer_id":  writerID,
	}).Info("deposit recorded")
	return res, nil
}

// QuickDeposit records the configured one-click deposit for accountID as the session identity.
func (w *DepositWriter) QuickDeposit(ctx context.Context, accountID string) (model.AppendResult, error) {
	return w.RecordDeposit(ctx, accountID, w.quick.Amount, w.quick.Description, "")
}
