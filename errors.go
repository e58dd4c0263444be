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
	"fmt"

	"github.com/pkg/errors"

	"github.com/blnkfinance/ledgersync/model"
)

var (
	// ErrNotAuthenticated is returned by writes issued before the session identity is ready.
	// Subscriptions are queued instead of failing.
	ErrNotAuthenticated = errors.New("identity not established")

	// ErrInvalidAmount is returned for deposits that are not strictly positive.
	ErrInvalidAmount = errors.New("deposit amount must be greater than zero")

	ErrInvalidAccount = errors.New("account id is required")
)

// MalformedRecordError is reported for records whose timestamp or amounts cannot be read.
type MalformedRecordError = model.MalformedRecordError

// SubscriptionError wraps a failure delivered by the document store for a live subscription.
type SubscriptionError struct {
	AccountID string
	Err       error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("ledger subscription for %q failed: %v", e.AccountID, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// WriteError wraps a rejected append.
type WriteError struct {
	AccountID string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger write for %q failed: %v", e.AccountID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
