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
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/ledgersync/database"
	"github.com/blnkfinance/ledgersync/identity"
	"github.com/blnkfinance/ledgersync/internal/metrics"
	"github.com/blnkfinance/ledgersync/internal/notification"
	"github.com/blnkfinance/ledgersync/model"
)

// ViewHandler receives every LedgerView a subscription emits, in order.
type ViewHandler func(model.LedgerView)

// Subscription is the handle for one account's live ledger. Deliveries are
// applied one at a time; once inactive it never emits again.
type Subscription struct {
	accountID  string
	generation uint64
	handler    ViewHandler
	agg        *Aggregator
	active     atomic.Bool

	// mu serialises deliveries and owns est.
	mu  sync.Mutex
	est *estimator

	viewMu sync.RWMutex
	view   model.LedgerView
	err    error

	listenerMu sync.Mutex
	listener   database.Listener
}

func (s *Subscription) AccountID() string {
	return s.accountID
}

// View returns the last emitted view.
func (s *Subscription) View() model.LedgerView {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view
}

// Err returns the last store error seen by the subscription, if any.
func (s *Subscription) Err() error {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.err
}

func (s *Subscription) Active() bool {
	return s.active.Load()
}

func (s *Subscription) Unsubscribe() {
	s.agg.Unsubscribe(s)
}

func (s *Subscription) emit(view model.LedgerView) {
	s.viewMu.Lock()
	s.view = view
	s.viewMu.Unlock()

	if s.handler != nil {
		s.handler(view)
	}
}

func (s *Subscription) onSnapshot(docs []model.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active.Load() {
		metrics.IncDiscardedDelivery()
		return
	}

	start := time.Now()
	view := BuildLedgerView(s.accountID, s.est.normalize(docs))
	metrics.ObserveSnapshot(string(view.Status), time.Since(start))

	s.viewMu.Lock()
	s.err = nil
	s.viewMu.Unlock()
	s.emit(view)
}

// onError keeps the previous entries and balances and flips the status. The
// store is not retried; the next snapshot, if any, clears the error.
func (s *Subscription) onError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active.Load() {
		metrics.IncDiscardedDelivery()
		return
	}

	subErr := &SubscriptionError{AccountID: s.accountID, Err: err}
	metrics.IncSubscriptionError()
	logrus.WithFields(logrus.Fields{
		"account_id": s.accountID,
		"generation": s.generation,
	}).WithError(err).Error("ledger subscription failed")
	notification.NotifyError(subErr)

	view := s.View().WithError(err.Error())
	metrics.ObserveSnapshot(string(view.Status), 0)

	s.viewMu.Lock()
	s.err = subErr
	s.viewMu.Unlock()
	s.emit(view)
}

// attach stores the store listener, or drops it right away when the
// subscription was cancelled while it was being established.
func (s *Subscription) attach(listener database.Listener) {
	s.listenerMu.Lock()
	if s.active.Load() {
		s.listener = listener
		s.listenerMu.Unlock()
		metrics.SubscriptionEstablished()
		return
	}
	s.listenerMu.Unlock()
	listener.Unsubscribe()
}

func (s *Subscription) release() {
	s.listenerMu.Lock()
	listener := s.listener
	s.listener = nil
	s.listenerMu.Unlock()

	if listener != nil {
		listener.Unsubscribe()
		metrics.SubscriptionReleased()
	}
}

type AggregatorOption func(*Aggregator)

// WithEstimateClock sets the clock used for timestamps of records the store has not stamped yet.
func WithEstimateClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// Aggregator keeps at most one live subscription per account and turns store
// snapshots into LedgerViews. Subscriptions made before the session identity
// is ready are queued and established in call order once it is.
type Aggregator struct {
	session *Session
	now     func() time.Time

	mu         sync.Mutex
	generation uint64
	ready      bool
	closed     bool
	live       map[string]*Subscription
	queued     []*Subscription
}

func NewAggregator(session *Session, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		session: session,
		now:     time.Now,
		live:    make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(a)
	}
	session.OnReady(func(identity.Identity) { a.flush() })
	return a
}

// Subscribe starts following accountID and returns the handle. A loading view
// is emitted before anything else. An existing subscription for the same
// account is cancelled first and never emits again.
func (a *Aggregator) Subscribe(accountID string, handler ViewHandler) *Subscription {
	sub := &Subscription{
		accountID: accountID,
		handler:   handler,
		agg:       a,
		est:       newEstimator(a.now),
		view:      model.LoadingView(accountID),
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return sub
	}

	a.generation++
	sub.generation = a.generation
	sub.active.Store(true)

	previous := a.live[accountID]
	if previous != nil {
		previous.active.Store(false)
		a.dequeueLocked(previous)
	}
	a.live[accountID] = sub

	ready := a.ready
	if !ready {
		a.queued = append(a.queued, sub)
		metrics.AddQueuedSubscriptions(1)
	}

	// hold the delivery lock so the loading view precedes any snapshot
	sub.mu.Lock()
	a.mu.Unlock()
	sub.emit(sub.view)
	sub.mu.Unlock()

	if previous != nil {
		previous.release()
		logrus.WithField("account_id", accountID).Debug("replaced ledger subscription")
	}
	if ready {
		a.establish(sub)
	}
	return sub
}

// Unsubscribe cancels sub. It is idempotent, safe from inside a ViewHandler
// and does not wait for a delivery in progress.
func (a *Aggregator) Unsubscribe(sub *Subscription) {
	if sub == nil || !sub.active.CompareAndSwap(true, false) {
		return
	}

	a.mu.Lock()
	if a.live[sub.accountID] == sub {
		delete(a.live, sub.accountID)
	}
	a.dequeueLocked(sub)
	a.mu.Unlock()

	sub.release()
}

// Live returns the current subscription for accountID, if any.
func (a *Aggregator) Live(accountID string) (*Subscription, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sub, ok := a.live[accountID]
	return sub, ok
}

// Close cancels every subscription. Later Subscribe calls return inactive handles.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	subs := make([]*Subscription, 0, len(a.live))
	for _, sub := range a.live {
		subs = append(subs, sub)
	}
	a.live = make(map[string]*Subscription)
	metrics.AddQueuedSubscriptions(-len(a.queued))
	a.queued = nil
	a.mu.Unlock()

	for _, sub := range subs {
		sub.active.Store(false)
		sub.release()
	}
}

func (a *Aggregator) dequeueLocked(sub *Subscription) {
	for i, queued := range a.queued {
		if queued == sub {
			a.queued = append(a.queued[:i], a.queued[i+1:]...)
			metrics.AddQueuedSubscriptions(-1)
			return
		}
	}
}

func (a *Aggregator) flush() {
	a.mu.Lock()
	a.ready = true
	queued := a.queued
	a.queued = nil
	a.mu.Unlock()

	metrics.AddQueuedSubscriptions(-len(queued))
	for _, sub := range queued {
		if sub.active.Load() {
			a.establish(sub)
		}
	}
}

func (a *Aggregator) establish(sub *Subscription) {
	filter := model.Filter{Collection: a.session.LedgerPath(), AccountID: sub.accountID}
	listener, err := a.session.Store().Subscribe(context.Background(), filter, sub.onSnapshot, sub.onError)
	if err != nil {
		sub.onError(err)
		return
	}
	sub.attach(listener)
}
