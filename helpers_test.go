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
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/ledgersync/database"
	"github.com/blnkfinance/ledgersync/identity"
	"github.com/blnkfinance/ledgersync/model"
)

const testLedgerPath = "artifacts/default-app-id/public/data/ledger_entries"

func readySession(t *testing.T, store database.DocumentStore) *Session {
	t.Helper()
	b := identity.NewBootstrap(identity.Static{Identity: identity.Identity{ID: "user-1"}})
	b.Start(context.Background())
	_, err := b.Wait(context.Background())
	require.NoError(t, err)
	return NewSession(store, b, testLedgerPath)
}

type gatedProvider struct {
	release chan struct{}
}

func (p *gatedProvider) SignIn(ctx context.Context) (identity.Identity, error) {
	select {
	case <-p.release:
		return identity.Identity{ID: "user-1"}, nil
	case <-ctx.Done():
		return identity.Identity{}, backoff.Permanent(ctx.Err())
	}
}

// pendingSession returns a session whose identity fires when the returned func is called.
func pendingSession(t *testing.T, store database.DocumentStore) (*Session, func()) {
	t.Helper()
	provider := &gatedProvider{release: make(chan struct{})}
	b := identity.NewBootstrap(provider)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	b.Start(ctx)

	fire := func() {
		close(provider.release)
		_, err := b.Wait(context.Background())
		require.NoError(t, err)
		// a late OnReady runs after the queued callbacks finished
		b.OnReady(func(identity.Identity) {})
	}
	return NewSession(store, b, testLedgerPath), fire
}

type viewLog struct {
	mu    sync.Mutex
	views []model.LedgerView
}

func (l *viewLog) handle(v model.LedgerView) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.views = append(l.views, v)
}

func (l *viewLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.views)
}

func (l *viewLog) last() model.LedgerView {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.views) == 0 {
		return model.LedgerView{}
	}
	return l.views[len(l.views)-1]
}

func (l *viewLog) all() []model.LedgerView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.LedgerView(nil), l.views...)
}

func (l *viewLog) waitFor(t *testing.T, cond func(model.LedgerView) bool) model.LedgerView {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(l.last())
	}, 2*time.Second, 5*time.Millisecond)
	return l.last()
}

func isReady(v model.LedgerView) bool { return v.Status == model.StatusReady }

// captureStore hands callbacks back to the test instead of delivering anything.
type captureStore struct {
	mu        sync.Mutex
	listeners []*capturedListener
	order     []string
	appendErr error
	appended  []map[string]interface{}
}

type capturedListener struct {
	filter       model.Filter
	onSnapshot   func([]model.Document)
	onError      func(error)
	unsubscribed atomic.Bool
}

func (c *capturedListener) Unsubscribe() { c.unsubscribed.Store(true) }

func (s *captureStore) Subscribe(ctx context.Context, filter model.Filter, onSnapshot func([]model.Document), onError func(error)) (database.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := &capturedListener{filter: filter, onSnapshot: onSnapshot, onError: onError}
	s.listeners = append(s.listeners, l)
	s.order = append(s.order, filter.AccountID)
	return l, nil
}

func (s *captureStore) Append(ctx context.Context, collection string, data map[string]interface{}) (model.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return model.AppendResult{}, s.appendErr
	}
	s.appended = append(s.appended, data)
	return model.AppendResult{ID: "entry_1", CommittedAt: time.Now().UTC()}, nil
}

func (s *captureStore) Close() error { return nil }

func (s *captureStore) listener(i int) *capturedListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listeners[i]
}

func (s *captureStore) subscribeOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}
