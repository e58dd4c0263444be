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

package api

import (
	"context"
	"sync"

	"github.com/blnkfinance/ledgersync"
	"github.com/blnkfinance/ledgersync/model"
)

// feed fans one account subscription out to any number of HTTP readers.
// Readers always see the latest view; intermediate views may be skipped.
type feed struct {
	mu      sync.Mutex
	view    model.LedgerView
	changed chan struct{}
}

func newFeed(accountID string) *feed {
	return &feed{view: model.LoadingView(accountID), changed: make(chan struct{})}
}

func (f *feed) publish(view model.LedgerView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view = view
	close(f.changed)
	f.changed = make(chan struct{})
}

// current returns the latest view and a channel closed when it is replaced.
func (f *feed) current() (model.LedgerView, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view, f.changed
}

// settled waits until the view left the loading state or ctx ended, and
// returns whatever it has at that point.
func (f *feed) settled(ctx context.Context) model.LedgerView {
	for {
		view, changed := f.current()
		if view.Settled() {
			return view
		}
		select {
		case <-ctx.Done():
			return view
		case <-changed:
		}
	}
}

// feeds shares one aggregator subscription per account among the readers
// currently attached to it. The subscription is dropped with the last reader.
type feeds struct {
	agg *ledgersync.Aggregator

	mu     sync.Mutex
	byAcct map[string]*sharedFeed
}

type sharedFeed struct {
	*feed
	sub     *ledgersync.Subscription
	readers int
}

func newFeeds(agg *ledgersync.Aggregator) *feeds {
	return &feeds{agg: agg, byAcct: make(map[string]*sharedFeed)}
}

// acquire attaches a reader to accountID's feed, subscribing on first use.
// The returned func detaches it and must be called exactly once.
func (fs *feeds) acquire(accountID string) (*feed, func()) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	shared, ok := fs.byAcct[accountID]
	if !ok {
		shared = &sharedFeed{feed: newFeed(accountID)}
		fs.byAcct[accountID] = shared
		shared.sub = fs.agg.Subscribe(accountID, shared.publish)
	}
	shared.readers++
	return shared.feed, func() { fs.release(accountID, shared) }
}

func (fs *feeds) release(accountID string, shared *sharedFeed) {
	fs.mu.Lock()
	shared.readers--
	if shared.readers > 0 || fs.byAcct[accountID] != shared {
		fs.mu.Unlock()
		return
	}
	delete(fs.byAcct, accountID)
	fs.mu.Unlock()
	shared.sub.Unsubscribe()
}

func (fs *feeds) active() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.byAcct)
}

func (fs *feeds) close() {
	fs.agg.Close()
	fs.mu.Lock()
	fs.byAcct = make(map[string]*sharedFeed)
	fs.mu.Unlock()
}
