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

package database

import (
	"context"
	"sync"
	"time"

	"github.com/blnkfinance/ledgersync/model"
)

type memoryDocument struct {
	id         string
	collection string
	data       map[string]interface{}
	// committed is zero while a server timestamp has not been applied yet.
	committed time.Time
	serverTS  bool
}

func (d *memoryDocument) document() model.Document {
	data := model.CloneData(d.data)
	if d.serverTS {
		if d.committed.IsZero() {
			data[model.FieldTimestamp] = nil
		} else {
			data[model.FieldTimestamp] = d.committed
		}
	}
	return model.Document{ID: d.id, Data: data}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithPropagationDelay delays snapshot delivery after a write, the way a
// remote store acknowledges a write before listeners observe it.
func WithPropagationDelay(d time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.propagationDelay = d }
}

// WithCommitDelay makes appended documents show up with a pending timestamp
// first and with their commit time only after d.
func WithCommitDelay(d time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.commitDelay = d }
}

func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// MemoryStore is an in-process DocumentStore. It is the default driver and
// the store used throughout the tests.
type MemoryStore struct {
	propagationDelay time.Duration
	commitDelay      time.Duration
	now              func() time.Time

	mu       sync.Mutex
	docs     map[string][]*memoryDocument
	failures map[string]error
	closed   bool
	hub      *hub
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		now:      time.Now,
		docs:     make(map[string][]*memoryDocument),
		failures: make(map[string]error),
		hub:      newHub(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Subscribe(ctx context.Context, filter model.Filter, onSnapshot func([]model.Document), onError func(error)) (Listener, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	s := m.hub.add(filter, onSnapshot, onError)
	if err := m.failures[filter.Collection]; err != nil {
		s.fail(err)
	} else {
		s.snapshot(m.partitionLocked(filter))
	}
	return s, nil
}

func (m *MemoryStore) Append(ctx context.Context, collection string, data map[string]interface{}) (model.AppendResult, error) {
	if err := validateFilter(model.Filter{Collection: collection}); err != nil {
		return model.AppendResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.AppendResult{}, err
	}

	stored, serverTS := storable(data)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return model.AppendResult{}, ErrStoreClosed
	}
	if err := m.failures[collection]; err != nil {
		m.mu.Unlock()
		return model.AppendResult{}, err
	}

	doc := &memoryDocument{
		id:         model.GenerateUUIDWithSuffix(idPrefix),
		collection: collection,
		data:       stored,
		serverTS:   serverTS,
	}
	committedAt := m.now().UTC()
	if m.commitDelay <= 0 {
		doc.committed = committedAt
	}
	m.docs[collection] = append(m.docs[collection], doc)
	m.mu.Unlock()

	filter := model.Filter{Collection: collection, AccountID: accountOf(stored)}
	m.publish(filter, m.propagationDelay)

	if serverTS && m.commitDelay > 0 {
		m.after(m.commitDelay, func() {
			m.mu.Lock()
			doc.committed = committedAt
			m.mu.Unlock()
			m.publish(filter, m.propagationDelay)
		})
	}

	return model.AppendResult{ID: doc.id, CommittedAt: committedAt}, nil
}

// Fail makes the collection reject appends and pushes err to its listeners
// until Recover is called.
func (m *MemoryStore) Fail(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[collection] = err

	for _, filter := range m.hub.filters() {
		if filter.Collection != collection {
			continue
		}
		for _, s := range m.hub.partition(filter) {
			s.fail(err)
		}
	}
}

func (m *MemoryStore) Recover(collection string) {
	m.mu.Lock()
	delete(m.failures, collection)
	m.mu.Unlock()

	for _, filter := range m.hub.filters() {
		if filter.Collection == collection {
			m.publish(filter, 0)
		}
	}
}

// Documents returns the stored partition, mostly for assertions.
func (m *MemoryStore) Documents(filter model.Filter) []model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.partitionLocked(filter)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.hub.closeAll()
	return nil
}

func (m *MemoryStore) partitionLocked(filter model.Filter) []model.Document {
	docs := []model.Document{}
	for _, doc := range m.docs[filter.Collection] {
		if accountOf(doc.data) == filter.AccountID {
			docs = append(docs, doc.document())
		}
	}
	return docs
}

func (m *MemoryStore) publish(filter model.Filter, delay time.Duration) {
	if delay > 0 {
		m.after(delay, func() { m.publish(filter, 0) })
		return
	}

	// enqueue under the lock so concurrent publishes reach listeners in commit order
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.failures[filter.Collection] != nil {
		return
	}
	docs := m.partitionLocked(filter)
	for _, s := range m.hub.partition(filter) {
		s.snapshot(docs)
	}
}

func (m *MemoryStore) after(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
