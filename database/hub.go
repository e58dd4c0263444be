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
	"sync"

	"github.com/blnkfinance/ledgersync/model"
)

// subscriber delivers callbacks for one listener in the order they were queued,
// on its own goroutine, so a slow consumer never blocks the store.
type subscriber struct {
	id         uint64
	filter     model.Filter
	onSnapshot func([]model.Document)
	onError    func(error)

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	stop    chan struct{}
	once    sync.Once
	release func()
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			fn := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			select {
			case <-s.stop:
				return
			default:
			}
			fn()
		}
	}
}

func (s *subscriber) enqueue(fn func()) {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) snapshot(docs []model.Document) {
	if s.onSnapshot == nil {
		return
	}
	s.enqueue(func() { s.onSnapshot(docs) })
}

func (s *subscriber) fail(err error) {
	if s.onError == nil {
		return
	}
	s.enqueue(func() { s.onError(err) })
}

// reload queues a partition read behind everything already pending, so reads
// complete in the order their results are delivered.
func (s *subscriber) reload(load func() ([]model.Document, error)) {
	s.enqueue(func() {
		docs, err := load()

		select {
		case <-s.stop:
			return
		default:
		}
		if err != nil {
			if s.onError != nil {
				s.onError(err)
			}
			return
		}
		if s.onSnapshot != nil {
			s.onSnapshot(docs)
		}
	})
}

// Unsubscribe stops deliveries that have not started yet. It is idempotent.
func (s *subscriber) Unsubscribe() {
	s.once.Do(func() {
		close(s.stop)
		if s.release != nil {
			s.release()
		}
	})
}

// hub tracks listeners by partition.
type hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[model.Filter]map[uint64]*subscriber
}

func newHub() *hub {
	return &hub{subs: make(map[model.Filter]map[uint64]*subscriber)}
}

func (h *hub) add(filter model.Filter, onSnapshot func([]model.Document), onError func(error)) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := &subscriber{
		id:         h.nextID,
		filter:     filter,
		onSnapshot: onSnapshot,
		onError:    onError,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
	s.release = func() { h.remove(s) }

	if h.subs[filter] == nil {
		h.subs[filter] = make(map[uint64]*subscriber)
	}
	h.subs[filter][s.id] = s
	go s.run()
	return s
}

func (h *hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.subs[s.filter]
	delete(group, s.id)
	if len(group) == 0 {
		delete(h.subs, s.filter)
	}
}

func (h *hub) partition(filter model.Filter) []*subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.subs[filter]
	out := make([]*subscriber, 0, len(group))
	for _, s := range group {
		out = append(out, s)
	}
	return out
}

func (h *hub) filters() []model.Filter {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]model.Filter, 0, len(h.subs))
	for filter := range h.subs {
		out = append(out, filter)
	}
	return out
}

func (h *hub) closeAll() {
	h.mu.Lock()
	var all []*subscriber
	for _, group := range h.subs {
		for _, s := range group {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Unsubscribe()
	}
}
