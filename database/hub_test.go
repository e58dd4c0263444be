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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/ledgersync/model"
)

func TestSubscriber_ReloadKeepsReadOrder(t *testing.T) {
	h := newHub()
	rec := newRecorder()
	s := h.add(model.Filter{Collection: testCollection, AccountID: "A"}, rec.onSnapshot, rec.onError)
	defer s.Unsubscribe()

	s.reload(func() ([]model.Document, error) {
		time.Sleep(100 * time.Millisecond)
		return []model.Document{}, nil
	})
	s.reload(func() ([]model.Document, error) {
		return []model.Document{{ID: "entry_1"}}, nil
	})

	assert.Empty(t, rec.next(t))
	docs := rec.next(t)
	require.Len(t, docs, 1)
	assert.Equal(t, "entry_1", docs[0].ID)
}

func TestSubscriber_ReloadError(t *testing.T) {
	h := newHub()
	rec := newRecorder()
	s := h.add(model.Filter{Collection: testCollection, AccountID: "A"}, rec.onSnapshot, rec.onError)
	defer s.Unsubscribe()

	s.reload(func() ([]model.Document, error) {
		return nil, errors.New("permission denied")
	})
	assert.ErrorContains(t, rec.nextErr(t), "permission denied")
}

func TestSubscriber_ReloadDroppedAfterUnsubscribe(t *testing.T) {
	h := newHub()
	rec := newRecorder()
	s := h.add(model.Filter{Collection: testCollection, AccountID: "A"}, rec.onSnapshot, rec.onError)

	started := make(chan struct{})
	s.reload(func() ([]model.Document, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return []model.Document{{ID: "entry_1"}}, nil
	})
	<-started
	s.Unsubscribe()

	rec.quiet(t, 100*time.Millisecond)
}
