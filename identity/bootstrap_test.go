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

package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyProvider struct {
	mu       sync.Mutex
	failures int
	calls    int
	err      error
	id       Identity
}

func (p *flakyProvider) SignIn(ctx context.Context) (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return Identity{}, p.err
	}
	return p.id, nil
}

func TestBootstrapQueuesCallbacksInOrder(t *testing.T) {
	release := make(chan struct{})
	provider := &gatedProvider{release: release, id: Identity{ID: "user-1"}}
	b := NewBootstrap(provider)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		b.OnReady(func(id Identity) {
			assert.Equal(t, "user-1", id.ID)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	b.Start(context.Background())
	assert.False(t, b.IsReady())
	close(release)

	id, err := b.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.ID)

	// registered after firing: runs immediately, exactly once, after the queued ones
	calls := 0
	b.OnReady(func(Identity) { calls++ })
	assert.Equal(t, 1, calls)

	mu.Lock()
	assert.Equal(t, []int{0, 1, 2}, order)
	mu.Unlock()
}

func TestBootstrapRetriesUntilSignedIn(t *testing.T) {
	provider := &flakyProvider{failures: 2, err: errors.New("network down"), id: Identity{ID: "user-2"}}
	b := NewBootstrap(provider, WithInitialInterval(time.Millisecond))

	b.Start(context.Background())
	b.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := b.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-2", id.ID)
	assert.Equal(t, 3, provider.calls)

	select {
	case <-b.Ready():
	default:
		t.Fatal("ready channel not closed")
	}
}

func TestBootstrapPermanentFailure(t *testing.T) {
	provider := &flakyProvider{failures: 10, err: backoff.Permanent(ErrInvalidToken)}
	b := NewBootstrap(provider, WithInitialInterval(time.Millisecond))

	fired := false
	b.OnReady(func(Identity) { fired = true })
	b.Start(context.Background())

	_, err := b.Wait(context.Background())
	assert.ErrorIs(t, err, ErrSignInFailed)
	assert.False(t, fired)
	assert.False(t, b.IsReady())
	assert.Equal(t, 1, provider.calls)
}

func TestBootstrapWaitHonoursContext(t *testing.T) {
	b := NewBootstrap(&gatedProvider{release: make(chan struct{})})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type gatedProvider struct {
	release chan struct{}
	id      Identity
}

func (p *gatedProvider) SignIn(ctx context.Context) (Identity, error) {
	select {
	case <-p.release:
		return p.id, nil
	case <-ctx.Done():
		return Identity{}, backoff.Permanent(ctx.Err())
	}
}
