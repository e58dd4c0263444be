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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/ledgersync/internal/notification"
)

// ErrSignInFailed is returned by Wait once sign-in gave up.
var ErrSignInFailed = errors.New("sign-in failed")

type Option func(*Bootstrap)

// WithMaxElapsed bounds the total time spent retrying sign-in. Zero retries until Start's context ends.
func WithMaxElapsed(d time.Duration) Option {
	return func(b *Bootstrap) { b.maxElapsed = d }
}

func WithInitialInterval(d time.Duration) Option {
	return func(b *Bootstrap) { b.initialInterval = d }
}

// Bootstrap fires a single readiness signal once the provider signed in.
// Callbacks registered with OnReady before that are queued and run in
// registration order when it fires; callbacks registered later run immediately.
type Bootstrap struct {
	provider        Provider
	maxElapsed      time.Duration
	initialInterval time.Duration

	startOnce sync.Once
	// held while callbacks run so late OnReady calls cannot overtake queued ones
	runMu sync.Mutex

	mu        sync.Mutex
	identity  *Identity
	err       error
	callbacks []func(Identity)
	ready     chan struct{}
	done      chan struct{}
}

func NewBootstrap(provider Provider, opts ...Option) *Bootstrap {
	b := &Bootstrap{
		provider:        provider,
		initialInterval: 500 * time.Millisecond,
		ready:           make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start begins sign-in in the background. Later calls are no-ops.
func (b *Bootstrap) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.run(ctx)
	})
}

func (b *Bootstrap) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.initialInterval
	bo.MaxElapsedTime = b.maxElapsed

	var id Identity
	operation := func() error {
		var err error
		id, err = b.provider.SignIn(ctx)
		return err
	}
	notify := func(err error, next time.Duration) {
		logrus.WithError(err).Warnf("sign-in failed, retrying in %s", next)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		b.fail(err)
		return
	}
	b.fire(id)
}

func (b *Bootstrap) fail(err error) {
	err = errors.Wrap(ErrSignInFailed, err.Error())
	logrus.WithError(err).Error("identity bootstrap gave up")
	notification.NotifyError(err)

	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
	close(b.done)
}

func (b *Bootstrap) fire(id Identity) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.mu.Lock()
	b.identity = &id
	callbacks := b.callbacks
	b.callbacks = nil
	close(b.ready)
	close(b.done)
	b.mu.Unlock()

	logrus.WithField("identity", id.ID).Info("identity ready")
	for _, fn := range callbacks {
		fn(id)
	}
}

// OnReady registers fn to run with the identity. It must not call OnReady itself.
func (b *Bootstrap) OnReady(fn func(Identity)) {
	b.mu.Lock()
	if b.identity == nil {
		b.callbacks = append(b.callbacks, fn)
		b.mu.Unlock()
		return
	}
	id := *b.identity
	b.mu.Unlock()

	b.runMu.Lock()
	defer b.runMu.Unlock()
	fn(id)
}

func (b *Bootstrap) Identity() (Identity, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.identity == nil {
		return Identity{}, false
	}
	return *b.identity, true
}

func (b *Bootstrap) IsReady() bool {
	_, ok := b.Identity()
	return ok
}

// Ready is closed once the identity is available.
func (b *Bootstrap) Ready() <-chan struct{} {
	return b.ready
}

// Wait blocks until sign-in succeeded, gave up, or ctx ended.
func (b *Bootstrap) Wait(ctx context.Context) (Identity, error) {
	select {
	case <-ctx.Done():
		return Identity{}, ctx.Err()
	case <-b.done:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return Identity{}, b.err
	}
	return *b.identity, nil
}
