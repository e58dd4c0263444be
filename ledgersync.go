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
	"embed"
	"time"

	"github.com/blnkfinance/ledgersync/config"
	"github.com/blnkfinance/ledgersync/database"
	"github.com/blnkfinance/ledgersync/identity"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// LedgerSync wires a session, its identity bootstrap and the deposit writer
// from configuration. Views are obtained from aggregators built on its session.
type LedgerSync struct {
	config    *config.Configuration
	session   *Session
	bootstrap *identity.Bootstrap
	deposits  *DepositWriter
}

// NewLedgerSync builds the engine on top of store using the loaded configuration.
// Sign-in does not start until Start is called.
func NewLedgerSync(store database.DocumentStore) (*LedgerSync, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	provider := identity.NewProvider(cnf.Auth.InitialToken, cnf.Auth.TokenSecret)
	bootstrap := identity.NewBootstrap(provider,
		identity.WithMaxElapsed(time.Duration(cnf.Auth.MaxElapsedSec)*time.Second),
	)
	session := NewSession(store, bootstrap, cnf.LedgerPath)

	deposits := NewDepositWriter(session,
		WithTimeout(time.Duration(cnf.Deposit.TimeoutSec)*time.Second),
		WithQuickDeposit(QuickDepositDefaults{
			Amount:      cnf.DepositAmount(),
			Description: cnf.Deposit.Description,
		}),
	)

	return &LedgerSync{config: cnf, session: session, bootstrap: bootstrap, deposits: deposits}, nil
}

// Start begins identity sign-in in the background.
func (l *LedgerSync) Start(ctx context.Context) {
	l.bootstrap.Start(ctx)
}

func (l *LedgerSync) Session() *Session {
	return l.session
}

func (l *LedgerSync) Deposits() *DepositWriter {
	return l.deposits
}

func (l *LedgerSync) Config() *config.Configuration {
	return l.config
}

// NewAggregator returns an aggregator bound to the engine's session.
func (l *LedgerSync) NewAggregator(opts ...AggregatorOption) *Aggregator {
	return NewAggregator(l.session, opts...)
}

// WaitForIdentity blocks until sign-in finished or ctx ended.
func (l *LedgerSync) WaitForIdentity(ctx context.Context) (identity.Identity, error) {
	return l.bootstrap.Wait(ctx)
}

func (l *LedgerSync) Close() error {
	return l.session.Store().Close()
}
