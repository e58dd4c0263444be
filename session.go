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
	"github.com/blnkfinance/ledgersync/database"
	"github.com/blnkfinance/ledgersync/identity"
)

// Session is the context shared by the aggregator and the deposit writer: the
// store handle, the identity bootstrap and the ledger collection path. It is
// built once at startup and passed explicitly.
type Session struct {
	store      database.DocumentStore
	bootstrap  *identity.Bootstrap
	ledgerPath string
}

func NewSession(store database.DocumentStore, bootstrap *identity.Bootstrap, ledgerPath string) *Session {
	return &Session{store: store, bootstrap: bootstrap, ledgerPath: ledgerPath}
}

func (s *Session) Store() database.DocumentStore {
	return s.store
}

func (s *Session) LedgerPath() string {
	return s.ledgerPath
}

func (s *Session) Bootstrap() *identity.Bootstrap {
	return s.bootstrap
}

func (s *Session) IsReady() bool {
	return s.bootstrap.IsReady()
}

func (s *Session) Identity() (identity.Identity, bool) {
	return s.bootstrap.Identity()
}

// OnReady runs fn once the identity is available, immediately if it already is.
func (s *Session) OnReady(fn func(identity.Identity)) {
	s.bootstrap.OnReady(fn)
}
