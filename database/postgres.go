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
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	pg_listener "github.com/blnkfinance/ledgersync/internal/pg-listener"
	"github.com/blnkfinance/ledgersync/model"
)

const ledgerEntriesTable = "ledger_entries"

// PostgresStore keeps documents in the ledger_entries table. A trigger
// announces every change with pg_notify and the store re-reads the affected
// partition.
type PostgresStore struct {
	Conn   *sql.DB
	hub    *hub
	cancel context.CancelFunc
}

// ConnectDB opens a pooled postgres connection and verifies it.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		logrus.Errorf("database Connection error ❌: %v", err)
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewPostgresStore connects and starts listening for change notifications
// until Close is called.
func NewPostgresStore(ctx context.Context, dns string) (*PostgresStore, error) {
	db, err := ConnectDB(dns)
	if err != nil {
		return nil, err
	}

	store := newPostgresStore(db)
	listenCtx, cancel := context.WithCancel(context.Background())
	store.cancel = cancel

	listener := pg_listener.NewDBListener(pg_listener.ListenerConfig{PgConnStr: dns}, store)
	go func() {
		if err := listener.Start(listenCtx); err != nil {
			logrus.WithError(err).Error("postgres change listener stopped")
		}
	}()
	return store, nil
}

func newPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{Conn: db, hub: newHub()}
}

func (p *PostgresStore) Append(ctx context.Context, collection string, data map[string]interface{}) (model.AppendResult, error) {
	if err := validateFilter(model.Filter{Collection: collection}); err != nil {
		return model.AppendResult{}, err
	}

	stored, serverTS := storable(data)
	var explicit interface{}
	if !serverTS {
		if raw, ok := stored[model.FieldTimestamp]; ok {
			if ts, state := model.ParseTimestamp(raw); state == model.TimestampResolved {
				explicit = ts
			}
		}
	}
	delete(stored, model.FieldTimestamp)

	body, err := json.Marshal(stored)
	if err != nil {
		return model.AppendResult{}, errors.Wrap(err, "encoding document")
	}

	id := model.GenerateUUIDWithSuffix(idPrefix)
	var committedAt time.Time
	err = p.Conn.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (id, collection, account_id, data, committed_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		RETURNING committed_at
	`, id, collection, accountOf(stored), body, explicit).Scan(&committedAt)
	if err != nil {
		return model.AppendResult{}, errors.Wrap(err, "inserting ledger entry")
	}

	return model.AppendResult{ID: id, CommittedAt: committedAt.UTC()}, nil
}

func (p *PostgresStore) Subscribe(ctx context.Context, filter model.Filter, onSnapshot func([]model.Document), onError func(error)) (Listener, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	s := p.hub.add(filter, onSnapshot, onError)
	loadCtx := context.WithoutCancel(ctx)
	s.reload(func() ([]model.Document, error) {
		return p.loadPartition(loadCtx, filter)
	})
	return s, nil
}

func (p *PostgresStore) loadPartition(ctx context.Context, filter model.Filter) ([]model.Document, error) {
	rows, err := p.Conn.QueryContext(ctx, `
		SELECT id, data, committed_at
		FROM ledger_entries
		WHERE collection = $1 AND account_id = $2
	`, filter.Collection, filter.AccountID)
	if err != nil {
		return nil, errors.Wrap(err, "querying ledger entries")
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var (
			id          string
			body        []byte
			committedAt time.Time
		)
		if err := rows.Scan(&id, &body, &committedAt); err != nil {
			return nil, errors.Wrap(err, "scanning ledger entry")
		}

		data := map[string]interface{}{}
		if err := json.Unmarshal(body, &data); err != nil {
			logrus.WithError(err).WithField("id", id).Warn("skipping undecodable ledger entry")
			continue
		}
		data[model.FieldTimestamp] = committedAt.UTC()
		docs = append(docs, model.Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating ledger entries")
	}
	return docs, nil
}

// refresh queues a fresh read on every listener of the partition.
func (p *PostgresStore) refresh(filter model.Filter) {
	for _, s := range p.hub.partition(filter) {
		s.reload(func() ([]model.Document, error) {
			return p.loadPartition(context.Background(), filter)
		})
	}
}

// HandleNotification is called by the change listener for every row change.
func (p *PostgresStore) HandleNotification(table string, data map[string]interface{}) error {
	if table != ledgerEntriesTable {
		return nil
	}
	collection, _ := data["collection"].(string)
	accountID, _ := data["account_id"].(string)
	if collection == "" {
		return errors.New("notification without collection")
	}

	p.refresh(model.Filter{Collection: collection, AccountID: accountID})
	return nil
}

// HandleReconnect reloads every watched partition since notifications sent
// while disconnected are lost.
func (p *PostgresStore) HandleReconnect() {
	for _, filter := range p.hub.filters() {
		p.refresh(filter)
	}
}

func (p *PostgresStore) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.hub.closeAll()
	return p.Conn.Close()
}
