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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/ledgersync/model"
)

func TestPostgresStore_AppendUsesServerTime(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := newPostgresStore(db)
	committed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO ledger_entries").
		WithArgs(sqlmock.AnyArg(), testCollection, "Allmer Bank", sqlmock.AnyArg(), nil).
		WillReturnRows(sqlmock.NewRows([]string{"committed_at"}).AddRow(committed))

	res, err := store.Append(context.Background(), testCollection,
		model.NewDepositData("Allmer Bank", decimal.RequireFromString("5.00"), "Quick Deposit", "user-1"))
	require.NoError(t, err)
	assert.Equal(t, committed, res.CommittedAt)
	assert.Contains(t, res.ID, "entry_")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendExplicitTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := newPostgresStore(db)
	when := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO ledger_entries").
		WithArgs(sqlmock.AnyArg(), testCollection, "A", sqlmock.AnyArg(), when).
		WillReturnRows(sqlmock.NewRows([]string{"committed_at"}).AddRow(when))

	_, err = store.Append(context.Background(), testCollection, map[string]interface{}{
		model.FieldAccountID: "A",
		model.FieldTimestamp: when,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := newPostgresStore(db)
	mock.ExpectQuery("INSERT INTO ledger_entries").WillReturnError(errors.New("permission denied for table ledger_entries"))

	_, err = store.Append(context.Background(), testCollection, model.NewDepositData("A", decimal.NewFromInt(1), "d", "u"))
	assert.ErrorContains(t, err, "permission denied")
}

func TestPostgresStore_SubscribeAndNotify(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := newPostgresStore(db)
	filter := model.Filter{Collection: testCollection, AccountID: "A"}
	committed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, data, committed_at FROM ledger_entries").
		WithArgs(testCollection, "A").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "committed_at"}))
	mock.ExpectQuery("SELECT id, data, committed_at FROM ledger_entries").
		WithArgs(testCollection, "A").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "committed_at"}).
			AddRow("entry_1", []byte(`{"accountId":"A","debit":"5","credit":"0"}`), committed).
			AddRow("entry_2", []byte(`not json`), committed))

	rec := newRecorder()
	l, err := store.Subscribe(context.Background(), filter, rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	defer l.Unsubscribe()
	assert.Empty(t, rec.next(t))

	// unrelated tables and partitions are ignored
	require.NoError(t, store.HandleNotification("other_table", map[string]interface{}{"collection": testCollection}))
	require.NoError(t, store.HandleNotification(ledgerEntriesTable, map[string]interface{}{
		"collection": testCollection, "account_id": "B",
	}))
	assert.Error(t, store.HandleNotification(ledgerEntriesTable, map[string]interface{}{}))

	require.NoError(t, store.HandleNotification(ledgerEntriesTable, map[string]interface{}{
		"collection": testCollection, "account_id": "A",
	}))
	docs := rec.next(t)
	require.Len(t, docs, 1)
	assert.Equal(t, "entry_1", docs[0].ID)
	assert.Equal(t, committed, docs[0].Data[model.FieldTimestamp])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReconnectReloadsAndReportsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := newPostgresStore(db)
	filter := model.Filter{Collection: testCollection, AccountID: "A"}

	mock.ExpectQuery("SELECT id, data, committed_at FROM ledger_entries").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "committed_at"}))
	mock.ExpectQuery("SELECT id, data, committed_at FROM ledger_entries").
		WillReturnError(errors.New("connection reset"))

	rec := newRecorder()
	l, err := store.Subscribe(context.Background(), filter, rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	defer l.Unsubscribe()
	rec.next(t)

	store.HandleReconnect()
	assert.ErrorContains(t, rec.nextErr(t), "connection reset")
}

func TestPostgresStore_RefreshDuringFirstLoadDeliversLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := newPostgresStore(db)
	filter := model.Filter{Collection: testCollection, AccountID: "A"}
	committed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, data, committed_at FROM ledger_entries").
		WithArgs(testCollection, "A").
		WillDelayFor(150 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "committed_at"}))
	mock.ExpectQuery("SELECT id, data, committed_at FROM ledger_entries").
		WithArgs(testCollection, "A").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data", "committed_at"}).
			AddRow("entry_1", []byte(`{"accountId":"A","debit":"5","credit":"0"}`), committed))

	rec := newRecorder()
	l, err := store.Subscribe(context.Background(), filter, rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	defer l.Unsubscribe()

	// a write lands while the first read is still running
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, store.HandleNotification(ledgerEntriesTable, map[string]interface{}{
		"collection": testCollection, "account_id": "A",
	}))

	assert.Empty(t, rec.next(t))
	latest := rec.next(t)
	require.Len(t, latest, 1)
	assert.Equal(t, "entry_1", latest[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
