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

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/ledgersync/config"
	"github.com/blnkfinance/ledgersync/model"
)

func TestStorable(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("WAT", 3600))
	d := decimal.RequireFromString("2.50")

	out, serverTS := storable(map[string]interface{}{
		model.FieldDebit:       decimal.RequireFromString("5.00"),
		model.FieldCredit:      &d,
		model.FieldTimestamp:   model.ServerTimestamp,
		model.FieldDescription: "Quick Deposit",
		"settledAt":            when,
	})

	assert.True(t, serverTS)
	assert.Equal(t, "5", out[model.FieldDebit])
	assert.Equal(t, "2.5", out[model.FieldCredit])
	assert.Equal(t, "2024-01-02T02:04:05Z", out["settledAt"])
	assert.NotContains(t, out, model.FieldTimestamp)
	assert.Equal(t, "Quick Deposit", out[model.FieldDescription])
}

func TestNewDocumentStore(t *testing.T) {
	store, err := NewDocumentStore(context.Background(), &config.Configuration{
		DataSource: config.DataSourceConfig{Driver: config.DriverMemory},
	})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewDocumentStore(context.Background(), &config.Configuration{
		DataSource: config.DataSourceConfig{Driver: "firestore"},
	})
	assert.Error(t, err)
}
