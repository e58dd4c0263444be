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
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/ledgersync/config"
	"github.com/blnkfinance/ledgersync/model"
)

const idPrefix = "entry"

var (
	ErrEmptyCollection = errors.New("collection path is required")
	ErrStoreClosed     = errors.New("document store is closed")
)

// Listener is the handle returned by Subscribe.
type Listener interface {
	Unsubscribe()
}

// DocumentStore is a multi-writer collection with live partition queries.
// Every change to a partition delivers the complete, unordered partition to
// its listeners. Append replaces model.ServerTimestamp values with the store's
// commit time.
type DocumentStore interface {
	Subscribe(ctx context.Context, filter model.Filter, onSnapshot func([]model.Document), onError func(error)) (Listener, error)
	Append(ctx context.Context, collection string, data map[string]interface{}) (model.AppendResult, error)
	Close() error
}

// NewDocumentStore builds the store selected by the data source driver.
func NewDocumentStore(ctx context.Context, cnf *config.Configuration) (DocumentStore, error) {
	switch cnf.DataSource.Driver {
	case config.DriverMemory, "":
		return NewMemoryStore(), nil
	case config.DriverRedis:
		return NewRedisStoreFromConfig(cnf.Redis)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cnf.DataSource.Dns)
	case config.DriverMongo:
		return NewMongoStore(ctx, cnf.DataSource.Dns, cnf.DataSource.Database)
	default:
		return nil, errors.Errorf("unsupported data source driver %q", cnf.DataSource.Driver)
	}
}

func validateFilter(filter model.Filter) error {
	if strings.TrimSpace(filter.Collection) == "" {
		return ErrEmptyCollection
	}
	return nil
}

// storable converts a payload into plain values every backend can encode. Decimals
// become strings so no precision is lost. The second result reports whether
// the caller asked for a server timestamp.
func storable(data map[string]interface{}) (map[string]interface{}, bool) {
	out := make(map[string]interface{}, len(data))
	serverTS := false
	for key, value := range data {
		switch v := value.(type) {
		case decimal.Decimal:
			out[key] = v.String()
		case *decimal.Decimal:
			if v != nil {
				out[key] = v.String()
			}
		case time.Time:
			out[key] = v.UTC().Format(time.RFC3339Nano)
		default:
			if model.IsServerTimestamp(value) {
				serverTS = true
				continue
			}
			out[key] = value
		}
	}
	return out, serverTS
}

func accountOf(data map[string]interface{}) string {
	accountID, _ := data[model.FieldAccountID].(string)
	return accountID
}
