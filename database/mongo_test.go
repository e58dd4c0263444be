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

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/blnkfinance/ledgersync/model"
)

func TestToBSON_RequestsServerTimestamp(t *testing.T) {
	doc := toBSON("entry_1", testCollection,
		model.NewDepositData("A", decimal.RequireFromString("5.00"), "Quick Deposit", "user-1"))

	require.GreaterOrEqual(t, len(doc), 3)
	assert.Equal(t, bson.E{Key: "_id", Value: "entry_1"}, doc[0])
	assert.Equal(t, bson.E{Key: model.FieldTimestamp, Value: primitive.Timestamp{}}, doc[1])
	assert.Equal(t, bson.E{Key: mongoCollectionField, Value: testCollection}, doc[2])

	fields := map[string]interface{}{}
	for _, e := range doc {
		fields[e.Key] = e.Value
	}
	assert.Equal(t, "5", fields[model.FieldDebit])

	_, err := bson.Marshal(doc)
	assert.NoError(t, err)
}

func TestFromBSON(t *testing.T) {
	oid := primitive.NewObjectID()
	dec, err := primitive.ParseDecimal128("2.50")
	require.NoError(t, err)

	tests := []struct {
		name   string
		raw    bson.M
		wantID string
		check  func(t *testing.T, data map[string]interface{})
	}{
		{
			name:   "server timestamp resolved",
			raw:    bson.M{"_id": "entry_1", mongoCollectionField: testCollection, "timestamp": primitive.Timestamp{T: 1714564800, I: 1}},
			wantID: "entry_1",
			check: func(t *testing.T, data map[string]interface{}) {
				assert.Equal(t, time.Unix(1714564800, 0).UTC(), data["timestamp"])
				assert.NotContains(t, data, mongoCollectionField)
			},
		},
		{
			name:   "empty timestamp is pending",
			raw:    bson.M{"_id": oid, "timestamp": primitive.Timestamp{}},
			wantID: oid.Hex(),
			check: func(t *testing.T, data map[string]interface{}) {
				assert.Nil(t, data["timestamp"])
			},
		},
		{
			name:   "date and decimal values",
			raw:    bson.M{"_id": "entry_2", "timestamp": primitive.NewDateTimeFromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), "credit": dec},
			wantID: "entry_2",
			check: func(t *testing.T, data map[string]interface{}) {
				assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), data["timestamp"])
				assert.Equal(t, "2.50", data["credit"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fromBSON(tt.raw)
			assert.Equal(t, tt.wantID, doc.ID)
			tt.check(t, doc.Data)
		})
	}
}
