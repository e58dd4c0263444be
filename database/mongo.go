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
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/blnkfinance/ledgersync/model"
)

const (
	mongoCollection      = "ledger_entries"
	mongoCollectionField = "_collection"
	mongoConnectTimeout  = 10 * time.Second
)

// MongoStore keeps every ledger collection in one mongo collection tagged with
// its path. Appends carry an empty BSON timestamp which the server replaces
// with its own clock on insert.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	hub    *hub

	mu        sync.Mutex
	listeners map[uint64]*mongoListener
}

type mongoListener struct {
	*subscriber
	cancel context.CancelFunc
	store  *MongoStore
}

func (l *mongoListener) Unsubscribe() {
	l.cancel()
	l.subscriber.Unsubscribe()

	l.store.mu.Lock()
	delete(l.store.listeners, l.id)
	l.store.mu.Unlock()
}

func NewMongoStore(ctx context.Context, dns, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dns))
	if err != nil {
		return nil, errors.Wrap(err, "mongodb connection error ❌")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongodb connection error ❌")
	}
	logrus.Println("mongodb connected ✅")

	coll := client.Database(database).Collection(mongoCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: mongoCollectionField, Value: 1}, {Key: model.FieldAccountID, Value: 1}},
	})
	if err != nil {
		logrus.WithError(err).Warn("could not create ledger partition index")
	}

	return &MongoStore{
		client:    client,
		coll:      coll,
		hub:       newHub(),
		listeners: make(map[uint64]*mongoListener),
	}, nil
}

// toBSON builds the stored document. The server only fills an empty
// primitive.Timestamp in the leading fields, so it goes right after _id.
func toBSON(id, collection string, data map[string]interface{}) bson.D {
	stored, serverTS := storable(data)
	doc := bson.D{{Key: "_id", Value: id}}
	if serverTS {
		doc = append(doc, bson.E{Key: model.FieldTimestamp, Value: primitive.Timestamp{}})
		delete(stored, model.FieldTimestamp)
	}
	doc = append(doc, bson.E{Key: mongoCollectionField, Value: collection})

	keys := make([]string, 0, len(stored))
	for k := range stored {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: stored[k]})
	}
	return doc
}

// fromBSON converts a stored document back into the store-neutral shape.
func fromBSON(raw bson.M) model.Document {
	doc := model.Document{Data: map[string]interface{}{}}
	switch id := raw["_id"].(type) {
	case string:
		doc.ID = id
	case primitive.ObjectID:
		doc.ID = id.Hex()
	}

	for key, value := range raw {
		if key == "_id" || key == mongoCollectionField {
			continue
		}
		switch v := value.(type) {
		case primitive.Timestamp:
			if v.T == 0 && v.I == 0 {
				doc.Data[key] = nil
			} else {
				doc.Data[key] = time.Unix(int64(v.T), 0).UTC()
			}
		case primitive.DateTime:
			doc.Data[key] = v.Time().UTC()
		case primitive.Decimal128:
			doc.Data[key] = v.String()
		default:
			doc.Data[key] = v
		}
	}
	return doc
}

func (m *MongoStore) Append(ctx context.Context, collection string, data map[string]interface{}) (model.AppendResult, error) {
	if err := validateFilter(model.Filter{Collection: collection}); err != nil {
		return model.AppendResult{}, err
	}

	id := model.GenerateUUIDWithSuffix(idPrefix)
	if _, err := m.coll.InsertOne(ctx, toBSON(id, collection, data)); err != nil {
		return model.AppendResult{}, errors.Wrap(err, "inserting ledger entry")
	}

	var stored bson.M
	err := m.coll.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{model.FieldTimestamp: 1})).Decode(&stored)
	if err != nil {
		return model.AppendResult{}, errors.Wrap(err, "reading commit time")
	}

	committedAt := time.Now().UTC()
	if ts, ok := fromBSON(stored).Data[model.FieldTimestamp].(time.Time); ok {
		committedAt = ts
	}
	return model.AppendResult{ID: id, CommittedAt: committedAt}, nil
}

func (m *MongoStore) Subscribe(ctx context.Context, filter model.Filter, onSnapshot func([]model.Document), onError func(error)) (Listener, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	match := bson.M{mongoCollectionField: filter.Collection, model.FieldAccountID: filter.AccountID}
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{
		"fullDocument." + mongoCollectionField: filter.Collection,
		"fullDocument." + model.FieldAccountID: filter.AccountID,
	}}}}

	watchCtx, cancel := context.WithCancel(context.Background())
	stream, err := m.coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "opening change stream")
	}

	l := &mongoListener{subscriber: m.hub.add(filter, onSnapshot, onError), cancel: cancel, store: m}
	m.mu.Lock()
	m.listeners[l.id] = l
	m.mu.Unlock()

	m.deliver(watchCtx, l, match)
	go func() {
		defer stream.Close(context.Background())
		for stream.Next(watchCtx) {
			m.deliver(watchCtx, l, match)
		}
		if err := stream.Err(); err != nil && watchCtx.Err() == nil {
			l.fail(errors.Wrap(err, "change stream"))
		}
	}()
	return l, nil
}

func (m *MongoStore) deliver(ctx context.Context, l *mongoListener, match bson.M) {
	cursor, err := m.coll.Find(ctx, match)
	if err != nil {
		if ctx.Err() == nil {
			l.fail(errors.Wrap(err, "querying ledger entries"))
		}
		return
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		if ctx.Err() == nil {
			l.fail(errors.Wrap(err, "decoding ledger entries"))
		}
		return
	}

	docs := make([]model.Document, 0, len(raw))
	for _, r := range raw {
		docs = append(docs, fromBSON(r))
	}
	l.snapshot(docs)
}

func (m *MongoStore) Close() error {
	m.mu.Lock()
	listeners := make([]*mongoListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l.Unsubscribe()
	}
	return m.client.Disconnect(context.Background())
}
