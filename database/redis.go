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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/ledgersync/config"
	redis_db "github.com/blnkfinance/ledgersync/internal/redis-db"
	"github.com/blnkfinance/ledgersync/model"
)

const redisKeyPrefix = "ledgersync"

// appendScript stores the document, stamps it with the server clock when asked
// to, indexes it under its account and announces the change, all atomically.
// TIME is kept as "seconds:micros" strings since Lua numbers are doubles.
var appendScript = redis.NewScript(`
local t = redis.call('TIME')
local stamp = t[1] .. ':' .. t[2]
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if ARGV[4] == '1' then
	redis.call('HSET', KEYS[2], ARGV[1], stamp)
end
redis.call('SADD', KEYS[3], ARGV[1])
redis.call('PUBLISH', KEYS[4], ARGV[3])
return stamp
`)

type redisKeys struct {
	docs       string
	timestamps string
	channel    string
}

// Braces keep every key of a collection on one cluster slot.
func keysFor(collection string) redisKeys {
	base := fmt.Sprintf("%s:{%s}", redisKeyPrefix, collection)
	return redisKeys{
		docs:       base + ":docs",
		timestamps: base + ":ts",
		channel:    base + ":changes",
	}
}

func partitionKey(filter model.Filter) string {
	return fmt.Sprintf("%s:{%s}:account:%s", redisKeyPrefix, filter.Collection, filter.AccountID)
}

func parseRedisStamp(stamp string) (time.Time, error) {
	secs, micros, ok := strings.Cut(stamp, ":")
	if !ok {
		return time.Time{}, errors.Errorf("malformed redis time %q", stamp)
	}
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "redis time seconds")
	}
	us, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "redis time micros")
	}
	return time.Unix(s, us*int64(time.Microsecond)).UTC(), nil
}

// RedisStore keeps each collection in two hashes plus one id set per account.
// Changes are announced on a per-collection pub/sub channel carrying the account id.
type RedisStore struct {
	client redis.UniversalClient
	hub    *hub

	mu       sync.Mutex
	watchers map[string]*redis.PubSub
	closed   bool
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client:   client,
		hub:      newHub(),
		watchers: make(map[string]*redis.PubSub),
	}
}

func NewRedisStoreFromConfig(cnf config.RedisConfig) (*RedisStore, error) {
	rdb, err := redis_db.NewRedisClient(redis_db.SplitAddresses(cnf.Dns), cnf.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	return NewRedisStore(rdb.Client()), nil
}

func (r *RedisStore) Append(ctx context.Context, collection string, data map[string]interface{}) (model.AppendResult, error) {
	if err := validateFilter(model.Filter{Collection: collection}); err != nil {
		return model.AppendResult{}, err
	}

	stored, serverTS := storable(data)
	body, err := json.Marshal(stored)
	if err != nil {
		return model.AppendResult{}, errors.Wrap(err, "encoding document")
	}

	id := model.GenerateUUIDWithSuffix(idPrefix)
	keys := keysFor(collection)
	flag := "0"
	if serverTS {
		flag = "1"
	}
	accountID := accountOf(stored)
	partition := partitionKey(model.Filter{Collection: collection, AccountID: accountID})

	stamp, err := appendScript.Run(ctx, r.client,
		[]string{keys.docs, keys.timestamps, partition, keys.channel},
		id, body, accountID, flag,
	).Text()
	if err != nil {
		return model.AppendResult{}, errors.Wrap(err, "redis append")
	}

	committedAt, err := parseRedisStamp(stamp)
	if err != nil {
		return model.AppendResult{}, err
	}
	return model.AppendResult{ID: id, CommittedAt: committedAt}, nil
}

func (r *RedisStore) Subscribe(ctx context.Context, filter model.Filter, onSnapshot func([]model.Document), onError func(error)) (Listener, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if err := r.watch(ctx, filter.Collection); err != nil {
		return nil, err
	}

	s := r.hub.add(filter, onSnapshot, onError)
	loadCtx := context.WithoutCancel(ctx)
	s.reload(func() ([]model.Document, error) {
		return r.loadPartition(loadCtx, filter)
	})
	return s, nil
}

// watch subscribes to the collection channel once and waits for the
// confirmation, so no change after the initial read is missed.
func (r *RedisStore) watch(ctx context.Context, collection string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStoreClosed
	}
	if _, ok := r.watchers[collection]; ok {
		return nil
	}

	ps := r.client.Subscribe(context.Background(), keysFor(collection).channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return errors.Wrap(err, "redis subscribe")
	}
	r.watchers[collection] = ps

	go r.consume(collection, ps)
	return nil
}

func (r *RedisStore) consume(collection string, ps *redis.PubSub) {
	for msg := range ps.Channel() {
		filter := model.Filter{Collection: collection, AccountID: msg.Payload}
		for _, s := range r.hub.partition(filter) {
			s.reload(func() ([]model.Document, error) {
				return r.loadPartition(context.Background(), filter)
			})
		}
	}
}

func (r *RedisStore) loadPartition(ctx context.Context, filter model.Filter) ([]model.Document, error) {
	ids, err := r.client.SMembers(ctx, partitionKey(filter)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "reading partition index")
	}
	docs := []model.Document{}
	if len(ids) == 0 {
		return docs, nil
	}

	keys := keysFor(filter.Collection)
	bodies, err := r.client.HMGet(ctx, keys.docs, ids...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "reading documents")
	}
	stamps, err := r.client.HMGet(ctx, keys.timestamps, ids...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "reading timestamps")
	}

	for i, id := range ids {
		body, ok := bodies[i].(string)
		if !ok {
			continue
		}
		doc, err := decodeRedisDocument(id, body, stamps[i])
		if err != nil {
			logrus.WithError(err).WithField("id", id).Warn("skipping undecodable document")
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func decodeRedisDocument(id, body string, stamp interface{}) (model.Document, error) {
	data := map[string]interface{}{}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return model.Document{}, err
	}

	if s, ok := stamp.(string); ok {
		ts, err := parseRedisStamp(s)
		if err != nil {
			data[model.FieldTimestamp] = s
		} else {
			data[model.FieldTimestamp] = ts
		}
	}
	return model.Document{ID: id, Data: data}, nil
}

func (r *RedisStore) Close() error {
	r.mu.Lock()
	r.closed = true
	watchers := r.watchers
	r.watchers = map[string]*redis.PubSub{}
	r.mu.Unlock()

	r.hub.closeAll()
	for _, ps := range watchers {
		_ = ps.Close()
	}
	return r.client.Close()
}
