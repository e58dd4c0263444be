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

package redis_db

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 500 * time.Millisecond

// Redis wraps a universal client so callers do not care whether they talk to
// a single node or a cluster.
type Redis struct {
	addresses []string
	client    redis.UniversalClient
}

// SplitAddresses turns a comma separated DNS setting into client addresses.
func SplitAddresses(dns string) []string {
	var addresses []string
	for _, addr := range strings.Split(dns, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}

// ParseRedisURL accepts bare host:port addresses as well as redis:// and rediss:// URLs.
// A URL carrying only a password before the @ is treated as a password, not a username.
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	if !strings.Contains(rawURL, "//") && !strings.Contains(rawURL, "@") {
		return &redis.Options{Addr: rawURL}, nil
	}

	if strings.HasPrefix(rawURL, "redis://") && strings.Contains(rawURL, "@") {
		userinfo, host, _ := strings.Cut(strings.TrimPrefix(rawURL, "redis://"), "@")
		if !strings.Contains(userinfo, ":") {
			rawURL = "redis://:" + userinfo + "@" + host
		}
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}

	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 opt-in via config
	}
	return opts, nil
}

// NewRedisClient connects to the given addresses and pings once. More than one
// address selects a cluster client sharing the first password found.
func NewRedisClient(addresses []string, skipTLSVerify bool) (*Redis, error) {
	if len(addresses) == 0 {
		return nil, errors.New("redis addresses list cannot be empty")
	}

	var client redis.UniversalClient
	if len(addresses) == 1 {
		opts, err := ParseRedisURL(addresses[0], skipTLSVerify)
		if err != nil {
			return nil, err
		}
		client = redis.NewClient(opts)
	} else {
		cluster := &redis.UniversalOptions{}
		for _, addr := range addresses {
			opts, err := ParseRedisURL(addr, skipTLSVerify)
			if err != nil {
				return nil, err
			}
			cluster.Addrs = append(cluster.Addrs, opts.Addr)
			if cluster.Password == "" {
				cluster.Password = opts.Password
			}
			if opts.TLSConfig != nil && cluster.TLSConfig == nil {
				cluster.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: skipTLSVerify} // #nosec G402
			}
		}
		client = redis.NewUniversalClient(cluster)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}
	return &Redis{addresses: addresses, client: client}, nil
}

func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

func (r *Redis) Close() error {
	return r.client.Close()
}
