// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package redis is a Store backed by Redis. Each record is a hash holding
// the encoded record, the refresh lease, and the update time. Lease
// transitions run as scripts so they are atomic.
package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

const keyPrefix = "sigreq:keycache:"

var claimScript = redis.NewScript(`
local data = redis.call("HGET", KEYS[1], "data")
if not data then
  redis.call("HSET", KEYS[1], "data", ARGV[4], "lease", ARGV[1], "updated", ARGV[2])
  return {1, ARGV[4], ARGV[1], ARGV[2]}
end
local lease = redis.call("HGET", KEYS[1], "lease") or ""
local updated = redis.call("HGET", KEYS[1], "updated") or "0"
if lease == "" or tonumber(updated) < tonumber(ARGV[3]) then
  redis.call("HSET", KEYS[1], "lease", ARGV[1], "updated", ARGV[2])
  return {1, data, ARGV[1], ARGV[2]}
end
return {0, data, lease, updated}
`)

var completeScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "lease") ~= ARGV[1] then
  return 0
end
redis.call("HSET", KEYS[1], "data", ARGV[2], "lease", "", "updated", ARGV[3])
return 1
`)

var releaseScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "lease") == ARGV[1] then
  redis.call("HSET", KEYS[1], "lease", "")
end
return 0
`)

type Options struct {
	Address  string
	Password string
	DB       int
}

type Store struct {
	client *redis.Client
}

var _ keycache.Store = (*Store)(nil)

func Open(opts Options) (*Store, error) {
	if opts.Address == "" {
		return nil, errors.BadRequest.With("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Store{client: client}, nil
}

func (s *Store) Close() error { return s.client.Close() }

func redisKey(key keycache.EntityKey) string {
	return keyPrefix + string(key.Network) + ":" + key.EntityID()
}

func (s *Store) Get(ctx context.Context, key keycache.EntityKey) (*keycache.Record, error) {
	v, err := s.client.HMGet(ctx, redisKey(key), "data", "lease", "updated").Result()
	if err != nil {
		return nil, errors.UnknownError.WithFormat("get %v: %w", key, err)
	}
	if v[0] == nil {
		return nil, errors.NotFound.WithFormat("%v not found", key)
	}
	return decode(key, v)
}

func (s *Store) Claim(ctx context.Context, key keycache.EntityKey, lease string, now, reclaimBefore time.Time) (*keycache.Record, bool, error) {
	placeholder, err := json.Marshal(keycache.NewPlaceholder(key, "", now))
	if err != nil {
		return nil, false, errors.EncodingError.WithFormat("encode %v: %w", key, err)
	}

	res, err := claimScript.Run(ctx, s.client, []string{redisKey(key)},
		lease, now.UnixMilli(), reclaimBefore.UnixMilli(), placeholder).Slice()
	if err != nil {
		return nil, false, errors.UnknownError.WithFormat("claim %v: %w", key, err)
	}
	if len(res) != 4 {
		return nil, false, errors.InternalError.WithFormat("claim %v: unexpected redis response", key)
	}

	acquired, _ := res[0].(int64)
	r, err := decode(key, res[1:])
	if err != nil {
		return nil, false, err
	}
	return r, acquired == 1, nil
}

func (s *Store) Complete(ctx context.Context, key keycache.EntityKey, lease string, update *keycache.Update) (*keycache.Record, bool, error) {
	r, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if r.RefreshLease != lease {
		return r, false, nil
	}

	// Only the lease holder writes the data, so a successful swap means the
	// record was not modified since it was read
	update.Apply(r)
	data, err := json.Marshal(r)
	if err != nil {
		return nil, false, errors.EncodingError.WithFormat("encode %v: %w", key, err)
	}
	ok, err := completeScript.Run(ctx, s.client, []string{redisKey(key)},
		lease, data, r.UpdatedAt.UnixMilli()).Int()
	if err != nil {
		return nil, false, errors.UnknownError.WithFormat("complete %v: %w", key, err)
	}
	if ok == 1 {
		return r, true, nil
	}

	r, err = s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return r, false, nil
}

func (s *Store) Release(ctx context.Context, key keycache.EntityKey, lease string) error {
	err := releaseScript.Run(ctx, s.client, []string{redisKey(key)}, lease).Err()
	if err != nil {
		return errors.UnknownError.WithFormat("release %v: %w", key, err)
	}
	return nil
}

// decode builds a record from the data, lease, and updated fields.
func decode(key keycache.EntityKey, v []any) (*keycache.Record, error) {
	data, _ := v[0].(string)
	lease, _ := v[1].(string)
	updated, _ := v[2].(string)

	r := new(keycache.Record)
	err := json.Unmarshal([]byte(data), r)
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode %v: %w", key, err)
	}

	ms, err := strconv.ParseInt(updated, 10, 64)
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode %v: invalid update time %q", key, updated)
	}
	r.RefreshLease = lease
	r.UpdatedAt = time.UnixMilli(ms).UTC()
	return r, nil
}
