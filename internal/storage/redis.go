/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores keys in Redis under Prefix. History is a capped list per key.
type RedisKV struct {
	client *redis.Client
	prefix string
	keep   int
}

type redisRevision struct {
	ID    int64  `json:"id"`
	Saved int64  `json:"saved"` // unix ms
	Value string `json:"value"`
}

// OpenRedisKV parses a redis:// URL, pings the server and returns the store.
func OpenRedisKV(ctx context.Context, url string, keep int) (*RedisKV, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return NewRedisKV(ctx, redis.NewClient(opts), "cartonclub:", keep)
}

// NewRedisKV wraps an existing client.
func NewRedisKV(ctx context.Context, client *redis.Client, prefix string, keep int) (*RedisKV, error) {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(cctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisKV{client: client, prefix: prefix, keep: keep}, nil
}

func (r *RedisKV) k(key string) string       { return r.prefix + key }
func (r *RedisKV) histKey(key string) string { return r.prefix + key + ":history" }
func (r *RedisKV) seqKey(key string) string  { return r.prefix + key + ":seq" }

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.k(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	id, err := r.client.Incr(ctx, r.seqKey(key)).Result()
	if err != nil {
		return fmt.Errorf("next revision: %w", err)
	}
	rev, err := json.Marshal(redisRevision{ID: id, Saved: time.Now().UnixMilli(), Value: value})
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.k(key), value, 0)
		p.LPush(ctx, r.histKey(key), rev)
		if r.keep > 0 {
			p.LTrim(ctx, r.histKey(key), 0, int64(r.keep-1))
		}
		return nil
	})
	return err
}

func (r *RedisKV) revisions(ctx context.Context, key string, limit int) ([]redisRevision, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := r.client.LRange(ctx, r.histKey(key), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]redisRevision, 0, len(raw))
	for _, s := range raw {
		var rv redisRevision
		if json.Unmarshal([]byte(s), &rv) == nil {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (r *RedisKV) History(ctx context.Context, key string, limit int) ([]Revision, error) {
	revs, err := r.revisions(ctx, key, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Revision, len(revs))
	for i, rv := range revs {
		out[i] = Revision{ID: rv.ID, Saved: time.UnixMilli(rv.Saved), Size: len(rv.Value)}
	}
	return out, nil
}

func (r *RedisKV) Revision(ctx context.Context, key string, id int64) (string, error) {
	revs, err := r.revisions(ctx, key, 0)
	if err != nil {
		return "", err
	}
	for _, rv := range revs {
		if rv.ID == id {
			return rv.Value, nil
		}
	}
	return "", ErrNoRevision
}

func (r *RedisKV) Close() error { return r.client.Close() }
