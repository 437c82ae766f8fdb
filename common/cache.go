// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Two-tier cache for bar panels and backtest records: a process-local LRU in
// front of an optional shared redis. Payloads are lz4 compressed.

var ErrCacheMiss = errors.New("key not found in cache")

var cacheCtx = context.Background()
var cacheOnce sync.Once
var rdb *redis.Client
var localCache *lru.Cache

// SetupCache initializes the cache tiers; only the first call takes effect
func SetupCache() {
	cacheOnce.Do(setupCache)
}

func setupCache() {
	var err error
	// a non-empty redis.url enables the shared tier
	if url := viper.GetString("redis.url"); url != "" {
		opt, err := redis.ParseURL(url)
		if err != nil {
			log.Fatal().Err(err).Msg("could not parse redis URL")
		}
		rdb = redis.NewClient(opt)
	}

	size := viper.GetInt("cache.local_size")
	if size == 0 {
		size = 4096
	}
	localCache, err = lru.New(size)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create LRU cache")
	}
}

func CacheSet(key string, bytes []byte) error {
	SetupCache()
	b2, err := Compress(bytes)
	if err != nil {
		return err
	}
	localCache.Add(key, b2)

	if rdb != nil {
		expires := time.Duration(viper.GetInt("cache.ttl")) * time.Second
		return rdb.Set(cacheCtx, key, b2, expires).Err()
	}
	return nil
}

func CacheGet(key string) ([]byte, error) {
	SetupCache()
	if v, ok := localCache.Get(key); ok {
		return Decompress(v.([]byte))
	}

	if rdb != nil {
		expires := time.Duration(viper.GetInt("cache.ttl")) * time.Second
		val, err := rdb.GetEx(cacheCtx, key, expires).Bytes()
		if err != nil {
			return nil, ErrCacheMiss
		}
		localCache.Add(key, val)
		return Decompress(val)
	}

	return nil, ErrCacheMiss
}
