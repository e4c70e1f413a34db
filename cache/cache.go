// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package cache holds slow lookups shared across sweeps: reverse DNS names,
// the public IP and measured framing overhead.
package cache

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	defaultExpire = 5 * time.Minute
	defaultPurge  = 30 * time.Second
)

// NoExpiration keeps an entry until it is forgotten
const NoExpiration = cache.NoExpiration

// Cache provides an in-memory key:value store similar to memcached
var Cache = cache.New(defaultExpire, defaultPurge)

var inflight singleflight.Group

// Key joins a lookup kind and its arguments into a cache key
func Key(kind string, parts ...string) string {
	return kind + ":" + strings.Join(parts, "|")
}

// Get returns the cached value for key, computing it with cb on a miss.
// Successful results never expire.
func Get[T any](key string, cb func() (T, error)) (T, error) {
	return GetWithExpiration[T](key, cb, NoExpiration)
}

// GetWithExpiration returns the cached value for key. On a miss, cb runs
// once no matter how many callers are waiting on the same key, and its
// result is cached for expire unless it failed.
func GetWithExpiration[T any](key string, cb func() (T, error), expire time.Duration) (T, error) {
	if x, found := Cache.Get(key); found {
		return x.(T), nil
	}

	v, err, _ := inflight.Do(key, func() (any, error) {
		res, err := cb()
		if err == nil {
			Cache.Set(key, res, expire)
		}
		return res, err
	})
	res, _ := v.(T)
	return res, err
}

// Forget drops key so the next Get recomputes it
func Forget(key string) {
	Cache.Delete(key)
	inflight.Forget(key)
}
