// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		preSeedCache func()
		callback     func() (string, error)
		wantValue    string
		wantErr      bool
		shouldCache  bool
	}{
		{
			name: "cache miss - successful callback",
			key:  Key("rdns", "192.0.2.1"),
			callback: func() (string, error) {
				return "router.example", nil
			},
			wantValue:   "router.example",
			shouldCache: true,
		},
		{
			name: "cache miss - callback returns error",
			key:  Key("rdns", "192.0.2.2"),
			callback: func() (string, error) {
				return "", errors.New("no ptr record")
			},
			wantErr: true,
		},
		{
			name: "cache hit - callback not invoked",
			key:  Key("publicip"),
			preSeedCache: func() {
				Cache.Set(Key("publicip"), "198.51.100.7", NoExpiration)
			},
			callback: func() (string, error) {
				t.Fatal("callback should not be called on cache hit")
				return "", nil
			},
			wantValue:   "198.51.100.7",
			shouldCache: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Cache.Flush()
			if tt.preSeedCache != nil {
				tt.preSeedCache()
			}

			got, err := Get(tt.key, tt.callback)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantValue, got)

			_, found := Cache.Get(tt.key)
			assert.Equal(t, tt.shouldCache, found)
		})
	}
}

func TestGetWithExpirationExpires(t *testing.T) {
	Cache.Flush()
	key := Key("overhead", "stack")

	got, err := GetWithExpiration(key, func() (int, error) { return 35, nil }, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 35, got)

	time.Sleep(150 * time.Millisecond)
	_, found := Cache.Get(key)
	assert.False(t, found, "value should have expired from cache")
}

func TestGetCollapsesConcurrentMisses(t *testing.T) {
	Cache.Flush()
	key := Key("rdns", "203.0.113.5")

	var calls atomic.Int32
	release := make(chan struct{})
	cb := func() (string, error) {
		calls.Add(1)
		<-release
		return "edge.example", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Get(key, cb)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "edge.example", r)
	}
}

func TestForget(t *testing.T) {
	Cache.Flush()
	key := Key("publicip")
	n := 0
	cb := func() (int, error) { n++; return n, nil }

	first, _ := Get(key, cb)
	Forget(key)
	second, _ := Get(key, cb)
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "rdns:192.0.2.1", Key("rdns", "192.0.2.1"))
	assert.Equal(t, "overhead:a|b", Key("overhead", "a", "b"))
	assert.Equal(t, "publicip:", Key("publicip"))
}
