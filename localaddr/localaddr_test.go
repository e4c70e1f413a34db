// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package localaddr

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFor(t *testing.T) {
	t.Run("IPv4 loopback destination returns loopback source", func(t *testing.T) {
		src, err := SourceFor(netip.MustParseAddr("127.0.0.1"))
		require.NoError(t, err)
		assert.True(t, src.IsLoopback())
		assert.True(t, src.Is4())
	})

	t.Run("invalid destination", func(t *testing.T) {
		_, err := SourceFor(netip.Addr{})
		assert.Error(t, err)
	})
}

func TestNormalizeLoopbackSource(t *testing.T) {
	tts := []struct {
		description string
		dst         string
		src         string
		expected    string
	}{
		{"non loopback destination keeps source", "203.0.113.1", "192.0.2.10", "192.0.2.10"},
		{"loopback source is kept", "127.0.0.1", "127.0.0.5", "127.0.0.5"},
		{"IPv4 loopback forced", "127.0.0.1", "192.0.2.10", "127.0.0.1"},
		{"IPv6 loopback forced", "::1", "2001:db8::5", "::1"},
	}
	for _, test := range tts {
		t.Run(test.description, func(t *testing.T) {
			got := normalizeLoopbackSource(netip.MustParseAddr(test.dst), netip.MustParseAddr(test.src))
			assert.Equal(t, netip.MustParseAddr(test.expected), got)
		})
	}
}
