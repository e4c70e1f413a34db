// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build linux

package sockopt

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type parsedCmsg struct {
	level, typ int32
	value      uint32
}

func parseCmsgs(t *testing.T, b []byte) []parsedCmsg {
	msgs, err := unix.ParseSocketControlMessage(b)
	require.NoError(t, err)
	var out []parsedCmsg
	for _, m := range msgs {
		require.Len(t, m.Data, 4)
		out = append(out, parsedCmsg{
			level: m.Header.Level,
			typ:   m.Header.Type,
			value: binary.NativeEndian.Uint32(m.Data),
		})
	}
	return out
}

func TestControlMessage(t *testing.T) {
	tests := []struct {
		name     string
		dst      string
		opts     Options
		expected []parsedCmsg
	}{
		{
			name: "ipv4 ttl and tos",
			dst:  "192.0.2.1",
			opts: Options{TTL: 9, TOS: 0xb8, DontFragment: true},
			expected: []parsedCmsg{
				{level: unix.IPPROTO_IP, typ: unix.IP_TTL, value: 9},
				{level: unix.IPPROTO_IP, typ: unix.IP_TOS, value: 0xb8},
			},
		},
		{
			name: "ipv4 ttl only",
			dst:  "192.0.2.1",
			opts: Options{TTL: 1},
			expected: []parsedCmsg{
				{level: unix.IPPROTO_IP, typ: unix.IP_TTL, value: 1},
			},
		},
		{
			name: "mapped ipv4 uses the ipv4 level",
			dst:  "::ffff:192.0.2.1",
			opts: Options{TTL: 4},
			expected: []parsedCmsg{
				{level: unix.IPPROTO_IP, typ: unix.IP_TTL, value: 4},
			},
		},
		{
			name: "ipv6 hop limit, traffic class and dontfrag",
			dst:  "2001:db8::1",
			opts: Options{TTL: 12, TOS: 0x20, DontFragment: true},
			expected: []parsedCmsg{
				{level: unix.IPPROTO_IPV6, typ: unix.IPV6_TCLASS, value: 0x20},
				{level: unix.IPPROTO_IPV6, typ: unix.IPV6_HOPLIMIT, value: 12},
				{level: unix.IPPROTO_IPV6, typ: unix.IPV6_DONTFRAG, value: 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := controlMessage(netip.MustParseAddr(tt.dst), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, parseCmsgs(t, b))
		})
	}
}

func TestControlMessageEmpty(t *testing.T) {
	b, err := controlMessage(netip.MustParseAddr("192.0.2.1"), Options{})
	require.NoError(t, err)
	assert.Empty(t, b)
}
