// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/session"
)

func TestParseSweepParams(t *testing.T) {
	tests := []struct {
		name        string
		queryString string
		want        session.Params
		wantErr     string
	}{
		{
			name:        "missing target",
			queryString: "",
			wantErr:     "missing required parameter: target",
		},
		{
			name:        "basic target only",
			queryString: "target=example.com",
			want:        session.Params{Hostname: "example.com", Port: common.DefaultPort, Connections: 1},
		},
		{
			name:        "with port and connections",
			queryString: "target=example.com&port=443&connections=4",
			want:        session.Params{Hostname: "example.com", Port: 443, Connections: 4},
		},
		{
			name:        "with boolean flags",
			queryString: "target=8.8.8.8&reverse-dns=true&ipv6=true&source-public-ip=1",
			want: session.Params{
				Hostname:              "8.8.8.8",
				Port:                  common.DefaultPort,
				Connections:           1,
				WantV6:                true,
				ReverseDns:            true,
				CollectSourcePublicIP: true,
			},
		},
		{
			name:        "with timeout",
			queryString: "target=test.com&timeout=5000",
			want:        session.Params{Hostname: "test.com", Port: common.DefaultPort, Connections: 1, Timeout: 5 * time.Second},
		},
		{
			name:        "port out of range",
			queryString: "target=test.com&port=70000",
			wantErr:     `invalid port: "70000"`,
		},
		{
			name:        "zero connections",
			queryString: "target=test.com&connections=0",
			wantErr:     `invalid connections: "0"`,
		},
		{
			name:        "negative timeout",
			queryString: "target=test.com&timeout=-1",
			wantErr:     `invalid timeout: "-1"`,
		},
		{
			name:        "malformed number",
			queryString: "target=test.com&port=https",
			wantErr:     `invalid port: "https"`,
		},
		{
			name:        "malformed bool",
			queryString: "target=test.com&ipv6=maybe",
			wantErr:     `invalid ipv6: "maybe"`,
		},
		{
			name:        "first error wins",
			queryString: "target=test.com&port=0&connections=-3",
			wantErr:     `invalid port: "0"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/sweep?"+tt.queryString, nil)
			params, err := parseSweepParams(req)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, params)
		})
	}
}

func TestQueryReader(t *testing.T) {
	q := &queryReader{values: url.Values{"num": {"42"}, "flag": {"true"}}}
	assert.Equal(t, 42, q.intIn("num", 10, 0, 100))
	assert.Equal(t, 10, q.intIn("missing", 10, 0, 100))
	assert.True(t, q.bool("flag"))
	assert.False(t, q.bool("missing"))
	require.NoError(t, q.err)

	assert.Equal(t, 7, q.intIn("num", 7, 0, 41))
	assert.EqualError(t, q.err, `invalid num: "42"`)
	assert.Equal(t, 5, q.intIn("num", 5, 0, 100), "reads stop after the first error")
}
