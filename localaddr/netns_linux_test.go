// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build linux && test

package localaddr

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/datadog-pathprobe/testutils"
)

func TestPathMTUInNamespace(t *testing.T) {
	ns := testutils.NewLoopbackNS(t)
	testutils.AddDummyLink(t, ns, "probe0", 1300, "198.18.0.1/24")

	tests := []struct {
		name    string
		dst     string
		wantMTU int
		wantSrc string
	}{
		{name: "loopback", dst: "127.0.0.1", wantMTU: 65536, wantSrc: "127.0.0.1"},
		{name: "dummy link", dst: "198.18.0.2", wantMTU: 1300, wantSrc: "198.18.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testutils.InNS(ns, func() error {
				dst := netip.MustParseAddr(tt.dst)
				mtu, err := PathMTU(dst)
				if err != nil {
					return err
				}
				assert.Equal(t, tt.wantMTU, mtu)

				src, err := SourceFor(dst)
				if err != nil {
					return err
				}
				assert.Equal(t, netip.MustParseAddr(tt.wantSrc), src)
				return nil
			})
			require.NoError(t, err)
		})
	}
}
