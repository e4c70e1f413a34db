// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package transport is the encrypted datagram stack probes travel through.
// Each layer only exposes a generic Send; per-packet socket options ride on
// the context down to the PacketWriter that owns the socket.
package transport

import (
	"context"
	"net/netip"
)

// Sender is the generic send primitive every layer exposes
type Sender interface {
	Send(ctx context.Context, b []byte, dst netip.AddrPort) error
}

// PacketWriter is the bottom of the stack: the layer that owns the socket
type PacketWriter interface {
	WriteToContext(ctx context.Context, b []byte, dst netip.AddrPort) (int, error)
}
