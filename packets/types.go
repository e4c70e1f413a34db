// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package packets reads ICMP error messages from raw sockets
package packets

//go:generate mockgen -source=types.go -destination=mock_source.go -package=packets

import (
	"net/netip"
	"time"

	"github.com/google/gopacket"
)

// Source is a raw ICMP reader for one IP family
type Source interface {
	// SetReadDeadline sets the deadline for when a Read() call must finish
	SetReadDeadline(t time.Time) error
	// Read reads one ICMP message into buf. The message starts at the ICMP
	// header. It returns the message length and the address that sent it.
	Read(buf []byte) (int, netip.Addr, error)
	// Family returns layers.LayerTypeIPv4 or layers.LayerTypeIPv6
	Family() gopacket.LayerType
	// Close closes the underlying socket
	Close() error
}
