// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package common contains defaults and small helpers shared by the probe
// encoder, the ICMP listener and the sweep scheduler
package common

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	DefaultMaxHops         = 30
	DefaultSendInterval    = 50 * time.Millisecond
	DefaultHopTimeout      = 3 * time.Second
	DefaultMaxDatagramSize = 1400
	DefaultBaseLength      = 64
	DefaultHopStride       = 24
	DefaultConnStride      = 7
	DefaultMaxConnections  = 24
	DefaultPort            = 33434
	DefaultTOS             = 0
	DefaultDontFragment    = true
	DefaultReverseDns      = false
	DefaultHTTPAddr        = ":3765"

	// UDPHeaderLen is the fixed size of a UDP header
	UDPHeaderLen = 8
	// MaxTTL is the largest TTL/hop limit an IP header can carry
	MaxTTL = 255
)

type (
	// CanceledError is sent when a listener
	// is canceled
	CanceledError string

	// MismatchError is an error type that indicates a packet was well formed
	// but does not belong to a probe this process could have sent
	MismatchError string
)

// Error implements the error interface for
// CanceledError
func (c CanceledError) Error() string {
	return string(c)
}

// Error implements the error interface for
// MismatchError
func (m MismatchError) Error() string {
	return string(m)
}

// DNSError wraps DNS resolution failures so they can be classified
// at the HTTP boundary.
type DNSError struct {
	Host string
	Err  error
}

func (e *DNSError) Error() string {
	return fmt.Sprintf("failed to resolve host %q: %s", e.Host, e.Err)
}

func (e *DNSError) Unwrap() error {
	return e.Err
}

// InvalidTargetError represents an invalid target specification (bad port, malformed address).
type InvalidTargetError struct {
	Err error
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid target: %s", e.Err)
}

func (e *InvalidTargetError) Unwrap() error {
	return e.Err
}

// UnmappedAddrFromSlice is the same as netip.AddrFromSlice but it also gets rid of mapped ipv6 addresses.
func UnmappedAddrFromSlice(slice []byte) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(slice)
	return addr.Unmap(), ok
}

// IPFamily returns the IP family of an address (v4 or v6) as a gopacket layer
func IPFamily(addr netip.Addr) gopacket.LayerType {
	if addr.Unmap().Is4() {
		return layers.LayerTypeIPv4
	}
	return layers.LayerTypeIPv6
}

// IPHeaderLen returns the size of a basic IP header for the address family
func IPHeaderLen(addr netip.Addr) int {
	if addr.Unmap().Is4() {
		return 20
	}
	return 40
}
