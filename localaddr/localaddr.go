// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package localaddr asks the kernel how it would reach a destination: the
// source address probes leave with and the MTU of the outbound link
package localaddr

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/log"
)

// Route is the kernel's outbound route to a destination
type Route struct {
	IfIndex uint32
	Src     netip.Addr
	// MTU is the route's own MTU metric, 0 when it inherits the link's
	MTU int
}

// SourceFor returns the local address the kernel picks to reach dst
func SourceFor(dst netip.Addr) (netip.Addr, error) {
	if !dst.IsValid() {
		return netip.Addr{}, fmt.Errorf("invalid destination address")
	}
	route, err := lookupOutboundRoute(dst)
	if err == nil && route.Src.IsValid() {
		return normalizeLoopbackSource(dst, route.Src), nil
	}
	if err != nil {
		log.Debugf("route lookup for %s failed, dialing instead: %s", dst, err)
	}

	// connecting a UDP socket sends nothing but makes the kernel pick a source
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(netip.AddrPortFrom(dst, common.DefaultPort)))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to find a source address for %s: %w", dst, err)
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("invalid address type for %s: want %T, got %T", conn.LocalAddr(), local, conn.LocalAddr())
	}
	src, ok := common.UnmappedAddrFromSlice(local.IP)
	if !ok {
		return netip.Addr{}, fmt.Errorf("invalid local address %s", local.IP)
	}
	return normalizeLoopbackSource(dst, src), nil
}

// normalizeLoopbackSource forces a loopback source for loopback destinations.
// On macOS a dial to loopback may report a non-loopback local address.
func normalizeLoopbackSource(dst, src netip.Addr) netip.Addr {
	if !dst.IsLoopback() || src.IsLoopback() {
		return src
	}
	if dst.Is4() {
		return netip.AddrFrom4([4]byte{127, 0, 0, 1})
	}
	return netip.IPv6Loopback()
}

// PathMTU returns the MTU of the first link on the way to dst, preferring a
// route MTU when one is set
func PathMTU(dst netip.Addr) (int, error) {
	route, err := lookupOutboundRoute(dst)
	if err != nil {
		return 0, err
	}
	if route.MTU > 0 {
		return route.MTU, nil
	}
	return linkMTU(route.IfIndex)
}
