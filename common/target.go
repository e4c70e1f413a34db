// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// LookupIPFn is defined as variable to ease testing
var LookupIPFn = net.DefaultResolver.LookupIP

// ParseTarget resolves "host", "host:port" or "[v6]:port" into a destination
// address. defaultPort is used when raw carries no port.
func ParseTarget(ctx context.Context, raw string, defaultPort int, wantIPv6 bool) (netip.AddrPort, error) {
	if raw == "" {
		return netip.AddrPort{}, &InvalidTargetError{Err: errors.New("empty target")}
	}
	if !hasPort(raw) {
		raw = net.JoinHostPort(strings.Trim(raw, "[]"), strconv.Itoa(defaultPort))
	}

	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return netip.AddrPort{}, &InvalidTargetError{Err: fmt.Errorf("invalid address: %w", err)}
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return netip.AddrPort{}, &InvalidTargetError{Err: fmt.Errorf("invalid port: %v", portStr)}
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		ip, err = resolve(ctx, host, wantIPv6)
		if err != nil {
			return netip.AddrPort{}, err
		}
	}

	return netip.AddrPortFrom(ip.Unmap(), uint16(port)), nil
}

func resolve(ctx context.Context, host string, wantIPv6 bool) (netip.Addr, error) {
	network := "ip4"
	if wantIPv6 {
		network = "ip6"
	}
	ips, err := LookupIPFn(ctx, network, host)
	if err != nil {
		return netip.Addr{}, &DNSError{Host: host, Err: err}
	}
	for _, r := range ips {
		if addr, ok := UnmappedAddrFromSlice(r); ok {
			return addr, nil
		}
	}
	return netip.Addr{}, &DNSError{Host: host, Err: errors.New("no usable address")}
}

func hasPort(s string) bool {
	if strings.HasPrefix(s, "[") {
		return strings.Contains(s, "]:")
	}
	return strings.Count(s, ":") == 1
}
