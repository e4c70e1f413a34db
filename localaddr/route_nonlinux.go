// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build !linux

package localaddr

import (
	"errors"
	"net/netip"
)

var errNoNetlink = errors.New("netlink route lookup unsupported on this platform")

func lookupOutboundRoute(netip.Addr) (Route, error) {
	return Route{}, errNoNetlink
}

func linkMTU(uint32) (int, error) {
	return 0, errNoNetlink
}
