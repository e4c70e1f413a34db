// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build linux

package localaddr

import (
	"fmt"
	"math"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/DataDog/datadog-pathprobe/common"
)

var (
	routeGet    = netlink.RouteGet
	linkByIndex = netlink.LinkByIndex
)

func lookupOutboundRoute(dst netip.Addr) (Route, error) {
	routes, err := routeGet(net.IP(dst.Unmap().AsSlice()))
	if err != nil {
		return Route{}, fmt.Errorf("netlink route lookup failed: %w", err)
	}
	for _, r := range routes {
		ifIndex, err := toUint32IfIndex(r.LinkIndex)
		if err != nil {
			return Route{}, err
		}
		src, ok := common.UnmappedAddrFromSlice(r.Src)
		if !ok {
			continue
		}
		return Route{IfIndex: ifIndex, Src: src, MTU: r.MTU}, nil
	}
	return Route{}, fmt.Errorf("no valid route found for %s", dst)
}

func linkMTU(ifIndex uint32) (int, error) {
	link, err := linkByIndex(int(ifIndex))
	if err != nil {
		return 0, fmt.Errorf("netlink link %d lookup failed: %w", ifIndex, err)
	}
	return link.Attrs().MTU, nil
}

func toUint32IfIndex(idx int) (uint32, error) {
	switch {
	case idx < 0:
		return uint32(uint64(idx) & math.MaxUint32), nil
	case idx > math.MaxUint32:
		return 0, fmt.Errorf("link index %d overflows uint32", idx)
	default:
		return uint32(idx), nil
	}
}
