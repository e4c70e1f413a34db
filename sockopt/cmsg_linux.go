// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build linux

package sockopt

import (
	"encoding/binary"
	"errors"
	"net/netip"
	"strings"
	"unsafe"

	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

const ancillarySupported = true

// controlMessage builds the ancillary data for one datagram to dst. The cmsg
// level follows the destination family: IPv4-mapped destinations on a dual
// stack socket are routed through the IPv4 send path, which only reads
// IPPROTO_IP messages.
func controlMessage(dst netip.Addr, o Options) ([]byte, error) {
	if dst.Unmap().Is4() {
		var b []byte
		if o.TTL > 0 {
			b = appendIntCmsg(b, unix.IPPROTO_IP, unix.IP_TTL, o.TTL)
		}
		if o.TOS > 0 {
			b = appendIntCmsg(b, unix.IPPROTO_IP, unix.IP_TOS, o.TOS)
		}
		return b, nil
	}

	cm := &ipv6.ControlMessage{HopLimit: o.TTL, TrafficClass: o.TOS}
	b := cm.Marshal()
	if o.DontFragment {
		b = appendIntCmsg(b, unix.IPPROTO_IPV6, unix.IPV6_DONTFRAG, 1)
	}
	return b, nil
}

func appendIntCmsg(b []byte, level, typ, value int) []byte {
	off := len(b)
	b = append(b, make([]byte, unix.CmsgSpace(4))...)
	h := (*unix.Cmsghdr)(unsafe.Pointer(&b[off]))
	h.Level = int32(level)
	h.Type = int32(typ)
	h.SetLen(unix.CmsgLen(4))
	binary.NativeEndian.PutUint32(b[off+unix.CmsgLen(0):], uint32(value))
	return b
}

// setDontFragment turns on path MTU discovery in "do" mode so the kernel sets
// DF on every IPv4 datagram and refuses to fragment IPv6 ones.
func setDontFragment(fd uintptr, network string) error {
	ipErr := unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
	if strings.HasSuffix(network, "4") {
		return ipErr
	}
	v6Err := unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_MTU_DISCOVER, unix.IPV6_PMTUDISC_DO)
	if ipErr != nil && v6Err != nil {
		return errors.Join(ipErr, v6Err)
	}
	return nil
}

// setIPv4Fragmentation sets or clears DF on every IPv4 datagram of the socket
func setIPv4Fragmentation(fd uintptr, dontFragment bool) error {
	mode := unix.IP_PMTUDISC_DONT
	if dontFragment {
		mode = unix.IP_PMTUDISC_DO
	}
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, mode)
}

func isUnsupportedErrno(err error) bool {
	return errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.ENOPROTOOPT) ||
		errors.Is(err, unix.EOPNOTSUPP)
}
