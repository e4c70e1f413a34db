// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package packets

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/log"
)

// icmpSource reads ICMP errors through a raw x/net/icmp socket
type icmpSource struct {
	conn     *icmp.PacketConn
	family   gopacket.LayerType
	deadline time.Time
}

var _ Source = &icmpSource{}

// NewICMPSource opens a raw ICMP socket for family (layers.LayerTypeIPv4 or
// layers.LayerTypeIPv6). Opening it needs CAP_NET_RAW; the returned error then
// satisfies errors.Is(err, os.ErrPermission).
func NewICMPSource(family gopacket.LayerType) (Source, error) {
	var network, address string
	switch family {
	case layers.LayerTypeIPv4:
		network, address = "ip4:icmp", "0.0.0.0"
	case layers.LayerTypeIPv6:
		network, address = "ip6:ipv6-icmp", "::"
	default:
		return nil, fmt.Errorf("NewICMPSource: unsupported family %s", family)
	}

	conn, err := icmp.ListenPacket(network, address)
	if err != nil {
		return nil, fmt.Errorf("NewICMPSource failed to listen on %s: %w", network, err)
	}
	s := &icmpSource{conn: conn, family: family}
	if err := s.installFilter(); err != nil {
		// not every platform can filter in the kernel, parsing drops the rest
		log.Debugf("ICMP %s kernel filter unavailable: %s", family, err)
	}
	return s, nil
}

// installFilter restricts the socket to the error types a probe can trigger
func (s *icmpSource) installFilter() error {
	if p := s.conn.IPv4PacketConn(); p != nil {
		return p.SetICMPFilter(errorFilter4())
	}
	if p := s.conn.IPv6PacketConn(); p != nil {
		return p.SetICMPFilter(errorFilter6())
	}
	return nil
}

func errorFilter4() *ipv4.ICMPFilter {
	var f ipv4.ICMPFilter
	f.SetAll(true)
	f.Accept(ipv4.ICMPTypeTimeExceeded)
	f.Accept(ipv4.ICMPTypeDestinationUnreachable)
	return &f
}

func errorFilter6() *ipv6.ICMPFilter {
	var f ipv6.ICMPFilter
	f.SetAll(true)
	f.Accept(ipv6.ICMPTypeTimeExceeded)
	f.Accept(ipv6.ICMPTypeDestinationUnreachable)
	f.Accept(ipv6.ICMPTypePacketTooBig)
	return &f
}

// SetReadDeadline sets the deadline for when a Read() call must finish
func (s *icmpSource) SetReadDeadline(t time.Time) error {
	s.deadline = t
	return nil
}

// Read reads one ICMP message. Each read blocks at most getReadTimeout so a
// caller without a deadline still regains control regularly.
func (s *icmpSource) Read(buf []byte) (int, netip.Addr, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(getReadTimeout(s.deadline))); err != nil {
		return 0, netip.Addr{}, fmt.Errorf("icmpSource failed to set read deadline: %w", err)
	}
	n, from, err := s.conn.ReadFrom(buf)
	if err != nil {
		return 0, netip.Addr{}, err
	}
	return n, peerAddr(from), nil
}

func peerAddr(from net.Addr) netip.Addr {
	var ip net.IP
	var zone string
	switch a := from.(type) {
	case *net.IPAddr:
		ip, zone = a.IP, a.Zone
	case *net.UDPAddr:
		ip, zone = a.IP, a.Zone
	default:
		return netip.Addr{}
	}
	addr, ok := common.UnmappedAddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	if zone != "" && addr.Is6() {
		addr = addr.WithZone(zone)
	}
	return addr
}

// Family returns the IP family the source reads
func (s *icmpSource) Family() gopacket.LayerType {
	return s.family
}

// Close closes the socket
func (s *icmpSource) Close() error {
	return s.conn.Close()
}
