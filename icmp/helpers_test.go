// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package icmp

import (
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var testSrc = netip.MustParseAddrPort("192.0.2.1:40000")

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, ls...)
	require.NoError(t, err)
	return buf.Bytes()
}

// quote4 returns the IPv4 header and first 8 bytes of a UDP datagram of
// udpLen bytes, the way a router quotes it
func quote4(t *testing.T, src, dst netip.AddrPort, udpLen int, proto layers.IPProtocol) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      1,
		Flags:    layers.IPv4DontFragment,
		Protocol: proto,
		SrcIP:    src.Addr().AsSlice(),
		DstIP:    dst.Addr().AsSlice(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(src.Port()), DstPort: layers.UDPPort(dst.Port())}
	pkt := serialize(t, ip, udp, gopacket.Payload(make([]byte, udpLen-8)))
	return pkt[:28]
}

func icmp4(t *testing.T, typ, code uint8, seq uint16, quote []byte) []byte {
	t.Helper()
	return serialize(t, &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(typ, code), Seq: seq}, gopacket.Payload(quote))
}

// timeExceeded4 is a router's answer to a UDP probe of udpLen bytes
func timeExceeded4(t *testing.T, dst netip.AddrPort, udpLen int) []byte {
	return icmp4(t, layers.ICMPv4TypeTimeExceeded, layers.ICMPv4CodeTTLExceeded, 0, quote4(t, testSrc, dst, udpLen, layers.IPProtocolUDP))
}

func portUnreachable4(t *testing.T, dst netip.AddrPort, udpLen int) []byte {
	return icmp4(t, layers.ICMPv4TypeDestinationUnreachable, layers.ICMPv4CodePort, 0, quote4(t, testSrc, dst, udpLen, layers.IPProtocolUDP))
}

// icmp6 builds an ICMPv6 error whose 4 byte word after the checksum is word
// and which quotes a whole UDP datagram of udpLen bytes
func icmp6(t *testing.T, typ, code uint8, word uint32, src, dst netip.AddrPort, udpLen int, next layers.IPProtocol) []byte {
	t.Helper()
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   1,
		NextHeader: next,
		SrcIP:      src.Addr().AsSlice(),
		DstIP:      dst.Addr().AsSlice(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(src.Port()), DstPort: layers.UDPPort(dst.Port())}
	inner := serialize(t, ip, udp, gopacket.Payload(make([]byte, udpLen-8)))

	body := []byte{byte(word >> 24), byte(word >> 16), byte(word >> 8), byte(word)}
	body = append(body, inner...)
	return serialize(t, &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(typ, code)}, gopacket.Payload(body))
}
