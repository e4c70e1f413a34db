// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package icmp matches ICMP errors quoting probe datagrams back to the
// probes that caused them
package icmp

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/result"
)

// Kind groups ICMP errors by what they say about the path
type Kind string

const (
	KindTimeExceeded Kind = "time_exceeded"
	KindUnreachable  Kind = "unreachable"
	KindPacketTooBig Kind = "packet_too_big"
)

// Reply is an ICMP error reduced to what matching needs: the destination and
// UDP length of the quoted datagram
type Reply struct {
	Kind       Kind
	Type       uint8
	Code       uint8
	Src        netip.AddrPort
	Dst        netip.AddrPort
	UDPLength  int
	NextHopMTU int
}

// Status is the hop status the reply resolves a probe to
func (r Reply) Status() result.Status {
	if r.Kind == KindTimeExceeded {
		return result.StatusAnswered
	}
	return result.StatusUnreachable
}

// ParseReply decodes an ICMP message, starting at the ICMP header, read from
// a raw socket of the given family. Well-formed messages that cannot answer
// a probe return a common.MismatchError; anything else that fails is malformed.
func ParseReply(family gopacket.LayerType, buf []byte) (Reply, error) {
	switch family {
	case layers.LayerTypeIPv4:
		return parseICMPv4(buf)
	case layers.LayerTypeIPv6:
		return parseICMPv6(buf)
	default:
		return Reply{}, fmt.Errorf("unsupported family %s", family)
	}
}

func parseICMPv4(buf []byte) (Reply, error) {
	var icmp4 layers.ICMPv4
	if err := icmp4.DecodeFromBytes(buf, gopacket.NilDecodeFeedback); err != nil {
		return Reply{}, fmt.Errorf("failed to decode ICMPv4: %w", err)
	}
	reply := Reply{Type: icmp4.TypeCode.Type(), Code: icmp4.TypeCode.Code()}
	switch reply.Type {
	case layers.ICMPv4TypeTimeExceeded:
		if reply.Code != layers.ICMPv4CodeTTLExceeded {
			return Reply{}, common.MismatchError(fmt.Sprintf("ICMPv4 time exceeded code %d", reply.Code))
		}
		reply.Kind = KindTimeExceeded
	case layers.ICMPv4TypeDestinationUnreachable:
		reply.Kind = KindUnreachable
		if reply.Code == layers.ICMPv4CodeFragmentationNeeded {
			reply.Kind = KindPacketTooBig
			// RFC 1191: the next-hop MTU sits in the low half of the unused word
			reply.NextHopMTU = int(icmp4.Seq)
		}
	default:
		return Reply{}, common.MismatchError(fmt.Sprintf("ICMPv4 type %d is not a probe error", reply.Type))
	}

	var ip4 layers.IPv4
	if err := ip4.DecodeFromBytes(icmp4.Payload, gopacket.NilDecodeFeedback); err != nil {
		return Reply{}, fmt.Errorf("failed to decode quoted IPv4 header: %w", err)
	}
	if ip4.Protocol != layers.IPProtocolUDP {
		return Reply{}, common.MismatchError(fmt.Sprintf("quoted protocol %s", ip4.Protocol))
	}
	return quotedUDP(reply, ip4.SrcIP, ip4.DstIP, ip4.Payload, int(ip4.Length)-int(ip4.IHL)*4)
}

func parseICMPv6(buf []byte) (Reply, error) {
	var icmp6 layers.ICMPv6
	if err := icmp6.DecodeFromBytes(buf, gopacket.NilDecodeFeedback); err != nil {
		return Reply{}, fmt.Errorf("failed to decode ICMPv6: %w", err)
	}
	reply := Reply{Type: icmp6.TypeCode.Type(), Code: icmp6.TypeCode.Code()}
	switch reply.Type {
	case layers.ICMPv6TypeTimeExceeded:
		if reply.Code != layers.ICMPv6CodeHopLimitExceeded {
			return Reply{}, common.MismatchError(fmt.Sprintf("ICMPv6 time exceeded code %d", reply.Code))
		}
		reply.Kind = KindTimeExceeded
	case layers.ICMPv6TypeDestinationUnreachable:
		reply.Kind = KindUnreachable
	case layers.ICMPv6TypePacketTooBig:
		reply.Kind = KindPacketTooBig
	default:
		return Reply{}, common.MismatchError(fmt.Sprintf("ICMPv6 type %d is not a probe error", reply.Type))
	}

	// the first word after the checksum is the MTU for packet too big, unused otherwise
	if len(icmp6.Payload) < 4 {
		return Reply{}, fmt.Errorf("ICMPv6 message too short: %d bytes", len(buf))
	}
	if reply.Kind == KindPacketTooBig {
		reply.NextHopMTU = int(binary.BigEndian.Uint32(icmp6.Payload[:4]))
	}

	var ip6 layers.IPv6
	if err := ip6.DecodeFromBytes(icmp6.Payload[4:], gopacket.NilDecodeFeedback); err != nil {
		return Reply{}, fmt.Errorf("failed to decode quoted IPv6 header: %w", err)
	}
	if ip6.NextHeader != layers.IPProtocolUDP {
		return Reply{}, common.MismatchError(fmt.Sprintf("quoted next header %s", ip6.NextHeader))
	}
	return quotedUDP(reply, ip6.SrcIP, ip6.DstIP, ip6.Payload, int(ip6.Length))
}

// quotedUDP fills in the original addresses and UDP length. ipPayloadLen is
// the UDP length implied by the quoted IP header, used for jumbograms.
func quotedUDP(reply Reply, src, dst []byte, payload []byte, ipPayloadLen int) (Reply, error) {
	var udp layers.UDP
	if err := udp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return Reply{}, fmt.Errorf("failed to decode quoted UDP header: %w", err)
	}
	srcAddr, ok := common.UnmappedAddrFromSlice(src)
	if !ok {
		return Reply{}, fmt.Errorf("invalid quoted source address")
	}
	dstAddr, ok := common.UnmappedAddrFromSlice(dst)
	if !ok {
		return Reply{}, fmt.Errorf("invalid quoted destination address")
	}
	reply.Src = netip.AddrPortFrom(srcAddr, uint16(udp.SrcPort))
	reply.Dst = netip.AddrPortFrom(dstAddr, uint16(udp.DstPort))
	reply.UDPLength = int(udp.Length)
	if reply.UDPLength == 0 {
		reply.UDPLength = ipPayloadLen
	}
	return reply, nil
}
