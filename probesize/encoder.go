// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package probesize encodes a (connection, hop) pair into the length of an
// outgoing probe datagram. ICMP errors only quote the original IP and UDP
// headers, so the UDP length field is the only correlation handle that
// survives the round trip.
package probesize

import (
	"errors"
	"fmt"

	"github.com/DataDog/datadog-pathprobe/common"
)

// Overhead is the range of bytes the transport adds to an application payload
// before it reaches the socket.
type Overhead struct {
	Min int
	Max int
}

// Variance is the spread between the smallest and largest framing overhead
func (o Overhead) Variance() int {
	return o.Max - o.Min
}

// Encoder maps (connection, hop) pairs to padded payload lengths:
//
//	target = Base + hop*HopStride + (connID mod MaxConns)*ConnStride
type Encoder struct {
	Base        int
	HopStride   int
	ConnStride  int
	MaxConns    int
	MaxDatagram int
	Overhead    Overhead
}

// OversizeError is returned when a hop cannot be encoded without exceeding the
// datagram ceiling. The hop must be skipped; the length is never clamped.
type OversizeError struct {
	ConnID     uint32
	Hop        int
	WireLength int
	Max        int
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("probe for connection %d hop %d needs a %d byte datagram, above the %d byte ceiling",
		e.ConnID, e.Hop, e.WireLength, e.Max)
}

// ErrTruncate is returned by Pad when the payload is already longer than the target
var ErrTruncate = errors.New("payload longer than target length")

// Slot folds a connection id into the encoder's connection range
func (e *Encoder) Slot(connID uint32) int {
	if e.MaxConns <= 0 {
		return int(connID)
	}
	return int(connID % uint32(e.MaxConns))
}

// TargetLength returns the application payload length for the probe of the
// given connection and hop.
func (e *Encoder) TargetLength(connID uint32, hop int) (int, error) {
	return e.SlotLength(connID, e.Slot(connID), hop)
}

// SlotLength is TargetLength for a connection encoded in an explicitly
// assigned slot
func (e *Encoder) SlotLength(connID uint32, slot, hop int) (int, error) {
	if hop < 1 || hop > common.MaxTTL {
		return 0, fmt.Errorf("hop %d out of range [1, %d]", hop, common.MaxTTL)
	}
	target := e.Base + hop*e.HopStride + slot*e.ConnStride
	if worst := e.MaxWireLength(target); e.MaxDatagram > 0 && worst > e.MaxDatagram {
		return 0, &OversizeError{ConnID: connID, Hop: hop, WireLength: worst, Max: e.MaxDatagram}
	}
	return target, nil
}

// WireLength is the nominal UDP length (header included) a payload of the
// given size produces, assuming the smallest framing overhead. A quoted UDP
// length belongs to this payload when it falls in
// [WireLength, WireLength+Overhead.Variance()].
func (e *Encoder) WireLength(payloadLen int) int {
	return common.UDPHeaderLen + payloadLen + e.Overhead.Min
}

// MaxWireLength is the largest UDP length a payload of the given size can produce
func (e *Encoder) MaxWireLength(payloadLen int) int {
	return common.UDPHeaderLen + payloadLen + e.Overhead.Max
}

// Pad extends payload with zero bytes up to exactly target bytes. The padding
// is discarded by the receiver.
func (e *Encoder) Pad(payload []byte, target int) ([]byte, error) {
	if len(payload) > target {
		return nil, fmt.Errorf("%w: %d > %d", ErrTruncate, len(payload), target)
	}
	out := make([]byte, target)
	copy(out, payload)
	return out, nil
}
