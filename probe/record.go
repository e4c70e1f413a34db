// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package probe

import (
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/DataDog/datadog-pathprobe/result"
)

// State is the lifecycle position of a probe
type State int32

const (
	// StateSent means the probe is registered and waiting for an answer
	StateSent State = iota
	// StateMatched means an ICMP error resolved the probe
	StateMatched
	// StateTimedOut means the probe was reaped without an answer
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateSent:
		return "sent"
	case StateMatched:
		return "matched"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Sink receives the hop result of a resolved probe
type Sink interface {
	Deliver(result.HopResult) bool
}

// Record is one outstanding probe
type Record struct {
	ConnID     uint32
	Hop        int
	Dst        netip.AddrPort
	WireLength int
	SentAt     time.Time

	state atomic.Int32
	sink  Sink
}

// NewRecord returns a record in StateSent whose result goes to sink
func NewRecord(connID uint32, hop int, dst netip.AddrPort, wireLength int, sink Sink) *Record {
	return &Record{
		ConnID:     connID,
		Hop:        hop,
		Dst:        dst,
		WireLength: wireLength,
		SentAt:     time.Now(),
		sink:       sink,
	}
}

// State returns the record's current state
func (r *Record) State() State {
	return State(r.state.Load())
}

// transition moves the record out of StateSent. Only the first transition wins.
func (r *Record) transition(to State) bool {
	return r.state.CompareAndSwap(int32(StateSent), int32(to))
}

// Match resolves the record with an answer drafted by the ICMP listener.
// The hop number is taken from the record.
func (r *Record) Match(h result.HopResult) bool {
	if !r.transition(StateMatched) {
		return false
	}
	h.Hop = r.Hop
	if r.sink == nil {
		return true
	}
	return r.sink.Deliver(h)
}

// expire resolves the record as a non-responding hop
func (r *Record) expire() bool {
	if !r.transition(StateTimedOut) {
		return false
	}
	if r.sink != nil {
		r.sink.Deliver(result.HopResult{Hop: r.Hop, Status: result.StatusTimedOut})
	}
	return true
}
