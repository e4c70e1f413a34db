// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package probesize

import (
	"fmt"
	"sort"
)

// StrideError reports a stride configuration that can alias two probes
type StrideError struct {
	Reason string
}

func (e *StrideError) Error() string {
	return "invalid stride configuration: " + e.Reason
}

// Pair identifies one probe in the encoding space
type Pair struct {
	Slot int
	Hop  int
}

// Collision is two pairs whose wire lengths are indistinguishable once the
// framing variance is taken into account.
type Collision struct {
	A, B     Pair
	LengthA  int
	LengthB  int
	Distance int
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// Collisions lists every pair of (slot, hop) combinations in [0, conns) x [1, hops]
// whose encoded lengths are within variance bytes of each other. With variance
// zero it lists exact duplicates.
func (e *Encoder) Collisions(conns, hops, variance int) []Collision {
	type entry struct {
		pair   Pair
		length int
	}
	entries := make([]entry, 0, conns*hops)
	for c := 0; c < conns; c++ {
		for h := 1; h <= hops; h++ {
			entries = append(entries, entry{
				pair:   Pair{Slot: c, Hop: h},
				length: e.Base + h*e.HopStride + c*e.ConnStride,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].length < entries[j].length })

	var out []Collision
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			d := entries[j].length - entries[i].length
			if d > variance {
				break
			}
			out = append(out, Collision{
				A:        entries[i].pair,
				B:        entries[j].pair,
				LengthA:  entries[i].length,
				LengthB:  entries[j].length,
				Distance: d,
			})
		}
	}
	return out
}

// Validate checks the strides against the operating range they will serve:
// the hop stride must exceed the overhead variance, the strides must be
// coprime, and every (slot, hop) pair must map to a distinct length.
func (e *Encoder) Validate(maxHops int) error {
	if e.HopStride <= 0 || e.ConnStride <= 0 {
		return &StrideError{Reason: fmt.Sprintf("strides must be positive (hop %d, conn %d)", e.HopStride, e.ConnStride)}
	}
	if v := e.Overhead.Variance(); e.HopStride <= v {
		return &StrideError{Reason: fmt.Sprintf("hop stride %d does not exceed framing overhead variance %d", e.HopStride, v)}
	}
	if g := gcd(e.HopStride, e.ConnStride); g != 1 {
		return &StrideError{Reason: fmt.Sprintf("hop stride %d and connection stride %d share factor %d", e.HopStride, e.ConnStride, g)}
	}
	conns := e.MaxConns
	if conns <= 0 {
		conns = 1
	}
	if c := e.Collisions(conns, maxHops, 0); len(c) > 0 {
		return &StrideError{Reason: fmt.Sprintf("slot %d hop %d and slot %d hop %d both encode to %d bytes",
			c[0].A.Slot, c[0].A.Hop, c[0].B.Slot, c[0].B.Hop, c[0].LengthA)}
	}
	return nil
}

// SlotsDisjoint reports whether probes of slots a and b towards the same
// destination stay more than variance bytes apart for every pair of hops in
// [1, hops]. A slot is never disjoint from itself.
func (e *Encoder) SlotsDisjoint(a, b, hops, variance int) bool {
	base := (a - b) * e.ConnStride
	for dh := -(hops - 1); dh <= hops-1; dh++ {
		d := base + dh*e.HopStride
		if d < 0 {
			d = -d
		}
		if d <= variance {
			return false
		}
	}
	return true
}

// CheckCeiling returns an OversizeError for the largest probe of the range
// when it does not fit under the datagram ceiling. Such hops are skipped at
// send time.
func (e *Encoder) CheckCeiling(maxHops int) error {
	conns := e.MaxConns
	if conns <= 0 {
		conns = 1
	}
	_, err := e.TargetLength(uint32(conns-1), maxHops)
	return err
}
