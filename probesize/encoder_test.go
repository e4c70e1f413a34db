// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package probesize

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEncoder() *Encoder {
	return &Encoder{
		Base:        64,
		HopStride:   50,
		ConnStride:  97,
		MaxConns:    10,
		MaxDatagram: 2600,
		Overhead:    Overhead{Min: 29, Max: 44},
	}
}

func TestTargetLength(t *testing.T) {
	e := testEncoder()

	tests := []struct {
		name     string
		connID   uint32
		hop      int
		expected int
	}{
		{name: "first hop first slot", connID: 0, hop: 1, expected: 114},
		{name: "hop stride", connID: 0, hop: 2, expected: 164},
		{name: "conn stride", connID: 1, hop: 1, expected: 211},
		{name: "folded connection id", connID: 13, hop: 1, expected: 64 + 50 + 3*97},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.TargetLength(tt.connID, tt.hop)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestTargetLengthOversize(t *testing.T) {
	e := testEncoder()
	e.MaxDatagram = 1400

	_, err := e.TargetLength(9, 30)
	var oversize *OversizeError
	require.True(t, errors.As(err, &oversize))
	assert.Equal(t, 30, oversize.Hop)
	assert.Equal(t, uint32(9), oversize.ConnID)
	assert.Equal(t, 8+64+30*50+9*97+44, oversize.WireLength)
	assert.Equal(t, 1400, oversize.Max)

	// lower hops of the same connection still fit
	_, err = e.TargetLength(9, 1)
	assert.NoError(t, err)
}

func TestTargetLengthBadHop(t *testing.T) {
	e := testEncoder()
	_, err := e.TargetLength(0, 0)
	assert.Error(t, err)
	_, err = e.TargetLength(0, 256)
	assert.Error(t, err)
}

func TestWireLengthWindow(t *testing.T) {
	e := testEncoder()
	assert.Equal(t, 8+100+29, e.WireLength(100))
	assert.Equal(t, 8+100+44, e.MaxWireLength(100))
	assert.Equal(t, 15, e.Overhead.Variance())
}

func TestPad(t *testing.T) {
	e := testEncoder()

	out, err := e.Pad([]byte("probe"), 12)
	require.NoError(t, err)
	assert.Len(t, out, 12)
	assert.True(t, bytes.HasPrefix(out, []byte("probe")))

	_, err = e.Pad([]byte("too long for target"), 4)
	assert.ErrorIs(t, err, ErrTruncate)
}

// Every (slot, hop) pair maps to a distinct length when the hop stride exceeds
// the variance and the strides are coprime.
func TestUniqueness(t *testing.T) {
	for _, strides := range [][2]int{{50, 97}, {24, 7}, {17, 5}} {
		e := &Encoder{Base: 64, HopStride: strides[0], ConnStride: strides[1]}
		conns := strides[0]
		seen := map[int]Pair{}
		for c := 0; c < conns; c++ {
			for h := 1; h <= 30; h++ {
				l := e.Base + h*e.HopStride + c*e.ConnStride
				prev, dup := seen[l]
				require.False(t, dup, "strides %v: %v and %v share length %d", strides, prev, Pair{c, h}, l)
				seen[l] = Pair{c, h}
			}
		}
		assert.Empty(t, e.Collisions(conns, 30, 0))
	}
}

func TestBoundary(t *testing.T) {
	e := testEncoder()

	require.NoError(t, e.Validate(30))
	assert.Empty(t, e.Collisions(10, 30, 0))

	for c := uint32(0); c < 10; c++ {
		for h := 1; h <= 30; h++ {
			target, err := e.TargetLength(c, h)
			require.NoError(t, err)
			assert.LessOrEqual(t, e.MaxWireLength(target), e.MaxDatagram)
		}
	}
}

func TestUndersizedHopStrideCollides(t *testing.T) {
	e := &Encoder{Base: 64, HopStride: 3, ConnStride: 97, MaxConns: 1, Overhead: Overhead{Min: 10, Max: 40}}

	collisions := e.Collisions(1, 30, 30)
	require.NotEmpty(t, collisions)

	adjacent := false
	for _, c := range collisions {
		if c.A.Slot == c.B.Slot && (c.B.Hop-c.A.Hop == 1 || c.A.Hop-c.B.Hop == 1) {
			adjacent = true
			break
		}
	}
	assert.True(t, adjacent, "expected adjacent hops to collide")

	var strideErr *StrideError
	assert.ErrorAs(t, e.Validate(30), &strideErr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		encoder Encoder
		maxHops int
		wantErr string
	}{
		{
			name:    "valid defaults",
			encoder: Encoder{Base: 64, HopStride: 24, ConnStride: 7, MaxConns: 24, MaxDatagram: 1400, Overhead: Overhead{Min: 29, Max: 44}},
			maxHops: 30,
		},
		{
			name:    "zero stride",
			encoder: Encoder{Base: 64, HopStride: 0, ConnStride: 7},
			maxHops: 30,
			wantErr: "strides must be positive",
		},
		{
			name:    "stride below variance",
			encoder: Encoder{Base: 64, HopStride: 15, ConnStride: 7, Overhead: Overhead{Min: 29, Max: 44}},
			maxHops: 30,
			wantErr: "does not exceed framing overhead variance 15",
		},
		{
			name:    "common factor",
			encoder: Encoder{Base: 64, HopStride: 24, ConnStride: 36},
			maxHops: 30,
			wantErr: "share factor 12",
		},
		{
			name:    "too many connections for coprime strides",
			encoder: Encoder{Base: 64, HopStride: 24, ConnStride: 7, MaxConns: 64},
			maxHops: 30,
			wantErr: "both encode to",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.encoder.Validate(tt.maxHops)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCheckCeiling(t *testing.T) {
	e := Encoder{Base: 64, HopStride: 24, ConnStride: 7, MaxConns: 24, MaxDatagram: 512}
	require.NoError(t, e.Validate(30), "the ceiling does not invalidate the strides")

	err := e.CheckCeiling(30)
	var oversize *OversizeError
	require.ErrorAs(t, err, &oversize)
	assert.Equal(t, 30, oversize.Hop)
	assert.Equal(t, uint32(23), oversize.ConnID)
	assert.Contains(t, err.Error(), "above the 512 byte ceiling")

	e.MaxDatagram = 1400
	assert.NoError(t, e.CheckCeiling(30))
}

type blockFramer struct {
	header, tag, block int
}

func (f blockFramer) Seal(p []byte) ([]byte, error) {
	n := len(p)
	if rem := n % f.block; rem != 0 {
		n += f.block - rem
	}
	return make([]byte, f.header+n+f.tag), nil
}

func TestMeasureOverhead(t *testing.T) {
	o, err := MeasureOverhead(blockFramer{header: 13, tag: 16, block: 16}, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, Overhead{Min: 29, Max: 44}, o)

	_, err = MeasureOverhead(blockFramer{block: 1}, 10, 5)
	assert.Error(t, err)
}

func TestSlotsDisjoint(t *testing.T) {
	tests := []struct {
		name     string
		encoder  Encoder
		a, b     int
		variance int
		want     bool
	}{
		{
			name:     "same slot",
			encoder:  Encoder{HopStride: 40, ConnStride: 17},
			a:        3,
			b:        3,
			variance: 0,
			want:     false,
		},
		{
			name:     "default strides overlap within the variance",
			encoder:  Encoder{HopStride: 24, ConnStride: 7},
			a:        0,
			b:        1,
			variance: 15,
			want:     false,
		},
		{
			name:     "interleaved slot clears the variance",
			encoder:  Encoder{HopStride: 40, ConnStride: 17},
			a:        0,
			b:        1,
			variance: 15,
			want:     true,
		},
		{
			name:     "second neighbour lands near the next hop",
			encoder:  Encoder{HopStride: 40, ConnStride: 17},
			a:        2,
			b:        0,
			variance: 15,
			want:     false,
		},
		{
			name:     "exact lengths only",
			encoder:  Encoder{HopStride: 24, ConnStride: 7},
			a:        0,
			b:        1,
			variance: 0,
			want:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.encoder.SlotsDisjoint(tt.a, tt.b, 30, tt.variance))
			assert.Equal(t, tt.want, tt.encoder.SlotsDisjoint(tt.b, tt.a, 30, tt.variance))
		})
	}
}

func TestSlotLength(t *testing.T) {
	e := testEncoder()
	byConn, err := e.TargetLength(3, 5)
	require.NoError(t, err)
	bySlot, err := e.SlotLength(3, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, byConn, bySlot)

	other, err := e.SlotLength(3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, byConn+e.ConnStride, other)
}
