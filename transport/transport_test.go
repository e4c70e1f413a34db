// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package transport

import (
	"bytes"
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/datadog-pathprobe/probesize"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

type ctxKey struct{}

type recordingWriter struct {
	packets [][]byte
	dsts    []netip.AddrPort
	values  []interface{}
}

func (w *recordingWriter) WriteToContext(ctx context.Context, b []byte, dst netip.AddrPort) (int, error) {
	w.packets = append(w.packets, append([]byte(nil), b...))
	w.dsts = append(w.dsts, dst)
	w.values = append(w.values, ctx.Value(ctxKey{}))
	return len(b), nil
}

func TestChannelSealOpen(t *testing.T) {
	ch, err := NewChannel(testKey, nil)
	require.NoError(t, err)

	for _, n := range []int{0, 1, 13, 14, 15, 16, 300} {
		payload := bytes.Repeat([]byte{byte(n)}, n)
		rec, err := ch.Seal(payload)
		require.NoError(t, err)
		assert.Equal(t, 0, (len(rec)-recordHeaderLen-16)%defaultBlock, "plaintext must be block aligned")

		got, err := ch.Open(rec)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}

func TestChannelRejectsTampering(t *testing.T) {
	ch, err := NewChannel(testKey, nil)
	require.NoError(t, err)

	rec, err := ch.Seal([]byte("hop 7"))
	require.NoError(t, err)

	rec[len(rec)-1] ^= 0xff
	_, err = ch.Open(rec)
	assert.Error(t, err)

	_, err = ch.Open(rec[:5])
	assert.ErrorIs(t, err, errShortRecord)

	rec[0] = 0x15
	_, err = ch.Open(rec)
	assert.ErrorIs(t, err, errRecordType)
}

func TestNewChannelBadKey(t *testing.T) {
	_, err := NewChannel([]byte("short"), nil)
	assert.Error(t, err)
}

func TestChunkFraming(t *testing.T) {
	c := NewChunker(nil, 9)
	chunk, err := c.Frame([]byte("abcde"))
	require.NoError(t, err)
	assert.Len(t, chunk, 12)

	stream, payload, err := Unframe(chunk)
	require.NoError(t, err)
	assert.Equal(t, uint16(9), stream)
	assert.Equal(t, []byte("abcde"), payload)

	_, _, err = Unframe([]byte{0, 1})
	assert.Error(t, err)
	_, _, err = Unframe([]byte{0, 1, 0, 9, 1})
	assert.Error(t, err)
}

func TestStackPassesContextToWriter(t *testing.T) {
	w := &recordingWriter{}
	s, err := NewStack(testKey, w, 1)
	require.NoError(t, err)

	dst := netip.MustParseAddrPort("192.0.2.7:5000")
	ctx := context.WithValue(context.Background(), ctxKey{}, "hop-3")
	require.NoError(t, s.Send(ctx, []byte("probe"), dst))

	require.Len(t, w.packets, 1)
	assert.Equal(t, dst, w.dsts[0])
	assert.Equal(t, "hop-3", w.values[0])

	got, err := s.Open(w.packets[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("probe"), got)
}

func TestStackOverheadVariance(t *testing.T) {
	s, err := NewStack(testKey, nil, 1)
	require.NoError(t, err)

	o, err := probesize.MeasureOverhead(s, 0, 1400)
	require.NoError(t, err)
	assert.Equal(t, 35, o.Min)
	assert.Equal(t, 50, o.Max)
	assert.Less(t, o.Variance(), 24)
}
