// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"
)

const (
	chunkHeaderLen = 4
	chunkAlign     = 4
)

// Chunker multiplexes streams over a Sender by prefixing a stream id and
// length and aligning each chunk to four bytes.
type Chunker struct {
	next   Sender
	stream uint16
}

// NewChunker returns a chunker writing stream's datagrams to next
func NewChunker(next Sender, stream uint16) *Chunker {
	return &Chunker{next: next, stream: stream}
}

// Send frames b as one chunk and passes it down with the caller's context
func (c *Chunker) Send(ctx context.Context, b []byte, dst netip.AddrPort) error {
	chunk, err := c.Frame(b)
	if err != nil {
		return err
	}
	return c.next.Send(ctx, chunk, dst)
}

// Frame builds the chunk for payload
func (c *Chunker) Frame(payload []byte) ([]byte, error) {
	if len(payload) > 0xffff {
		return nil, fmt.Errorf("payload of %d bytes does not fit a chunk", len(payload))
	}
	n := chunkHeaderLen + len(payload)
	if rem := n % chunkAlign; rem != 0 {
		n += chunkAlign - rem
	}
	out := make([]byte, n)
	binary.BigEndian.PutUint16(out[0:2], c.stream)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(payload)))
	copy(out[chunkHeaderLen:], payload)
	return out, nil
}

// Unframe returns the stream id and payload of a chunk
func Unframe(chunk []byte) (uint16, []byte, error) {
	if len(chunk) < chunkHeaderLen {
		return 0, nil, fmt.Errorf("chunk of %d bytes is shorter than its header", len(chunk))
	}
	stream := binary.BigEndian.Uint16(chunk[0:2])
	n := int(binary.BigEndian.Uint16(chunk[2:4]))
	if n > len(chunk)-chunkHeaderLen {
		return 0, nil, fmt.Errorf("chunk declares %d bytes, has %d", n, len(chunk)-chunkHeaderLen)
	}
	return stream, chunk[chunkHeaderLen : chunkHeaderLen+n], nil
}
