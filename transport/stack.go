// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package transport

import (
	"context"
	"net/netip"
)

// Stack is a chunker over a sealed channel, the full path a probe takes from
// the scheduler to the socket.
type Stack struct {
	chunker *Chunker
	channel *Channel
}

// NewStack assembles a stack writing to w
func NewStack(key []byte, w PacketWriter, stream uint16) (*Stack, error) {
	ch, err := NewChannel(key, w)
	if err != nil {
		return nil, err
	}
	return &Stack{chunker: NewChunker(ch, stream), channel: ch}, nil
}

func (s *Stack) Send(ctx context.Context, b []byte, dst netip.AddrPort) error {
	return s.chunker.Send(ctx, b, dst)
}

// Seal applies every layer's framing to payload without sending it
func (s *Stack) Seal(payload []byte) ([]byte, error) {
	chunk, err := s.chunker.Frame(payload)
	if err != nil {
		return nil, err
	}
	return s.channel.Seal(chunk)
}

// Open reverses Seal
func (s *Stack) Open(rec []byte) ([]byte, error) {
	chunk, err := s.channel.Open(rec)
	if err != nil {
		return nil, err
	}
	_, payload, err := Unframe(chunk)
	return payload, err
}
