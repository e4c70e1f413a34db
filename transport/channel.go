// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package transport

import (
	"context"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	recordTypeData  = 0x17
	recordHeaderLen = 11 // type, sequence, ciphertext length
	lengthPrefixLen = 2
	defaultBlock    = 16
)

var (
	errShortRecord = errors.New("record shorter than header")
	errRecordType  = errors.New("unexpected record type")
)

// Channel seals datagrams into authenticated records. The plaintext is padded
// to a block boundary, so the framing overhead varies with payload size.
type Channel struct {
	aead  cipher.AEAD
	w     PacketWriter
	block int
	seq   atomic.Uint64
}

// NewChannel creates a channel keyed with a 32 byte key writing records to w.
// w may be nil for a channel that only seals and opens.
func NewChannel(key []byte, w PacketWriter) (*Channel, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("creating channel cipher: %w", err)
	}
	return &Channel{aead: aead, w: w, block: defaultBlock}, nil
}

// Send seals b and hands the record to the packet writer with the same context
func (c *Channel) Send(ctx context.Context, b []byte, dst netip.AddrPort) error {
	if c.w == nil {
		return errors.New("channel has no packet writer")
	}
	rec, err := c.Seal(b)
	if err != nil {
		return err
	}
	_, err = c.w.WriteToContext(ctx, rec, dst)
	return err
}

// Seal frames payload into one record
func (c *Channel) Seal(payload []byte) ([]byte, error) {
	if len(payload) > 0xffff-lengthPrefixLen {
		return nil, fmt.Errorf("payload of %d bytes does not fit a record", len(payload))
	}
	plain := lengthPrefixLen + len(payload)
	if rem := plain % c.block; rem != 0 {
		plain += c.block - rem
	}
	pt := make([]byte, plain)
	binary.BigEndian.PutUint16(pt, uint16(len(payload)))
	copy(pt[lengthPrefixLen:], payload)

	seq := c.seq.Add(1)
	rec := make([]byte, recordHeaderLen, recordHeaderLen+plain+c.aead.Overhead())
	rec[0] = recordTypeData
	binary.BigEndian.PutUint64(rec[1:9], seq)
	binary.BigEndian.PutUint16(rec[9:11], uint16(plain+c.aead.Overhead()))

	return c.aead.Seal(rec, nonce(seq), pt, rec[:recordHeaderLen]), nil
}

// Open authenticates a record and returns its payload without padding
func (c *Channel) Open(rec []byte) ([]byte, error) {
	if len(rec) < recordHeaderLen {
		return nil, errShortRecord
	}
	if rec[0] != recordTypeData {
		return nil, fmt.Errorf("%w 0x%02x", errRecordType, rec[0])
	}
	seq := binary.BigEndian.Uint64(rec[1:9])
	if n := int(binary.BigEndian.Uint16(rec[9:11])); n != len(rec)-recordHeaderLen {
		return nil, fmt.Errorf("record length %d does not match header %d", len(rec)-recordHeaderLen, n)
	}
	pt, err := c.aead.Open(nil, nonce(seq), rec[recordHeaderLen:], rec[:recordHeaderLen])
	if err != nil {
		return nil, fmt.Errorf("opening record %d: %w", seq, err)
	}
	if len(pt) < lengthPrefixLen {
		return nil, errShortRecord
	}
	n := int(binary.BigEndian.Uint16(pt))
	if n > len(pt)-lengthPrefixLen {
		return nil, fmt.Errorf("record %d declares %d payload bytes, has %d", seq, n, len(pt)-lengthPrefixLen)
	}
	return pt[lengthPrefixLen : lengthPrefixLen+n], nil
}

func nonce(seq uint64) []byte {
	n := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(n[chacha20poly1305.NonceSize-8:], seq)
	return n
}
