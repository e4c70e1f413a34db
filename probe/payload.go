// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package probe

import (
	"encoding/binary"
	"errors"
	"time"
)

// PayloadHeaderLen is the size of the header at the start of every probe payload.
// The rest of the payload is padding.
const PayloadHeaderLen = 18

var payloadMagic = [4]byte{'P', 'P', 'R', 'B'}

var errNotProbe = errors.New("not a probe payload")

// Payload identifies a probe to the peer that receives it
type Payload struct {
	ConnID uint32
	Hop    int
	SentAt time.Time
}

// Marshal returns the payload header
func (p Payload) Marshal() []byte {
	b := make([]byte, PayloadHeaderLen)
	copy(b, payloadMagic[:])
	binary.BigEndian.PutUint32(b[4:8], p.ConnID)
	binary.BigEndian.PutUint16(b[8:10], uint16(p.Hop))
	binary.BigEndian.PutUint64(b[10:18], uint64(p.SentAt.UnixNano()))
	return b
}

// DecodePayload recognises a probe payload so the receiving side can drop it
func DecodePayload(b []byte) (Payload, error) {
	if len(b) < PayloadHeaderLen || [4]byte(b[:4]) != payloadMagic {
		return Payload{}, errNotProbe
	}
	return Payload{
		ConnID: binary.BigEndian.Uint32(b[4:8]),
		Hop:    int(binary.BigEndian.Uint16(b[8:10])),
		SentAt: time.Unix(0, int64(binary.BigEndian.Uint64(b[10:18]))),
	}, nil
}

// IsProbe reports whether b carries a probe payload
func IsProbe(b []byte) bool {
	_, err := DecodePayload(b)
	return err == nil
}
