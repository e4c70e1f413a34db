// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package probesize

import "fmt"

// Framer is the part of a transport that turns an application payload into
// the bytes handed to the socket.
type Framer interface {
	Seal(payload []byte) ([]byte, error)
}

// MeasureOverhead frames every payload size in [minLen, maxLen] and returns the
// observed overhead range.
func MeasureOverhead(f Framer, minLen, maxLen int) (Overhead, error) {
	if minLen < 0 || maxLen < minLen {
		return Overhead{}, fmt.Errorf("invalid sample range [%d, %d]", minLen, maxLen)
	}
	o := Overhead{Min: -1}
	for n := minLen; n <= maxLen; n++ {
		out, err := f.Seal(make([]byte, n))
		if err != nil {
			return Overhead{}, fmt.Errorf("sealing %d byte sample: %w", n, err)
		}
		d := len(out) - n
		if o.Min < 0 || d < o.Min {
			o.Min = d
		}
		if d > o.Max {
			o.Max = d
		}
	}
	return o, nil
}
