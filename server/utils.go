// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package server

import (
	"fmt"
	"net/url"
	"strconv"
)

// queryReader reads typed query parameters and keeps the first malformed one
type queryReader struct {
	values url.Values
	err    error
}

func (q *queryReader) intIn(key string, def, lo, hi int) int {
	raw := q.values.Get(key)
	if raw == "" || q.err != nil {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		q.err = fmt.Errorf("invalid %s: %q", key, raw)
		return def
	}
	return v
}

func (q *queryReader) bool(key string) bool {
	raw := q.values.Get(key)
	if raw == "" || q.err != nil {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		q.err = fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v
}
