// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package packets

import (
	"time"
)

const (
	defaultReadTimeout = 1000 * time.Millisecond
	minReadTimeout     = 100 * time.Millisecond
)

// getReadTimeout bounds a single blocking read. A zero deadline still yields a
// timeout so the reader wakes up to notice cancellation.
func getReadTimeout(deadline time.Time) time.Duration {
	if deadline.IsZero() {
		return defaultReadTimeout
	}

	timeout := time.Until(deadline)
	if timeout > defaultReadTimeout {
		return defaultReadTimeout
	}
	// timeouts are not that precise, don't make a syscall that is doomed to fail
	if timeout < minReadTimeout {
		return minReadTimeout
	}
	return timeout
}
