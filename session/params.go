// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package session

import (
	"time"
)

// Params describes one measurement request
type Params struct {
	Hostname string
	// Port is the first remote port; connection i probes Port+i
	Port                  int
	Connections           int
	WantV6                bool
	Timeout               time.Duration
	ReverseDns            bool
	CollectSourcePublicIP bool
}
