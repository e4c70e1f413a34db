// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package e2etests contains end-to-end tests for pathprobe. They build the
// CLI and HTTP server binaries, run sweeps against real targets and need the
// privileges to read ICMP errors. Run them with `go test -tags e2etest ./e2etests`.
package e2etests
