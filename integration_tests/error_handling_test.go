// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build integration

package integration_tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/probe"
	"github.com/DataDog/datadog-pathprobe/result"
	"github.com/DataDog/datadog-pathprobe/session"
)

func TestInvalidHostname(t *testing.T) {
	h := newHarness(t)
	results, err := h.svc.Run(context.Background(), session.Params{
		Hostname: "this-hostname-definitely-does-not-exist-12345.invalid",
		Timeout:  testTimeout,
	})
	assert.Nil(t, results)
	var dnsErr *common.DNSError
	require.ErrorAs(t, err, &dnsErr)
	assert.Equal(t, probe.ErrCodeDNS, probe.ClassifyError(err).Code)
}

func TestTooManyConnections(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Run(context.Background(), session.Params{
		Hostname:    "127.0.0.1",
		Connections: 1000,
	})
	var targetErr *common.InvalidTargetError
	require.ErrorAs(t, err, &targetErr)
}

// TestSilentPathTimesOut sweeps a documentation address nobody answers for
func TestSilentPathTimesOut(t *testing.T) {
	h := newHarness(t)
	results, err := h.svc.Run(context.Background(), session.Params{
		Hostname: "198.51.100.2",
		Timeout:  1500 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, results.Runs, 1)
	run := results.Runs[0]
	assert.Contains(t, []result.Outcome{result.OutcomeDeadline, result.OutcomeExhausted}, run.Outcome)
	for _, hop := range run.Hops {
		if hop.Responder == nil {
			assert.Equal(t, result.StatusTimedOut, hop.Status)
		}
	}
}
