// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.ProbesSent.Inc()
	m.ProbesMatched.WithLabelValues("time_exceeded").Add(2)
	m.ICMPMalformed.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProbesSent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProbesMatched.WithLabelValues("time_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ICMPMalformed))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["pathprobe_probes_sent_total"])
	assert.True(t, names["pathprobe_icmp_malformed_total"])
}

func TestSeparateRegistriesDoNotConflict(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetricsWithRegistry(prometheus.NewRegistry())
		NewMetricsWithRegistry(prometheus.NewRegistry())
	})
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
