// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package measurement

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/datadog-pathprobe/result"
)

func answered(hop int, ip string) result.HopResult {
	a := netip.MustParseAddr(ip)
	rtt := float64(hop)
	return result.HopResult{Hop: hop, Responder: &a, RTTMs: &rtt, Status: result.StatusAnswered, ICMPType: 11}
}

func unreachable(hop int, ip string) result.HopResult {
	h := answered(hop, ip)
	h.Status = result.StatusUnreachable
	h.ICMPType = 3
	h.ICMPCode = 3
	return h
}

func timedOut(hop int) result.HopResult {
	return result.HopResult{Hop: hop, Status: result.StatusTimedOut}
}

func hopNumbers(t result.HopTable) []int {
	var out []int
	for _, h := range t {
		out = append(out, h.Hop)
	}
	return out
}

func isDone(a *Aggregator) bool {
	select {
	case <-a.Done():
		return true
	default:
		return false
	}
}

func TestOutOfOrderDelivery(t *testing.T) {
	a := New(5, 4)
	require.True(t, a.Deliver(answered(3, "10.0.0.3")))
	require.True(t, a.Deliver(answered(1, "10.0.0.1")))
	assert.Equal(t, []int{1, 3}, hopNumbers(a.Snapshot()))
	assert.False(t, isDone(a))

	require.True(t, a.Deliver(timedOut(4)))
	require.True(t, a.Deliver(answered(2, "10.0.0.2")))
	assert.True(t, isDone(a))
	assert.Equal(t, result.OutcomeExhausted, a.Outcome())
	assert.Equal(t, []int{1, 2, 3, 4}, hopNumbers(a.Snapshot()))
}

func TestDuplicateRejected(t *testing.T) {
	a := New(1, 30)
	require.True(t, a.Deliver(answered(2, "10.0.0.2")))
	assert.False(t, a.Deliver(timedOut(2)))
	assert.Equal(t, result.StatusAnswered, a.Snapshot()[0].Status)
}

func TestOutOfRangeRejected(t *testing.T) {
	a := New(1, 3)
	assert.False(t, a.Deliver(answered(0, "10.0.0.1")))
	assert.False(t, a.Deliver(answered(4, "10.0.0.1")))
	assert.Empty(t, a.Snapshot())
}

func TestTerminalTrimsHigherHops(t *testing.T) {
	a := New(9, 30)
	require.True(t, a.Deliver(answered(7, "10.0.0.7")))
	require.True(t, a.Deliver(unreachable(6, "192.0.2.1")))
	assert.Equal(t, 6, a.TerminalHop())
	assert.Equal(t, []int{6}, hopNumbers(a.Snapshot()))

	// a second terminal answer from further away is ignored
	assert.False(t, a.Deliver(unreachable(8, "192.0.2.1")))
	// a closer one replaces the terminal hop
	require.True(t, a.Deliver(unreachable(5, "192.0.2.1")))
	assert.Equal(t, 5, a.TerminalHop())
	assert.Equal(t, []int{5}, hopNumbers(a.Snapshot()))

	for hop := 1; hop <= 4; hop++ {
		assert.False(t, isDone(a))
		require.True(t, a.Deliver(answered(hop, "10.0.0.1")))
	}
	assert.True(t, isDone(a))
	assert.Equal(t, result.OutcomeReached, a.Outcome())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, hopNumbers(a.Snapshot()))
}

func TestFinish(t *testing.T) {
	t.Run("cancel before completion", func(t *testing.T) {
		a := New(1, 30)
		a.Deliver(answered(1, "10.0.0.1"))
		a.Deliver(timedOut(2))
		table, outcome := a.Finish(result.OutcomeCanceled)
		assert.Equal(t, result.OutcomeCanceled, outcome)
		assert.Equal(t, []int{1, 2}, hopNumbers(table))
		assert.True(t, isDone(a))
		assert.False(t, a.Deliver(answered(3, "10.0.0.3")))
	})
	t.Run("complete table keeps its outcome", func(t *testing.T) {
		a := New(1, 2)
		a.Deliver(answered(1, "10.0.0.1"))
		a.Deliver(unreachable(2, "192.0.2.1"))
		_, outcome := a.Finish(result.OutcomeDeadline)
		assert.Equal(t, result.OutcomeReached, outcome)
	})
	t.Run("finish twice", func(t *testing.T) {
		a := New(1, 2)
		a.Finish(result.OutcomeAborted)
		_, outcome := a.Finish(result.OutcomeCanceled)
		assert.Equal(t, result.OutcomeAborted, outcome)
	})
}

func TestOnHop(t *testing.T) {
	var got []int
	a := New(1, 3, WithOnHop(func(h result.HopResult) {
		got = append(got, h.Hop)
	}))
	a.Deliver(answered(2, "10.0.0.2"))
	a.Deliver(answered(2, "10.0.0.2"))
	a.Deliver(answered(1, "10.0.0.1"))
	assert.Equal(t, []int{2, 1}, got)
}

func TestConcurrentDelivery(t *testing.T) {
	a := New(1, 30)
	var wg sync.WaitGroup
	for hop := 30; hop >= 1; hop-- {
		wg.Add(1)
		go func(hop int) {
			defer wg.Done()
			a.Deliver(answered(hop, "10.0.0.1"))
			a.Snapshot()
		}(hop)
	}
	wg.Wait()
	assert.True(t, isDone(a))
	assert.Len(t, a.Snapshot(), 30)
}
