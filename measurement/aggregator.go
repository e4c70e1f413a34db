// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package measurement turns matched and timed-out probes of one connection
// into an ordered hop table
package measurement

import (
	"sort"
	"sync"

	"github.com/DataDog/datadog-pathprobe/log"
	"github.com/DataDog/datadog-pathprobe/result"
)

// Aggregator collects the hop results of a single connection. Results may
// arrive in any order. It is safe for concurrent use.
type Aggregator struct {
	connID  uint32
	maxHops int
	onHop   func(result.HopResult)

	mu       sync.Mutex
	hops     map[int]result.HopResult
	terminal int
	outcome  result.Outcome
	done     chan struct{}
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithOnHop registers fn to be called with every accepted hop, outside the
// aggregator lock
func WithOnHop(fn func(result.HopResult)) Option {
	return func(a *Aggregator) {
		a.onHop = fn
	}
}

// New returns an aggregator expecting hops 1..maxHops
func New(connID uint32, maxHops int, opts ...Option) *Aggregator {
	a := &Aggregator{
		connID:  connID,
		maxHops: maxHops,
		hops:    make(map[int]result.HopResult, maxHops),
		outcome: result.OutcomeRunning,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ConnID returns the connection this aggregator belongs to
func (a *Aggregator) ConnID() uint32 {
	return a.connID
}

// Deliver records h. It returns false when h is rejected: the hop is out of
// range, already resolved, beyond the terminal hop, or the aggregator has
// already finished.
func (a *Aggregator) Deliver(h result.HopResult) bool {
	a.mu.Lock()
	if !a.acceptLocked(h) {
		a.mu.Unlock()
		return false
	}
	a.hops[h.Hop] = h
	if h.Terminal() && (a.terminal == 0 || h.Hop < a.terminal) {
		a.terminal = h.Hop
		for hop := range a.hops {
			if hop > h.Hop {
				delete(a.hops, hop)
			}
		}
	}
	a.checkCompleteLocked()
	a.mu.Unlock()

	if a.onHop != nil {
		a.onHop(h)
	}
	return true
}

func (a *Aggregator) acceptLocked(h result.HopResult) bool {
	if a.outcome != result.OutcomeRunning {
		return false
	}
	if h.Hop < 1 || h.Hop > a.maxHops {
		log.Debugf("connection %d: dropping hop %d outside [1, %d]", a.connID, h.Hop, a.maxHops)
		return false
	}
	if a.terminal != 0 && h.Hop > a.terminal {
		return false
	}
	_, seen := a.hops[h.Hop]
	return !seen
}

// checkCompleteLocked closes done once the path is fully resolved: every hop
// up to the terminal hop, or every hop up to maxHops.
func (a *Aggregator) checkCompleteLocked() {
	last := a.maxHops
	outcome := result.OutcomeExhausted
	if a.terminal != 0 {
		last = a.terminal
		outcome = result.OutcomeReached
	}
	for hop := 1; hop <= last; hop++ {
		if _, ok := a.hops[hop]; !ok {
			return
		}
	}
	a.outcome = outcome
	close(a.done)
}

// Resolved reports whether hop already has a result
func (a *Aggregator) Resolved(hop int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.hops[hop]
	return ok
}

// TerminalHop returns the lowest hop that ended the path, or 0
func (a *Aggregator) TerminalHop() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.terminal
}

// Done is closed when the hop table is complete or Finish was called
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Outcome returns why the aggregator stopped, or OutcomeRunning
func (a *Aggregator) Outcome() result.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcome
}

// Snapshot returns the hops resolved so far, ordered by hop
func (a *Aggregator) Snapshot() result.HopTable {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tableLocked()
}

// Finish stops accepting results and returns the final table. If the table
// was already complete its own outcome wins over the given one.
func (a *Aggregator) Finish(outcome result.Outcome) (result.HopTable, result.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome == result.OutcomeRunning {
		a.outcome = outcome
		close(a.done)
	}
	return a.tableLocked(), a.outcome
}

func (a *Aggregator) tableLocked() result.HopTable {
	table := make(result.HopTable, 0, len(a.hops))
	for _, h := range a.hops {
		table = append(table, h)
	}
	sort.Slice(table, func(i, j int) bool {
		return table[i].Hop < table[j].Hop
	})
	return table
}
