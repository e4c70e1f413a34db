// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package probe

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/DataDog/datadog-pathprobe/log"
	"github.com/DataDog/datadog-pathprobe/metrics"
)

type tableKey struct {
	dst    netip.AddrPort
	length int
}

// CollisionError is returned when a new probe's length window overlaps one
// already outstanding for the same destination
type CollisionError struct {
	Dst      netip.AddrPort
	New      *Record
	Existing *Record
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("probe for connection %d hop %d (length %d) collides with connection %d hop %d (length %d) at %s",
		e.New.ConnID, e.New.Hop, e.New.WireLength,
		e.Existing.ConnID, e.Existing.Hop, e.Existing.WireLength, e.Dst)
}

// Table holds every outstanding probe of the process, keyed by destination
// and nominal UDP length. A record leaves the table exactly once: taken by
// an ICMP match, reaped on expiry, or reaped early for its connection.
type Table struct {
	variance int
	metrics  *metrics.Metrics

	// serializes the overlap check with the insert
	insertMu sync.Mutex
	items    *ttlcache.Cache[tableKey, *Record]
	stopOnce sync.Once
	done     chan struct{}
}

// NewTable returns a table whose records expire after timeout. Quoted
// lengths up to variance bytes above a record's nominal length match it.
// The expiry reaper runs until Close.
func NewTable(timeout time.Duration, variance int, m *metrics.Metrics) *Table {
	if m == nil {
		m = metrics.Default()
	}
	t := &Table{
		variance: variance,
		metrics:  m,
		items: ttlcache.New[tableKey, *Record](
			ttlcache.WithTTL[tableKey, *Record](timeout),
			ttlcache.WithDisableTouchOnHit[tableKey, *Record](),
		),
		done: make(chan struct{}),
	}
	t.items.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[tableKey, *Record]) {
		// takes and early reaps handle their own records
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		rec := item.Value()
		if rec.expire() {
			t.metrics.ProbesTimedOut.Inc()
			log.Tracef("connection %d hop %d timed out", rec.ConnID, rec.Hop)
		}
	})
	go func() {
		t.items.Start()
		close(t.done)
	}()
	return t
}

// Variance returns the width of each record's match window
func (t *Table) Variance() int {
	return t.variance
}

// Insert registers rec. It fails with a CollisionError when another
// outstanding record for the same destination could claim the same quoted
// lengths.
func (t *Table) Insert(rec *Record) error {
	t.insertMu.Lock()
	defer t.insertMu.Unlock()

	// an expired record sharing the key must be reported before it is replaced
	t.items.DeleteExpired()

	for l := rec.WireLength - t.variance; l <= rec.WireLength+t.variance; l++ {
		if item := t.items.Get(tableKey{dst: rec.Dst, length: l}); item != nil {
			return &CollisionError{Dst: rec.Dst, New: rec, Existing: item.Value()}
		}
	}
	t.items.Set(tableKey{dst: rec.Dst, length: rec.WireLength}, rec, ttlcache.DefaultTTL)
	return nil
}

// Take atomically removes the record whose window contains the quoted UDP
// length for dst. A second Take for the same reply misses.
func (t *Table) Take(dst netip.AddrPort, udpLength int) (*Record, bool) {
	for l := udpLength; l >= udpLength-t.variance; l-- {
		item, ok := t.items.GetAndDelete(tableKey{dst: dst, length: l})
		if ok && item != nil {
			return item.Value(), true
		}
	}
	return nil, false
}

// Reap removes rec if it is still outstanding and resolves it as timed out
func (t *Table) Reap(rec *Record) bool {
	item, ok := t.items.GetAndDelete(tableKey{dst: rec.Dst, length: rec.WireLength})
	if !ok {
		return false
	}
	if !item.Value().expire() {
		return false
	}
	t.metrics.ProbesTimedOut.Inc()
	return true
}

// ReapConnection resolves every outstanding record of connID as timed out
// and returns how many it reaped. Results are delivered before it returns.
func (t *Table) ReapConnection(connID uint32) int {
	reaped := 0
	for key, item := range t.items.Items() {
		if item.Value().ConnID != connID {
			continue
		}
		taken, ok := t.items.GetAndDelete(key)
		if !ok {
			continue
		}
		if taken.Value().expire() {
			reaped++
		}
	}
	t.metrics.ProbesTimedOut.Add(float64(reaped))
	if reaped > 0 {
		log.Debugf("connection %d: reaped %d outstanding probes", connID, reaped)
	}
	return reaped
}

// Len returns the number of outstanding records
func (t *Table) Len() int {
	return t.items.Len()
}

// Close stops the expiry reaper
func (t *Table) Close() {
	t.stopOnce.Do(func() {
		t.items.Stop()
		<-t.done
	})
}
