// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package probe

import (
	"context"
	"net/netip"
	"sync"
)

// slotAllocator assigns encoding slots to sweeps sharing a destination.
// Two sweeps hold slots at the same destination only when their length
// windows can never overlap; otherwise the later one waits.
type slotAllocator struct {
	slots    int
	disjoint func(a, b int) bool

	mu    sync.Mutex
	inUse map[netip.AddrPort][]int
	freed chan struct{}
}

func newSlotAllocator(slots int, disjoint func(a, b int) bool) *slotAllocator {
	if slots <= 0 {
		slots = 1
	}
	return &slotAllocator{
		slots:    slots,
		disjoint: disjoint,
		inUse:    make(map[netip.AddrPort][]int),
		freed:    make(chan struct{}),
	}
}

// acquire returns preferred when it fits next to the slots already held at
// dst, else the lowest slot that does. It blocks until one fits or ctx is done.
func (a *slotAllocator) acquire(ctx context.Context, dst netip.AddrPort, preferred int) (int, error) {
	for {
		a.mu.Lock()
		if slot, ok := a.pick(dst, preferred); ok {
			a.inUse[dst] = append(a.inUse[dst], slot)
			a.mu.Unlock()
			return slot, nil
		}
		freed := a.freed
		a.mu.Unlock()

		select {
		case <-freed:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (a *slotAllocator) pick(dst netip.AddrPort, preferred int) (int, bool) {
	held := a.inUse[dst]
	if a.fits(held, preferred) {
		return preferred, true
	}
	for slot := 0; slot < a.slots; slot++ {
		if a.fits(held, slot) {
			return slot, true
		}
	}
	return 0, false
}

func (a *slotAllocator) fits(held []int, slot int) bool {
	for _, h := range held {
		if !a.disjoint(h, slot) {
			return false
		}
	}
	return true
}

func (a *slotAllocator) release(dst netip.AddrPort, slot int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	held := a.inUse[dst]
	for i, h := range held {
		if h == slot {
			held = append(held[:i], held[i+1:]...)
			break
		}
	}
	if len(held) == 0 {
		delete(a.inUse, dst)
	} else {
		a.inUse[dst] = held
	}
	close(a.freed)
	a.freed = make(chan struct{})
}
