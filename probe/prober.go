// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package probe drives per-connection hop sweeps: one size-encoded probe per
// hop, registered in the shared Table before it is sent.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/log"
	"github.com/DataDog/datadog-pathprobe/measurement"
	"github.com/DataDog/datadog-pathprobe/metrics"
	"github.com/DataDog/datadog-pathprobe/probesize"
	"github.com/DataDog/datadog-pathprobe/result"
	"github.com/DataDog/datadog-pathprobe/sockopt"
	"github.com/DataDog/datadog-pathprobe/transport"
)

// Config holds the sweep parameters
type Config struct {
	MaxHops      int
	SendInterval time.Duration
	TOS          int
	DontFragment bool
}

func (c Config) validate() error {
	if c.MaxHops < 1 || c.MaxHops > common.MaxTTL {
		return fmt.Errorf("max hops %d out of range [1, %d]", c.MaxHops, common.MaxTTL)
	}
	if c.SendInterval <= 0 {
		return fmt.Errorf("send interval must be positive, got %s", c.SendInterval)
	}
	return nil
}

// Connection is the peer a sweep measures the path to. A zero Deadline
// means the sweep only stops on completion or cancellation.
type Connection struct {
	ID       uint32
	Remote   netip.AddrPort
	Deadline time.Time
}

// Prober runs sweeps. One Prober serves any number of concurrent sweeps.
type Prober struct {
	cfg     Config
	encoder *probesize.Encoder
	table   *Table
	metrics *metrics.Metrics
	onHop   func(connID uint32, h result.HopResult)

	active sync.Map // connID -> *measurement.Aggregator
	slots  *slotAllocator
}

// Option configures a Prober
type Option func(*Prober)

// WithMetrics overrides the process-wide metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Prober) {
		p.metrics = m
	}
}

// WithHopObserver calls fn with every hop accepted by any sweep
func WithHopObserver(fn func(connID uint32, h result.HopResult)) Option {
	return func(p *Prober) {
		p.onHop = fn
	}
}

// NewProber checks the encoder strides against the table's match window and
// the hop range before accepting them.
func NewProber(cfg Config, enc *probesize.Encoder, table *Table, opts ...Option) (*Prober, error) {
	if err := cfg.validate(); err != nil {
		return nil, &common.InvalidTargetError{Err: err}
	}
	if table.Variance() < enc.Overhead.Variance() {
		return nil, &probesize.StrideError{Reason: fmt.Sprintf(
			"match window %d is narrower than the framing overhead variance %d",
			table.Variance(), enc.Overhead.Variance())}
	}
	if err := enc.Validate(cfg.MaxHops); err != nil {
		return nil, err
	}
	if enc.Base < PayloadHeaderLen {
		return nil, &probesize.StrideError{Reason: fmt.Sprintf(
			"base length %d cannot hold the %d byte probe header", enc.Base, PayloadHeaderLen)}
	}
	if err := enc.CheckCeiling(cfg.MaxHops); err != nil {
		log.Warnf("probe size configuration: %s; those hops will be skipped", err)
	}
	p := &Prober{
		cfg:     cfg,
		encoder: enc,
		table:   table,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.Default()
	}
	variance := table.Variance()
	p.slots = newSlotAllocator(enc.MaxConns, func(a, b int) bool {
		return enc.SlotsDisjoint(a, b, cfg.MaxHops, variance)
	})
	return p, nil
}

// Snapshot returns the hops resolved so far by the running sweep of connID
func (p *Prober) Snapshot(connID uint32) (result.HopTable, bool) {
	v, ok := p.active.Load(connID)
	if !ok {
		return nil, false
	}
	return v.(*measurement.Aggregator).Snapshot(), true
}

// Sweep probes hops 1..MaxHops towards conn.Remote through s and returns the
// hop table once the path is resolved or ctx is done. Cancellation is not an
// error: the run carries the partial table and the outcome. A probe collision
// aborts the sweep with a CollisionError. A sweep whose length windows would
// overlap those of a running sweep to the same destination waits for it.
func (p *Prober) Sweep(ctx context.Context, conn Connection, s transport.Sender) (*result.SweepRun, error) {
	if !conn.Remote.IsValid() {
		return nil, &common.InvalidTargetError{Err: fmt.Errorf("connection %d has no remote address", conn.ID)}
	}
	if !conn.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, conn.Deadline)
		defer cancel()
	}

	var aggOpts []measurement.Option
	if p.onHop != nil {
		aggOpts = append(aggOpts, measurement.WithOnHop(func(h result.HopResult) {
			p.onHop(conn.ID, h)
		}))
	}
	agg := measurement.New(conn.ID, p.cfg.MaxHops, aggOpts...)
	if _, loaded := p.active.LoadOrStore(conn.ID, agg); loaded {
		return nil, &common.InvalidTargetError{Err: fmt.Errorf("connection %d already has a sweep running", conn.ID)}
	}
	defer p.active.Delete(conn.ID)

	run := &result.SweepRun{
		ConnID:      conn.ID,
		Destination: result.Destination{IP: conn.Remote.Addr(), Port: conn.Remote.Port()},
		StartedAt:   time.Now(),
	}
	p.metrics.SweepsStarted.Inc()
	p.metrics.SweepsActive.Inc()
	defer p.metrics.SweepsActive.Dec()

	slot, err := p.slots.acquire(ctx, conn.Remote, p.encoder.Slot(conn.ID))
	if err != nil {
		log.Debugf("connection %d: gave up waiting for a free slot at %s: %s", conn.ID, conn.Remote, err)
	} else {
		defer p.slots.release(conn.Remote, slot)
		log.Debugf("connection %d: sweeping %s up to %d hops in slot %d", conn.ID, conn.Remote, p.cfg.MaxHops, slot)
		if err := p.sendAll(ctx, conn, slot, s, agg); err != nil {
			p.table.ReapConnection(conn.ID)
			run.Hops, run.Outcome = agg.Finish(result.OutcomeAborted)
			run.FinishedAt = time.Now()
			p.metrics.SweepsAborted.WithLabelValues(string(result.OutcomeAborted)).Inc()
			log.Errorf("connection %d: sweep aborted: %s", conn.ID, err)
			return run, err
		}

		select {
		case <-agg.Done():
		case <-ctx.Done():
		}
	}

	outcome := result.OutcomeExhausted
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome = result.OutcomeDeadline
	case ctx.Err() != nil:
		outcome = result.OutcomeCanceled
	}
	// probes above a terminal hop, or still in flight on cancellation
	p.table.ReapConnection(conn.ID)
	run.Hops, run.Outcome = agg.Finish(outcome)
	run.FinishedAt = time.Now()
	if run.Outcome == result.OutcomeCanceled || run.Outcome == result.OutcomeDeadline {
		p.metrics.SweepsAborted.WithLabelValues(string(run.Outcome)).Inc()
	}
	log.Debugf("connection %d: sweep finished (%s) with %d hops", conn.ID, run.Outcome, len(run.Hops))
	return run, nil
}

// sendAll emits one probe per hop at the configured rate until the path
// ends, ctx is done, or a probe cannot be registered.
func (p *Prober) sendAll(ctx context.Context, conn Connection, slot int, s transport.Sender, agg *measurement.Aggregator) error {
	limiter := rate.NewLimiter(rate.Every(p.cfg.SendInterval), 1)
	for hop := 1; hop <= p.cfg.MaxHops; hop++ {
		if term := agg.TerminalHop(); term != 0 && hop > term {
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			log.Tracef("connection %d: stop sending at hop %d: %s", conn.ID, hop, err)
			return nil
		}
		if err := p.sendHop(ctx, conn, slot, s, agg, hop); err != nil {
			return err
		}
	}
	return nil
}

func (p *Prober) sendHop(ctx context.Context, conn Connection, slot int, s transport.Sender, agg *measurement.Aggregator, hop int) error {
	target, err := p.encoder.SlotLength(conn.ID, slot, hop)
	var oversize *probesize.OversizeError
	if errors.As(err, &oversize) {
		log.Errorf("connection %d: skipping hop %d: %s", conn.ID, hop, err)
		p.metrics.HopsSkipped.Inc()
		agg.Deliver(result.HopResult{Hop: hop, Status: result.StatusSkipped})
		return nil
	}
	if err != nil {
		return err
	}

	rec := NewRecord(conn.ID, hop, conn.Remote, p.encoder.WireLength(target), agg)
	payload, err := p.encoder.Pad(Payload{ConnID: conn.ID, Hop: hop, SentAt: rec.SentAt}.Marshal(), target)
	if err != nil {
		return err
	}
	if err := p.table.Insert(rec); err != nil {
		return err
	}

	opts := sockopt.Options{TTL: hop, TOS: p.cfg.TOS, DontFragment: p.cfg.DontFragment}
	err = sockopt.SendWithOptions(ctx, s, payload, conn.Remote, opts)
	if errors.Is(err, sockopt.ErrDowngraded) {
		// the datagram left with the default TTL, any answer would name the wrong hop
		p.metrics.ProbesSent.Inc()
		p.table.Reap(rec)
		return nil
	}
	if err != nil {
		code := ClassifyError(err).Code
		p.metrics.SendErrors.WithLabelValues(string(code)).Inc()
		log.Warnf("connection %d: hop %d send failed (%s): %s", conn.ID, hop, code, err)
		p.table.Reap(rec)
		return nil
	}
	p.metrics.ProbesSent.Inc()
	return nil
}

// SweepAll runs one sweep per connection in parallel. Runs are returned in
// the order of conns; a connection whose sweep could not start has a zero
// run. The first sweep error is returned after every sweep has finished.
func (p *Prober) SweepAll(ctx context.Context, conns []Connection, s transport.Sender) ([]result.SweepRun, error) {
	runs := make([]result.SweepRun, len(conns))
	var g errgroup.Group
	for i, conn := range conns {
		i, conn := i, conn
		g.Go(func() error {
			run, err := p.Sweep(ctx, conn, s)
			if run != nil {
				runs[i] = *run
			}
			if err != nil {
				return fmt.Errorf("connection %d: %w", conn.ID, err)
			}
			return nil
		})
	}
	return runs, g.Wait()
}
