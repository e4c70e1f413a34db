// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package icmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/sync/errgroup"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/log"
	"github.com/DataDog/datadog-pathprobe/metrics"
	"github.com/DataDog/datadog-pathprobe/packets"
	"github.com/DataDog/datadog-pathprobe/probe"
	"github.com/DataDog/datadog-pathprobe/result"
)

// maxPacketSize bounds one ICMP read. Quotes are at most 576 bytes for IPv4
// and 1280 for IPv6.
const maxPacketSize = 1500

// sourceOpener is swapped in tests
var sourceOpener = packets.NewICMPSource

var disabledOnce sync.Once

// Listener reads ICMP errors and resolves the probes they quote
type Listener struct {
	sources []packets.Source
	table   *probe.Table
	metrics *metrics.Metrics
}

// NewListener returns a listener reading from sources. A nil m uses the
// default metrics.
func NewListener(table *probe.Table, m *metrics.Metrics, sources ...packets.Source) *Listener {
	if m == nil {
		m = metrics.Default()
	}
	return &Listener{sources: sources, table: table, metrics: m}
}

// Open opens raw sockets for both IP families. Without the privilege to open
// raw sockets the listener is disabled rather than failing: probes are still
// sent and every hop times out.
func Open(table *probe.Table, m *metrics.Metrics) (*Listener, error) {
	var sources []packets.Source
	for _, family := range []gopacket.LayerType{layers.LayerTypeIPv4, layers.LayerTypeIPv6} {
		src, err := sourceOpener(family)
		if errors.Is(err, os.ErrPermission) {
			for _, s := range sources {
				s.Close()
			}
			disabledOnce.Do(func() {
				log.Warnf("ICMP listener disabled, raw sockets are not permitted: %s", err)
			})
			return NewListener(table, m), nil
		}
		if err != nil {
			if family == layers.LayerTypeIPv4 {
				for _, s := range sources {
					s.Close()
				}
				return nil, fmt.Errorf("failed to open ICMP listener: %w", err)
			}
			log.Warnf("ICMPv6 listener unavailable: %s", err)
			continue
		}
		sources = append(sources, src)
	}
	return NewListener(table, m, sources...), nil
}

// Disabled reports whether the listener has no source to read from
func (l *Listener) Disabled() bool {
	return len(l.sources) == 0
}

// Run reads every source until ctx is done, then closes them
func (l *Listener) Run(ctx context.Context) error {
	if l.Disabled() {
		<-ctx.Done()
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range l.sources {
		src := src
		g.Go(func() error {
			defer src.Close()
			return l.serve(ctx, src)
		})
	}
	return g.Wait()
}

func (l *Listener) serve(ctx context.Context, src packets.Source) error {
	buf := make([]byte, maxPacketSize)
	for ctx.Err() == nil {
		deadline, _ := ctx.Deadline()
		if err := src.SetReadDeadline(deadline); err != nil {
			return fmt.Errorf("listener failed to set read deadline: %w", err)
		}
		n, from, err := src.Read(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("listener %s read failed: %w", src.Family(), err)
		}
		l.handle(src, buf[:n], from, time.Now())
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// handle matches one ICMP message against the outstanding probes. A bad
// packet is counted and dropped without affecting the next one.
func (l *Listener) handle(src packets.Source, pkt []byte, from netip.Addr, receivedAt time.Time) bool {
	reply, err := ParseReply(src.Family(), pkt)
	if err != nil {
		var mismatch common.MismatchError
		if errors.As(err, &mismatch) {
			log.Tracef("ignoring ICMP from %s: %s", from, err)
			return false
		}
		l.metrics.ICMPMalformed.Inc()
		log.Debugf("dropping malformed ICMP from %s: %s", from, err)
		return false
	}

	rec, ok := l.table.Take(reply.Dst, reply.UDPLength)
	if !ok {
		l.metrics.ICMPUnmatched.Inc()
		log.Tracef("unmatched ICMP %s from %s for %s length %d", reply.Kind, from, reply.Dst, reply.UDPLength)
		return false
	}

	rtt := receivedAt.Sub(rec.SentAt)
	rttMs := float64(rtt.Microseconds()) / 1000
	h := result.HopResult{
		RTTMs:      &rttMs,
		Status:     reply.Status(),
		ICMPType:   reply.Type,
		ICMPCode:   reply.Code,
		NextHopMTU: reply.NextHopMTU,
	}
	if from.IsValid() {
		h.Responder = &from
	}
	if !rec.Match(h) {
		return false
	}
	l.metrics.ProbesMatched.WithLabelValues(string(reply.Kind)).Inc()
	l.metrics.MatchRTT.Observe(rtt.Seconds())
	log.Tracef("connection %d hop %d matched %s from %s in %.2fms", rec.ConnID, rec.Hop, reply.Kind, from, rttMs)
	return true
}
