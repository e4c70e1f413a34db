// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package session runs measurements: it opens one encrypted datagram
// connection per requested connection, sweeps them all and assembles the
// report
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/config"
	"github.com/DataDog/datadog-pathprobe/localaddr"
	"github.com/DataDog/datadog-pathprobe/log"
	"github.com/DataDog/datadog-pathprobe/metrics"
	"github.com/DataDog/datadog-pathprobe/probe"
	"github.com/DataDog/datadog-pathprobe/probesize"
	"github.com/DataDog/datadog-pathprobe/publicip"
	"github.com/DataDog/datadog-pathprobe/result"
	"github.com/DataDog/datadog-pathprobe/sockopt"
	"github.com/DataDog/datadog-pathprobe/transport"
)

const keySize = 32

// endpoint is one connection's sending side
type endpoint struct {
	sender transport.Sender
	local  netip.AddrPort
	closer io.Closer
}

type dialFunc func(ctx context.Context, stream uint16, remote netip.AddrPort) (*endpoint, error)

// Service runs measurements against a shared probe table
type Service struct {
	cfg             *config.Config
	metrics         *metrics.Metrics
	key             []byte
	encoder         *probesize.Encoder
	table           *probe.Table
	prober          *probe.Prober
	publicIPFetcher publicip.Fetcher
	proberOpts      []probe.Option
	dial            dialFunc
	nextConnID      atomic.Uint32
}

// Option configures a Service
type Option func(*Service)

// WithPublicIPFetcher replaces the public IP lookup
func WithPublicIPFetcher(f publicip.Fetcher) Option {
	return func(s *Service) {
		s.publicIPFetcher = f
	}
}

// WithHopObserver forwards every accepted hop result as it arrives
func WithHopObserver(fn func(connID uint32, h result.HopResult)) Option {
	return func(s *Service) {
		s.proberOpts = append(s.proberOpts, probe.WithHopObserver(fn))
	}
}

// New measures the transport overhead, checks the stride configuration
// against it and builds the prober. A nil m uses the default metrics.
func New(cfg *config.Config, m *metrics.Metrics, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.Default()
	}
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate channel key: %w", err)
	}
	s := &Service{
		cfg:             cfg,
		metrics:         m,
		key:             key,
		publicIPFetcher: publicip.NewFetcher(nil),
	}
	s.dial = s.dialUDP
	for _, opt := range opts {
		opt(s)
	}

	sampler, err := transport.NewStack(key, nil, 0)
	if err != nil {
		return nil, err
	}
	overhead, err := probesize.MeasureOverhead(sampler, cfg.BaseLength, MaxPayloadLength(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to measure transport overhead: %w", err)
	}
	log.Debugf("transport overhead %d..%d bytes", overhead.Min, overhead.Max)

	s.encoder = cfg.Encoder(overhead)
	s.table = probe.NewTable(cfg.HopTimeout, overhead.Variance(), m)
	s.prober, err = probe.NewProber(cfg.ProberConfig(), s.encoder, s.table, append(s.proberOpts, probe.WithMetrics(m))...)
	if err != nil {
		s.table.Close()
		return nil, err
	}
	return s, nil
}

// MaxPayloadLength is the largest payload any hop of any connection can need
func MaxPayloadLength(cfg *config.Config) int {
	n := cfg.BaseLength + cfg.MaxHops*cfg.HopStride + (cfg.MaxConnections-1)*cfg.ConnStride
	if n > cfg.MaxDatagramSize {
		return cfg.MaxDatagramSize
	}
	return n
}

// Table is the probe table replies are matched against
func (s *Service) Table() *probe.Table {
	return s.table
}

// Prober is the scheduler the service sweeps with
func (s *Service) Prober() *probe.Prober {
	return s.prober
}

// Encoder is the size encoder built for the measured overhead
func (s *Service) Encoder() *probesize.Encoder {
	return s.encoder
}

// Close stops the probe table reaper
func (s *Service) Close() {
	s.table.Close()
}

func (s *Service) dialUDP(ctx context.Context, stream uint16, remote netip.AddrPort) (*endpoint, error) {
	network := "udp4"
	if remote.Addr().Is6() {
		network = "udp6"
	}
	conn, err := sockopt.Listen(ctx, network, ":0", s.cfg.DontFragment, sockopt.WithDowngradeHook(func(error) {
		s.metrics.OptionDowngrade.Inc()
	}))
	if err != nil {
		return nil, err
	}
	stack, err := transport.NewStack(s.key, conn, stream)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &endpoint{sender: stack, local: conn.LocalAddr(), closer: conn}, nil
}

// Run measures the path to params.Hostname over params.Connections
// connections and returns the report
func (s *Service) Run(ctx context.Context, params Params) (*result.Results, error) {
	if params.Port == 0 {
		params.Port = common.DefaultPort
	}
	if params.Connections <= 0 {
		params.Connections = 1
	}
	if params.Connections > s.cfg.MaxConnections || params.Port+params.Connections-1 > 65535 {
		return nil, &common.InvalidTargetError{Err: fmt.Errorf("cannot open %d connections from port %d", params.Connections, params.Port)}
	}
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	target, err := common.ParseTarget(ctx, params.Hostname, params.Port, params.WantV6)
	if err != nil {
		return nil, err
	}

	results := result.NewResults(result.Params{
		Hostname:    params.Hostname,
		Port:        int(target.Port()),
		MaxHops:     s.cfg.MaxHops,
		Connections: params.Connections,
	})

	var wg sync.WaitGroup
	var multiErr []error
	resultsAndErrorsMu := &sync.Mutex{}

	for i := 0; i < params.Connections; i++ {
		i := i
		remote := netip.AddrPortFrom(target.Addr(), target.Port()+uint16(i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := s.sweepOnce(ctx, uint16(i), remote)
			resultsAndErrorsMu.Lock()
			defer resultsAndErrorsMu.Unlock()
			if run != nil {
				results.Runs = append(results.Runs, *run)
			}
			if err != nil {
				multiErr = append(multiErr, err)
			}
		}()
	}

	var publicIP string
	if params.CollectSourcePublicIP {
		log.Trace("collect public ip")
		wg.Add(1)
		go func() {
			defer wg.Done()
			family := 4
			if target.Addr().Is6() {
				family = 6
			}
			ip, err := s.publicIPFetcher.GetIP(ctx, family)
			if err != nil {
				log.Debugf("Error getting IP: %s", err)
				return
			}
			resultsAndErrorsMu.Lock()
			defer resultsAndErrorsMu.Unlock()
			publicIP = ip.String()
		}()
	}

	wg.Wait()
	if len(multiErr) > 0 {
		return nil, errors.Join(multiErr...)
	}

	sort.Slice(results.Runs, func(i, j int) bool {
		return results.Runs[i].ConnID < results.Runs[j].ConnID
	})
	for i := range results.Runs {
		results.Runs[i].Source.PublicIP = publicIP
	}
	if params.ReverseDns {
		results.EnrichWithReverseDns()
	}
	results.Normalize()
	return results, nil
}

// sweepOnce opens one connection and sweeps it
func (s *Service) sweepOnce(ctx context.Context, stream uint16, remote netip.AddrPort) (*result.SweepRun, error) {
	ep, err := s.dial(ctx, stream, remote)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to %s: %w", remote, err)
	}
	defer ep.closer.Close()

	conn := probe.Connection{ID: s.nextConnID.Add(1) - 1, Remote: remote}
	if deadline, ok := ctx.Deadline(); ok {
		conn.Deadline = deadline
	}
	run, err := s.prober.Sweep(ctx, conn, ep.sender)
	if run != nil {
		run.Source = result.Source{IP: ep.local.Addr(), Port: ep.local.Port()}
		if !run.Source.IP.IsValid() || run.Source.IP.IsUnspecified() {
			if src, srcErr := localaddr.SourceFor(remote.Addr()); srcErr == nil {
				run.Source.IP = src
			}
		}
	}
	return run, err
}
