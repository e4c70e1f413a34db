// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/config"
	"github.com/DataDog/datadog-pathprobe/icmp"
	"github.com/DataDog/datadog-pathprobe/localaddr"
	"github.com/DataDog/datadog-pathprobe/log"
	"github.com/DataDog/datadog-pathprobe/metrics"
	"github.com/DataDog/datadog-pathprobe/result"
	"github.com/DataDog/datadog-pathprobe/session"
)

type sweepArgs struct {
	port                  int
	connections           int
	timeout               time.Duration
	wantV6                bool
	reverseDns            bool
	collectSourcePublicIP bool
}

func newSweepCommand() *cobra.Command {
	var a sweepArgs
	c := &cobra.Command{
		Use:   "sweep [target]",
		Short: "Probe every hop towards a target over one or more connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			params := session.Params{
				Hostname:              args[0],
				Port:                  a.port,
				Connections:           a.connections,
				WantV6:                a.wantV6,
				Timeout:               a.timeout,
				ReverseDns:            a.reverseDns || cfg.ReverseDns,
				CollectSourcePublicIP: a.collectSourcePublicIP || cfg.CollectSourcePublicIP,
			}
			results, err := runSweep(c.Context(), cfg, params)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return fmt.Errorf("JSON marshalling error: %w", err)
			}
			fmt.Fprintln(c.OutOrStdout(), string(out))
			return nil
		},
	}
	flags := c.Flags()
	flags.IntVarP(&a.port, "port", "p", common.DefaultPort, "First destination port, connection i uses port+i")
	flags.IntVarP(&a.connections, "connections", "n", 1, "Number of concurrent connections")
	flags.DurationVarP(&a.timeout, "timeout", "t", 0, "Overall deadline of the sweep")
	flags.BoolVar(&a.wantV6, "ipv6", false, "Resolve the target to an IPv6 address")
	flags.BoolVar(&a.reverseDns, "reverse-dns", false, "Enrich responders with reverse DNS names")
	flags.BoolVar(&a.collectSourcePublicIP, "source-public-ip", false, "Collect the public IP of this host")
	return c
}

// runSweep builds a session, starts the ICMP listener beside it and runs one
// measurement
func runSweep(ctx context.Context, cfg *config.Config, params session.Params) (*result.Results, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.UseInterfaceMTU {
		capToPathMTU(ctx, cfg, params)
	}

	m := metrics.Default()
	svc, err := session.New(cfg, m)
	if err != nil {
		return nil, err
	}
	defer svc.Close()
	warnOnCeiling(cfg, svc)

	listener, err := icmp.Open(svc.Table(), m)
	if err != nil {
		return nil, err
	}

	var results *result.Results
	g, gctx := errgroup.WithContext(ctx)
	listenCtx, stopListener := context.WithCancel(gctx)
	g.Go(func() error {
		return listener.Run(listenCtx)
	})
	g.Go(func() error {
		defer stopListener()
		var runErr error
		results, runErr = svc.Run(gctx, params)
		return runErr
	})
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// capToPathMTU lowers the datagram ceiling to the outbound interface MTU.
// Lookup failures keep the configured ceiling.
func capToPathMTU(ctx context.Context, cfg *config.Config, params session.Params) {
	port := params.Port
	if port == 0 {
		port = common.DefaultPort
	}
	target, err := common.ParseTarget(ctx, params.Hostname, port, params.WantV6)
	if err != nil {
		log.Debugf("skipping interface MTU lookup: %s", err)
		return
	}
	mtu, err := localaddr.PathMTU(target.Addr())
	if err != nil {
		log.Debugf("interface MTU lookup failed for %s: %s", target.Addr(), err)
		return
	}
	cfg.CapDatagramSize(mtu, common.IPHeaderLen(target.Addr()))
}

func warnOnCeiling(cfg *config.Config, svc *session.Service) {
	if err := svc.Encoder().CheckCeiling(cfg.MaxHops); err != nil {
		log.Warnf("some hops will not be probed: %s", err)
	}
}
