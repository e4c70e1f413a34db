// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package cmd

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DataDog/datadog-pathprobe/config"
	"github.com/DataDog/datadog-pathprobe/icmp"
	"github.com/DataDog/datadog-pathprobe/log"
	"github.com/DataDog/datadog-pathprobe/metrics"
	"github.com/DataDog/datadog-pathprobe/server"
	"github.com/DataDog/datadog-pathprobe/session"
)

var serveAddr string

func newServeCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve sweeps over HTTP",
		Long:  `HTTP server that runs sweeps on request and exposes prometheus metrics`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.Flags().Changed("addr") {
				cfg.HTTPAddr = serveAddr
			}
			return serve(c.Context(), cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
		},
	}
	// Default port 3765 is used for Remote Traceroute
	c.Flags().StringVarP(&serveAddr, "addr", "a", ":3765", "HTTP server address to listen on")
	return c
}

// ExecuteServer runs the serve command as the root of a dedicated binary
func ExecuteServer() {
	c := newServeCommand()
	c.Use = "pathprobe-server"
	addCommonFlags(c)
	execute(c)
}

// serve runs the ICMP listener and the HTTP server until ctx is done or
// either of them fails. All sweeps share one session and one probe table.
func serve(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, gatherer prometheus.Gatherer) error {
	m := metrics.NewMetricsWithRegistry(reg)
	svc, err := session.New(cfg, m)
	if err != nil {
		return err
	}
	defer svc.Close()
	warnOnCeiling(cfg, svc)

	listener, err := icmp.Open(svc.Table(), m)
	if err != nil {
		return err
	}

	log.Infof("Starting pathprobe HTTP server on %s", cfg.HTTPAddr)
	log.Infof("Example usage: curl http://localhost%s/sweep?target=example.com&connections=4", cfg.HTTPAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		return server.NewServer(svc, gatherer).Start(gctx, cfg.HTTPAddr)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
