// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package cmd holds the pathprobe command line
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/DataDog/datadog-pathprobe/config"
	"github.com/DataDog/datadog-pathprobe/log"
)

type args struct {
	configPath   string
	logLevel     string
	verbose      bool
	maxHops      int
	sendInterval time.Duration
	hopTimeout   time.Duration
	maxDatagram  int
	hopStride    int
	connStride   int
	tos          int
	dontFragment bool
}

var Args args

var rootCmd = &cobra.Command{
	Use:          "pathprobe",
	Short:        "Measure network paths with size-encoded probes over an encrypted datagram transport",
	SilenceUsage: true,
}

func Execute() {
	execute(rootCmd)
}

// execute runs c with a context that is canceled on SIGINT or SIGTERM
func execute(c *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := c.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	addCommonFlags(rootCmd)
	rootCmd.AddCommand(newSweepCommand(), newStridesCommand(), newServeCommand(), versionCmd)
}

func addCommonFlags(c *cobra.Command) {
	flags := c.PersistentFlags()
	flags.StringVarP(&Args.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVarP(&Args.logLevel, "log-level", "l", "", "Log level (error, warn, info, debug, trace)")
	flags.BoolVarP(&Args.verbose, "verbose", "v", false, "verbose")
	flags.IntVarP(&Args.maxHops, "max-hops", "m", 0, "Maximum number of hops to probe")
	flags.DurationVar(&Args.sendInterval, "send-interval", 0, "Delay between two probes of one connection")
	flags.DurationVar(&Args.hopTimeout, "hop-timeout", 0, "How long a probe waits for its ICMP error")
	flags.IntVar(&Args.maxDatagram, "max-datagram", 0, "Largest UDP datagram a probe may use")
	flags.IntVar(&Args.hopStride, "hop-stride", 0, "Payload bytes added per hop")
	flags.IntVar(&Args.connStride, "conn-stride", 0, "Payload bytes added per connection slot")
	flags.IntVar(&Args.tos, "tos", 0, "IP TOS / traffic class of probes")
	flags.BoolVar(&Args.dontFragment, "dont-fragment", true, "Set the don't fragment bit on probes")
}

// loadConfig reads the configuration file, if any, and applies the flags the
// user set explicitly
func loadConfig(c *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if Args.configPath != "" {
		var err error
		cfg, err = config.Load(Args.configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := c.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = Args.logLevel
	}
	if Args.verbose {
		cfg.LogLevel = log.LevelDebug.String()
	}
	if flags.Changed("max-hops") {
		cfg.MaxHops = Args.maxHops
	}
	if flags.Changed("send-interval") {
		cfg.SendInterval = Args.sendInterval
	}
	if flags.Changed("hop-timeout") {
		cfg.HopTimeout = Args.hopTimeout
	}
	if flags.Changed("max-datagram") {
		cfg.MaxDatagramSize = Args.maxDatagram
	}
	if flags.Changed("hop-stride") {
		cfg.HopStride = Args.hopStride
	}
	if flags.Changed("conn-stride") {
		cfg.ConnStride = Args.connStride
	}
	if flags.Changed("tos") {
		cfg.TOS = Args.tos
	}
	if flags.Changed("dont-fragment") {
		cfg.DontFragment = Args.dontFragment
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging routes the log facade through logrus
func setupLogging(level string) error {
	lvl, err := log.ParseLogLevel(level)
	if err != nil {
		return err
	}
	log.SetLogger(log.NewLogrusLogger(log.NewLogrus(lvl)))
	log.SetLogLevel(lvl)
	log.EnabledLogging(true)
	return nil
}
