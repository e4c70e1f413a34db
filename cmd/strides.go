// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package cmd

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/DataDog/datadog-pathprobe/config"
	"github.com/DataDog/datadog-pathprobe/probesize"
	"github.com/DataDog/datadog-pathprobe/session"
	"github.com/DataDog/datadog-pathprobe/transport"
)

const maxListedCollisions = 20

func newStridesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "strides",
		Short: "Check the size encoding of the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			enc, err := measuredEncoder(cfg)
			if err != nil {
				return err
			}
			return reportStrides(c.OutOrStdout(), cfg, enc)
		},
	}
}

// measuredEncoder frames samples through a throwaway transport to learn the
// overhead the real sessions will see
func measuredEncoder(cfg *config.Config) (*probesize.Encoder, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	stack, err := transport.NewStack(key, nil, 0)
	if err != nil {
		return nil, err
	}
	overhead, err := probesize.MeasureOverhead(stack, cfg.BaseLength, session.MaxPayloadLength(cfg))
	if err != nil {
		return nil, err
	}
	return cfg.Encoder(overhead), nil
}

// reportStrides prints the encoding range and returns the validation error,
// if any
func reportStrides(w io.Writer, cfg *config.Config, enc *probesize.Encoder) error {
	fmt.Fprintf(w, "overhead: %d..%d bytes (variance %d)\n", enc.Overhead.Min, enc.Overhead.Max, enc.Overhead.Variance())
	fmt.Fprintf(w, "strides: hop %d, connection %d, base %d\n", enc.HopStride, enc.ConnStride, enc.Base)

	shortest := enc.Base + enc.HopStride
	longest := enc.Base + cfg.MaxHops*enc.HopStride + (cfg.MaxConnections-1)*enc.ConnStride
	fmt.Fprintf(w, "payload range: %d..%d bytes, ceiling %d\n", shortest, longest, cfg.MaxDatagramSize)

	if err := enc.CheckCeiling(cfg.MaxHops); err != nil {
		fmt.Fprintf(w, "warning: %s\n", err)
	}

	near := enc.Collisions(cfg.MaxConnections, cfg.MaxHops, enc.Overhead.Variance())
	fmt.Fprintf(w, "pairs within framing variance: %d\n", len(near))
	for i, c := range near {
		if i == maxListedCollisions {
			fmt.Fprintf(w, "  ... %d more\n", len(near)-i)
			break
		}
		fmt.Fprintf(w, "  slot %d hop %d (%d) ~ slot %d hop %d (%d)\n",
			c.A.Slot, c.A.Hop, c.LengthA, c.B.Slot, c.B.Hop, c.LengthB)
	}

	if err := enc.Validate(cfg.MaxHops); err != nil {
		fmt.Fprintf(w, "invalid: %s\n", err)
		return err
	}
	fmt.Fprintln(w, "ok")
	return nil
}
