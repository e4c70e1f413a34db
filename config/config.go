// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package config loads the prober settings from YAML
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/log"
	"github.com/DataDog/datadog-pathprobe/probe"
	"github.com/DataDog/datadog-pathprobe/probesize"
)

// Config holds every setting of a prober process
type Config struct {
	MaxHops               int           `yaml:"max_hops"`
	SendInterval          time.Duration `yaml:"send_interval"`
	HopTimeout            time.Duration `yaml:"hop_timeout"`
	MaxDatagramSize       int           `yaml:"max_datagram_size"`
	BaseLength            int           `yaml:"base_length"`
	HopStride             int           `yaml:"hop_stride"`
	ConnStride            int           `yaml:"conn_stride"`
	MaxConnections        int           `yaml:"max_connections"`
	TOS                   int           `yaml:"tos"`
	DontFragment          bool          `yaml:"dont_fragment"`
	ReverseDns            bool          `yaml:"reverse_dns"`
	CollectSourcePublicIP bool          `yaml:"collect_source_public_ip"`
	UseInterfaceMTU       bool          `yaml:"use_interface_mtu"`
	HTTPAddr              string        `yaml:"http_addr"`
	LogLevel              string        `yaml:"log_level"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		MaxHops:         common.DefaultMaxHops,
		SendInterval:    common.DefaultSendInterval,
		HopTimeout:      common.DefaultHopTimeout,
		MaxDatagramSize: common.DefaultMaxDatagramSize,
		BaseLength:      common.DefaultBaseLength,
		HopStride:       common.DefaultHopStride,
		ConnStride:      common.DefaultConnStride,
		MaxConnections:  common.DefaultMaxConnections,
		TOS:             common.DefaultTOS,
		DontFragment:    common.DefaultDontFragment,
		ReverseDns:      common.DefaultReverseDns,
		HTTPAddr:        common.DefaultHTTPAddr,
		LogLevel:        log.LevelInfo.String(),
	}
}

// Load reads path and overlays it on Default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges only. Stride collisions depend on the measured
// transport overhead and are checked again when the prober is built.
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int64
	}{
		{"max_hops", int64(c.MaxHops)},
		{"send_interval", int64(c.SendInterval)},
		{"hop_timeout", int64(c.HopTimeout)},
		{"max_datagram_size", int64(c.MaxDatagramSize)},
		{"hop_stride", int64(c.HopStride)},
		{"conn_stride", int64(c.ConnStride)},
		{"max_connections", int64(c.MaxConnections)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.MaxHops > common.MaxTTL {
		return fmt.Errorf("max_hops must be at most %d, got %d", common.MaxTTL, c.MaxHops)
	}
	if c.BaseLength < probe.PayloadHeaderLen {
		return fmt.Errorf("base_length must be at least the %d byte probe header, got %d", probe.PayloadHeaderLen, c.BaseLength)
	}
	if c.TOS < 0 || c.TOS > 255 {
		return fmt.Errorf("tos must fit in one byte, got %d", c.TOS)
	}
	if _, err := log.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Encoder builds the size encoder for the given transport overhead
func (c *Config) Encoder(overhead probesize.Overhead) *probesize.Encoder {
	return &probesize.Encoder{
		Base:        c.BaseLength,
		HopStride:   c.HopStride,
		ConnStride:  c.ConnStride,
		MaxConns:    c.MaxConnections,
		MaxDatagram: c.MaxDatagramSize,
		Overhead:    overhead,
	}
}

// ProberConfig returns the scheduler settings
func (c *Config) ProberConfig() probe.Config {
	return probe.Config{
		MaxHops:      c.MaxHops,
		SendInterval: c.SendInterval,
		TOS:          c.TOS,
		DontFragment: c.DontFragment,
	}
}

// CapDatagramSize lowers the datagram ceiling to fit an outbound interface
// MTU. ipHeaderLen is the IP header size of the probed family.
func (c *Config) CapDatagramSize(mtu, ipHeaderLen int) bool {
	limit := mtu - ipHeaderLen
	if mtu <= 0 || limit <= 0 || limit >= c.MaxDatagramSize {
		return false
	}
	log.Debugf("lowering max_datagram_size from %d to %d for a %d byte MTU", c.MaxDatagramSize, limit, mtu)
	c.MaxDatagramSize = limit
	return true
}
