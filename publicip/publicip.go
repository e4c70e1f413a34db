// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package publicip finds the address probes leave the local network with
package publicip

//go:generate mockgen -source=publicip.go -destination=mock_fetcher.go -package=publicip

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"

	externalip "github.com/glendc/go-external-ip"

	"github.com/DataDog/datadog-pathprobe/cache"
	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/log"
)

// Fetcher returns the public address of this host
type Fetcher interface {
	GetIP(ctx context.Context, family int) (netip.Addr, error)
}

// ConsensusFetcher asks several checker services and keeps the address most
// of them agree on. Results are cached for CacheExpiration.
type ConsensusFetcher struct {
	client *http.Client
}

var _ Fetcher = &ConsensusFetcher{}

// NewFetcher returns a ConsensusFetcher. A nil client dials with a transport
// pinned to the requested family.
func NewFetcher(client *http.Client) *ConsensusFetcher {
	return &ConsensusFetcher{client: client}
}

func (f *ConsensusFetcher) consensus(family int) (*externalip.Consensus, error) {
	c := externalip.NewConsensus(externalip.DefaultConsensusConfig().WithTimeout(Timeout), nil)
	if err := c.UseIPProtocol(uint(family)); err != nil {
		return nil, err
	}
	for _, checker := range ipCheckers {
		if err := c.AddVoter(&checkerSource{client: f.client, url: checker.url}, checker.weight); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// GetIP returns the public address for family 4 or 6, 0 for either
func (f *ConsensusFetcher) GetIP(ctx context.Context, family int) (netip.Addr, error) {
	key := cache.Key("source_public_ip", strconv.Itoa(family))
	type fetched struct {
		addr netip.Addr
		err  error
	}
	done := make(chan fetched, 1)
	go func() {
		addr, err := cache.GetWithExpiration(key, func() (netip.Addr, error) {
			c, err := f.consensus(family)
			if err != nil {
				return netip.Addr{}, err
			}
			ip, err := c.ExternalIP()
			if err != nil {
				return netip.Addr{}, fmt.Errorf("failed to fetch public IP: %w", err)
			}
			addr, ok := common.UnmappedAddrFromSlice(ip)
			if !ok {
				return netip.Addr{}, fmt.Errorf("invalid public IP %s", ip)
			}
			log.Debugf("Public IP fetched: %s", addr)
			return addr, nil
		}, CacheExpiration)
		done <- fetched{addr, err}
	}()

	select {
	case <-ctx.Done():
		return netip.Addr{}, ctx.Err()
	case r := <-done:
		return r.addr, r.err
	}
}
