// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package reversedns resolves hop responders to names
package reversedns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/DataDog/datadog-pathprobe/cache"
)

const (
	reverseDnsDefaultTimeout = 5 * time.Second
	reverseDnsCacheExpire    = 10 * time.Minute
)

// LookupAddrFn is defined as variable to ease testing
var LookupAddrFn = net.DefaultResolver.LookupAddr

// GetReverseDns returns the names for addr with trailing dots removed
func GetReverseDns(ctx context.Context, addr netip.Addr) ([]string, error) {
	if !addr.IsValid() {
		return nil, errors.New("invalid IP address")
	}
	ctx, cancel := context.WithTimeout(ctx, reverseDnsDefaultTimeout)
	defer cancel()
	rawReverseDnsNames, err := LookupAddrFn(ctx, addr.Unmap().String())
	if err != nil {
		return nil, fmt.Errorf("failed to get reverse dns: %w", err)
	}

	reverseDnsNames := []string{}
	for _, name := range rawReverseDnsNames {
		reverseDnsNames = append(reverseDnsNames, strings.TrimRight(name, "."))
	}
	return reverseDnsNames, nil
}

// GetCachedReverseDns is GetReverseDns behind the shared lookup cache.
// Failed lookups are retried on the next call.
func GetCachedReverseDns(addr netip.Addr) ([]string, error) {
	return cache.GetWithExpiration(cache.Key("rdns", addr.Unmap().String()), func() ([]string, error) {
		return GetReverseDns(context.Background(), addr)
	}, reverseDnsCacheExpire)
}
