// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package result

import (
	"net/netip"

	"github.com/DataDog/datadog-pathprobe/log"
	"github.com/DataDog/datadog-pathprobe/reversedns"
)

// EnrichWithReverseDns resolves every responder and destination address.
// Lookup failures leave the names empty.
func (r *Results) EnrichWithReverseDns() {
	for i := range r.Runs {
		run := &r.Runs[i]
		run.Destination.ReverseDns = lookup(run.Destination.IP)
		for j := range run.Hops {
			if run.Hops[j].Responder != nil {
				run.Hops[j].ReverseDns = lookup(*run.Hops[j].Responder)
			}
		}
	}
}

func lookup(addr netip.Addr) []string {
	if !addr.IsValid() {
		return nil
	}
	names, err := reversedns.GetCachedReverseDns(addr)
	if err != nil {
		log.Debugf("reverse dns for %s: %s", addr, err)
		return nil
	}
	return names
}
