// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package result

import (
	"encoding/base64"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of probing one hop
type Status string

const (
	// StatusAnswered means a router on the path returned Time Exceeded
	StatusAnswered Status = "answered"
	// StatusUnreachable means the probe ended the path: destination or port
	// unreachable, or a packet too big for the next link
	StatusUnreachable Status = "unreachable"
	// StatusTimedOut means nothing answered within the hop timeout
	StatusTimedOut Status = "timed_out"
	// StatusSkipped means the hop could not be encoded under the datagram ceiling
	StatusSkipped Status = "skipped"
)

// Outcome is why a sweep stopped
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeReached   Outcome = "destination_reached"
	OutcomeExhausted Outcome = "max_hops_reached"
	OutcomeCanceled  Outcome = "canceled"
	OutcomeDeadline  Outcome = "deadline_exceeded"
	OutcomeAborted   Outcome = "aborted"
)

type (
	// Results all the results from a single request, one run per connection
	Results struct {
		ID     string     `json:"id"`
		Params Params     `json:"params"`
		Runs   []SweepRun `json:"runs"`
		Hops   HopsStats  `json:"hops"`
		Tags   []string   `json:"tags,omitempty"`
	}

	HopsStats struct {
		Avg float64 `json:"avg"`
		Min int     `json:"min"`
		Max int     `json:"max"`
	}

	// SweepRun is the ordered hop table of one connection
	SweepRun struct {
		ConnID      uint32      `json:"connection_id"`
		Source      Source      `json:"source"`
		Destination Destination `json:"destination"`
		Outcome     Outcome     `json:"outcome"`
		StartedAt   time.Time   `json:"started_at"`
		FinishedAt  time.Time   `json:"finished_at,omitempty"`
		Hops        HopTable    `json:"hops"`
	}

	// HopResult describes a single hop. It is not modified once produced.
	HopResult struct {
		Hop        int         `json:"hop"`
		Responder  *netip.Addr `json:"responder_address,omitempty"`
		RTTMs      *float64    `json:"rtt_ms,omitempty"`
		Status     Status      `json:"status"`
		ICMPType   uint8       `json:"icmp_type,omitempty"`
		ICMPCode   uint8       `json:"icmp_code,omitempty"`
		NextHopMTU int         `json:"next_hop_mtu,omitempty"`
		ReverseDns []string    `json:"reverse_dns,omitempty"`
	}

	// HopTable is ordered by hop number
	HopTable []HopResult

	// Source contains result source info
	Source struct {
		IP       netip.Addr `json:"ip"`
		Port     uint16     `json:"port"`
		PublicIP string     `json:"public_ip,omitempty"`
	}

	// Destination contains result destination info
	Destination struct {
		IP         netip.Addr `json:"ip"`
		Port       uint16     `json:"port"`
		ReverseDns []string   `json:"reverse_dns,omitempty"`
	}

	// Params contains request param info
	Params struct {
		Hostname    string `json:"hostname"`
		Port        int    `json:"port"`
		MaxHops     int    `json:"max_hops"`
		Connections int    `json:"connections"`
	}
)

// NewResults returns an empty result set with a fresh id. The id is a
// base64 encoded UUID, shorter than the canonical form.
func NewResults(params Params) *Results {
	id := uuid.New()
	return &Results{ID: base64.RawURLEncoding.EncodeToString(id[:]), Params: params}
}

// Message renders the hop the way it is shown to users
func (h HopResult) Message() string {
	switch {
	case h.Status == StatusSkipped:
		return fmt.Sprintf("Hop %d skipped", h.Hop)
	case h.Responder == nil:
		return fmt.Sprintf("Hop %d timed out", h.Hop)
	case h.RTTMs == nil:
		return fmt.Sprintf("Hop %d via %s", h.Hop, h.Responder)
	default:
		return fmt.Sprintf("Hop %d via %s (%.2fms)", h.Hop, h.Responder, *h.RTTMs)
	}
}

// Terminal reports whether the hop ended the path
func (h HopResult) Terminal() bool {
	return h.Status == StatusUnreachable
}

// Responded returns the number of hops that carry a responder address
func (t HopTable) Responded() int {
	n := 0
	for _, h := range t {
		if h.Responder != nil {
			n++
		}
	}
	return n
}

func (r *Results) Normalize() {
	if len(r.Runs) == 0 {
		r.Hops = HopsStats{}
		return
	}
	// build hops stats
	var hopCounts []int
	for _, run := range r.Runs {
		hopCount := 0
		for i, hop := range run.Hops {
			if hop.Responder != nil {
				hopCount = i + 1
			}
		}
		hopCounts = append(hopCounts, hopCount)
	}
	var hopsMin, hopsMax int
	var totalHopCount int
	for _, hopsCount := range hopCounts {
		if hopsCount < hopsMin || hopsMin == 0 {
			hopsMin = hopsCount
		}
		if hopsCount > hopsMax {
			hopsMax = hopsCount
		}
		totalHopCount += hopsCount
	}

	r.Hops.Avg = float64(totalHopCount) / float64(len(hopCounts))
	r.Hops.Min = hopsMin
	r.Hops.Max = hopsMax
}
