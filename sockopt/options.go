// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package sockopt delivers per-packet IP options (TTL, TOS, DF) to the layer
// that owns the UDP socket. The options ride on the context of a single send:
// the caller deposits them with WithOptions, every intermediate layer passes
// its context along unchanged, and Conn takes them right before the sendmsg.
package sockopt

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/transport"
)

// Options are the IP header fields requested for one outgoing datagram.
// Zero TTL and TOS leave the socket defaults in place.
type Options struct {
	TTL          int
	TOS          int
	DontFragment bool
}

func (o Options) validate() error {
	if o.TTL < 0 || o.TTL > common.MaxTTL {
		return fmt.Errorf("ttl %d out of range [0, %d]", o.TTL, common.MaxTTL)
	}
	if o.TOS < 0 || o.TOS > 0xff {
		return fmt.Errorf("tos %d out of range [0, 255]", o.TOS)
	}
	return nil
}

// ErrDowngraded is returned by SendWithOptions when the datagram went out
// with the socket defaults because its options could not be applied
var ErrDowngraded = errors.New("datagram sent without its per-packet options")

type pendingKey struct{}

// pending is a single-assignment slot: the first Take empties it
type pending struct {
	opts       atomic.Pointer[Options]
	downgraded atomic.Bool
}

func pendingFrom(ctx context.Context) *pending {
	p, _ := ctx.Value(pendingKey{}).(*pending)
	return p
}

func (p *pending) take() (Options, bool) {
	if p == nil {
		return Options{}, false
	}
	o := p.opts.Swap(nil)
	if o == nil {
		return Options{}, false
	}
	return *o, true
}

// WithOptions returns a child context carrying opts for exactly one send.
// Sends on other contexts never observe them.
func WithOptions(ctx context.Context, opts Options) context.Context {
	p := &pending{}
	p.opts.Store(&opts)
	return context.WithValue(ctx, pendingKey{}, p)
}

// Take removes and returns the options pending on ctx. Only the first caller
// for a given deposit gets them.
func Take(ctx context.Context) (Options, bool) {
	return pendingFrom(ctx).take()
}

// SendWithOptions sends b through s with opts applied to the resulting
// datagram when the socket layer supports it. When the socket layer had to
// send without them, the datagram is still out and the error is ErrDowngraded.
func SendWithOptions(ctx context.Context, s transport.Sender, b []byte, dst netip.AddrPort, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	ctx = WithOptions(ctx, opts)
	if err := s.Send(ctx, b, dst); err != nil {
		return err
	}
	if pendingFrom(ctx).downgraded.Load() {
		return fmt.Errorf("%w (ttl %d)", ErrDowngraded, opts.TTL)
	}
	return nil
}
