// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package sockopt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/DataDog/datadog-pathprobe/log"
)

var errAncillaryUnsupported = errors.New("per-packet ancillary data is not supported on this platform")

var downgradeWarning sync.Once

// Conn is a UDP socket that applies options pending on the send context
// as ancillary data.
type Conn struct {
	pc          *net.UDPConn
	ancillary   atomic.Bool
	onDowngrade func(error)

	// socket-wide IPv4 fragmentation mode, one of the df* values
	df   atomic.Int32
	dfMu sync.Mutex
}

const (
	dfKernelDefault int32 = iota
	dfOn
	dfOff
)

// ConnOption configures a Conn
type ConnOption func(*Conn)

// WithoutAncillary makes the Conn behave as on a platform lacking
// per-packet ancillary sends.
func WithoutAncillary() ConnOption {
	return func(c *Conn) {
		c.ancillary.Store(false)
	}
}

// WithDowngradeHook registers fn to run for every send whose options could
// not be applied
func WithDowngradeHook(fn func(error)) ConnOption {
	return func(c *Conn) {
		c.onDowngrade = fn
	}
}

// NewConn wraps an existing UDP socket
func NewConn(pc *net.UDPConn, opts ...ConnOption) *Conn {
	c := &Conn{pc: pc}
	c.ancillary.Store(ancillarySupported)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Listen opens a UDP socket on address. With dontFragment set, the socket
// refuses to fragment outgoing datagrams, which keeps every probe whole until
// the router that answers it.
func Listen(ctx context.Context, network, address string, dontFragment bool, opts ...ConnOption) (*Conn, error) {
	lc := net.ListenConfig{}
	if dontFragment {
		lc.Control = func(network, address string, rc syscall.RawConn) error {
			var serr error
			err := rc.Control(func(fd uintptr) {
				serr = setDontFragment(fd, network)
			})
			if err != nil {
				return err
			}
			return serr
		}
	}
	pc, err := lc.ListenPacket(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s %s: %w", network, address, err)
	}
	udp, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	c := NewConn(udp, opts...)
	if dontFragment {
		c.df.Store(dfOn)
	}
	return c, nil
}

// Ancillary reports whether the Conn still sends options as ancillary data
func (c *Conn) Ancillary() bool {
	return c.ancillary.Load()
}

// WriteToContext sends b to dst, applying any options pending on ctx. When
// they cannot be applied the datagram is sent with the socket defaults and
// the deposit is flagged so SendWithOptions reports ErrDowngraded.
func (c *Conn) WriteToContext(ctx context.Context, b []byte, dst netip.AddrPort) (int, error) {
	p := pendingFrom(ctx)
	opts, ok := p.take()
	if !ok {
		return c.pc.WriteToUDPAddrPort(b, dst)
	}

	err := errAncillaryUnsupported
	if c.ancillary.Load() {
		cerr := c.matchDontFragment(dst.Addr(), opts.DontFragment)
		var oob []byte
		if cerr == nil {
			oob, cerr = controlMessage(dst.Addr(), opts)
		}
		if cerr == nil {
			n, _, werr := c.pc.WriteMsgUDPAddrPort(b, oob, dst)
			if werr == nil || !isUnsupported(werr) {
				return n, werr
			}
			cerr = werr
		}
		c.ancillary.Store(false)
		err = cerr
	}
	c.downgrade(err)
	p.downgraded.Store(true)
	return c.pc.WriteToUDPAddrPort(b, dst)
}

// matchDontFragment switches the socket-wide IPv4 fragmentation mode to
// want. IPv4 has no per-datagram DF control message, IPv6 sends carry one.
func (c *Conn) matchDontFragment(dst netip.Addr, want bool) error {
	if !dst.Unmap().Is4() {
		return nil
	}
	state := dfOff
	if want {
		state = dfOn
	}
	if c.df.Load() == state {
		return nil
	}

	c.dfMu.Lock()
	defer c.dfMu.Unlock()
	if c.df.Load() == state {
		return nil
	}
	rc, err := c.pc.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = setIPv4Fragmentation(fd, want)
	}); err != nil {
		return err
	}
	if serr != nil {
		return fmt.Errorf("setting IPv4 dont-fragment to %t: %w", want, serr)
	}
	c.df.Store(state)
	return nil
}

func (c *Conn) downgrade(err error) {
	downgradeWarning.Do(func() {
		_ = log.Warnf("per-packet socket options unavailable (%v), probes use the socket default TTL", err)
	})
	if c.onDowngrade != nil {
		c.onDowngrade(err)
	}
}

// ReadFromUDPAddrPort reads one datagram from the socket
func (c *Conn) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	return c.pc.ReadFromUDPAddrPort(b)
}

// LocalAddr returns the socket's local address
func (c *Conn) LocalAddr() netip.AddrPort {
	if a, ok := c.pc.LocalAddr().(*net.UDPAddr); ok {
		return a.AddrPort()
	}
	return netip.AddrPort{}
}

func (c *Conn) Close() error {
	return c.pc.Close()
}

func isUnsupported(err error) bool {
	if errors.Is(err, errAncillaryUnsupported) {
		return true
	}
	return isUnsupportedErrno(err)
}
