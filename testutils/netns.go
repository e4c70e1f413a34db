// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build linux && test

// Package testutils holds network namespace helpers for tests that need a
// routing table of their own
package testutils

import (
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// NewLoopbackNS creates a network namespace whose only link is lo, brought
// up. The test is skipped when the process may not create namespaces.
func NewLoopbackNS(t testing.TB) netns.NsHandle {
	t.Helper()
	var ns netns.NsHandle
	err := onLockedThread(func(orig netns.NsHandle) error {
		var err error
		ns, err = netns.New()
		if err != nil {
			t.Skipf("cannot create a network namespace: %s", err)
		}
		defer netns.Set(orig)

		lo, err := netlink.LinkByName("lo")
		if err != nil {
			return err
		}
		return netlink.LinkSetUp(lo)
	})
	require.NoError(t, err)
	t.Cleanup(func() { ns.Close() })
	return ns
}

// AddDummyLink creates an up dummy link with the given MTU and address
// inside ns
func AddDummyLink(t testing.TB, ns netns.NsHandle, name string, mtu int, cidr string) {
	t.Helper()
	addr, err := netlink.ParseAddr(cidr)
	require.NoError(t, err)

	err = InNS(ns, func() error {
		link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: name, MTU: mtu}}
		if err := netlink.LinkAdd(link); err != nil {
			return fmt.Errorf("adding %s: %w", name, err)
		}
		if err := netlink.AddrAdd(link, addr); err != nil {
			return fmt.Errorf("addressing %s: %w", name, err)
		}
		return netlink.LinkSetUp(link)
	})
	require.NoError(t, err)
}

// InNS runs fn with the calling thread switched into ns, then switches back
func InNS(ns netns.NsHandle, fn func() error) error {
	return onLockedThread(func(orig netns.NsHandle) error {
		if ns.Equal(orig) {
			return fn()
		}
		if err := netns.Set(ns); err != nil {
			return fmt.Errorf("entering namespace: %w", err)
		}
		fnErr := fn()
		return errors.Join(fnErr, netns.Set(orig))
	})
}

func onLockedThread(fn func(orig netns.NsHandle) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	orig, err := netns.Get()
	if err != nil {
		return err
	}
	defer orig.Close()
	return fn(orig)
}
