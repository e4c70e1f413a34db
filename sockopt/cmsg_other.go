// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build !linux

package sockopt

import "net/netip"

const ancillarySupported = false

func controlMessage(_ netip.Addr, _ Options) ([]byte, error) {
	return nil, errAncillaryUnsupported
}

func setDontFragment(_ uintptr, _ string) error {
	return nil
}

func setIPv4Fragmentation(_ uintptr, _ bool) error {
	return errAncillaryUnsupported
}

func isUnsupportedErrno(_ error) bool {
	return false
}
