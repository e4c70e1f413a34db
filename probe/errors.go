// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package probe

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/probesize"
)

// ErrorCode is a classifiable error code
type ErrorCode string

const (
	// ErrCodeDNS indicates a DNS resolution failure.
	ErrCodeDNS ErrorCode = "DNS"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeConnRefused indicates the peer refused the datagram.
	ErrCodeConnRefused ErrorCode = "CONNREFUSED"
	// ErrCodeHostUnreach indicates the target host is unreachable.
	ErrCodeHostUnreach ErrorCode = "HOSTUNREACH"
	// ErrCodeNetUnreach indicates the target network is unreachable.
	ErrCodeNetUnreach ErrorCode = "NETUNREACH"
	// ErrCodeDenied indicates a permission error or unsupported configuration.
	ErrCodeDenied ErrorCode = "DENIED"
	// ErrCodeInvalidRequest indicates bad parameters from the caller.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrCodeCollision indicates two probes could be confused at one destination.
	ErrCodeCollision ErrorCode = "COLLISION"
	// ErrCodeMessageSize indicates a probe larger than the path allows.
	ErrCodeMessageSize ErrorCode = "MSGSIZE"
	// ErrCodeUnknown is the catch-all for unclassified errors.
	ErrCodeUnknown ErrorCode = "UNKNOWN"
)

// SweepError is a classified error from a sweep
type SweepError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *SweepError) Error() string {
	return e.Message
}

func (e *SweepError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the JSON body returned on error from the HTTP API.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func classified(code ErrorCode, err error) *SweepError {
	return &SweepError{Code: code, Message: err.Error(), Err: err}
}

// ClassifyError inspects an error chain and returns a SweepError with the appropriate code.
func ClassifyError(err error) *SweepError {
	if err == nil {
		return nil
	}

	var sweepErr *SweepError
	if errors.As(err, &sweepErr) {
		return sweepErr
	}

	var dnsErr *common.DNSError
	if errors.As(err, &dnsErr) {
		return classified(ErrCodeDNS, err)
	}

	var invalidTargetErr *common.InvalidTargetError
	if errors.As(err, &invalidTargetErr) {
		return classified(ErrCodeInvalidRequest, err)
	}

	var strideErr *probesize.StrideError
	if errors.As(err, &strideErr) {
		return classified(ErrCodeInvalidRequest, err)
	}

	var collisionErr *CollisionError
	if errors.As(err, &collisionErr) {
		return classified(ErrCodeCollision, err)
	}

	var oversizeErr *probesize.OversizeError
	if errors.As(err, &oversizeErr) {
		return classified(ErrCodeMessageSize, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return classified(ErrCodeTimeout, err)
	}

	var netDNSErr *net.DNSError
	if errors.As(err, &netDNSErr) {
		if netDNSErr.IsTimeout {
			return classified(ErrCodeTimeout, err)
		}
		return classified(ErrCodeDNS, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var errno syscall.Errno
		if errors.As(opErr.Err, &errno) {
			return classifySyscallError(errno, err)
		}
		if opErr.Timeout() {
			return classified(ErrCodeTimeout, err)
		}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return classifySyscallError(errno, err)
	}

	return classified(ErrCodeUnknown, err)
}

func classifySyscallError(errno syscall.Errno, original error) *SweepError {
	switch errno {
	case syscall.ECONNREFUSED:
		return classified(ErrCodeConnRefused, original)
	case syscall.EHOSTUNREACH:
		return classified(ErrCodeHostUnreach, original)
	case syscall.ENETUNREACH:
		return classified(ErrCodeNetUnreach, original)
	case syscall.EACCES, syscall.EPERM:
		return classified(ErrCodeDenied, original)
	case syscall.EMSGSIZE:
		return classified(ErrCodeMessageSize, original)
	case syscall.ETIMEDOUT:
		return classified(ErrCodeTimeout, original)
	default:
		return classified(ErrCodeUnknown, original)
	}
}
