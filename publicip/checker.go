// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package publicip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	externalip "github.com/glendc/go-external-ip"
)

var errBadRequest = errors.New("bad request")

// checkerSource is a consensus voter asking one IP checker service. It
// retries transient failures up to MaxTries times.
type checkerSource struct {
	client *http.Client
	url    string
}

var _ externalip.Source = &checkerSource{}

// IP implements externalip.Source
func (s *checkerSource) IP(timeout time.Duration, logger *log.Logger, protocol uint) (net.IP, error) {
	client := s.client
	if client == nil {
		client = &http.Client{Transport: transportFor(protocol)}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var lastErr error
	for try := 0; try < MaxTries; try++ {
		ip, err := s.fetch(ctx, client)
		if err == nil {
			return ip, nil
		}
		lastErr = err
		if errors.Is(err, errBadRequest) || ctx.Err() != nil {
			break
		}
		if logger != nil {
			logger.Printf("[WARN] %s try %d failed: %s", s.url, try+1, err)
		}
	}
	return nil, lastErr
}

func (s *checkerSource) fetch(ctx context.Context, client *http.Client) (net.IP, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch req: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, fmt.Errorf("%s answered %d: %w", s.url, resp.StatusCode, errBadRequest)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s answered %d", s.url, resp.StatusCode)
	}

	tb := strings.TrimSpace(string(body))
	ip := net.ParseIP(tb)
	if ip == nil {
		return nil, fmt.Errorf("IP address not valid: %q", tb)
	}
	return ip, nil
}

// transportFor pins the dialer to one IP family so the checker sees the
// address of that family
func transportFor(protocol uint) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	network := "tcp"
	switch protocol {
	case 4:
		network = "tcp4"
	case 6:
		network = "tcp6"
	}
	dialer := &net.Dialer{}
	t.DialContext = func(ctx context.Context, _, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	return t
}
