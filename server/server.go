// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package server exposes sweeps over HTTP
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DataDog/datadog-pathprobe/common"
	"github.com/DataDog/datadog-pathprobe/log"
	"github.com/DataDog/datadog-pathprobe/probe"
	"github.com/DataDog/datadog-pathprobe/result"
	"github.com/DataDog/datadog-pathprobe/session"
)

const shutdownTimeout = 5 * time.Second

// Runner runs one measurement
type Runner interface {
	Run(ctx context.Context, params session.Params) (*result.Results, error)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
}

// Server is the HTTP server for the sweep API
type Server struct {
	runner    Runner
	gatherer  prometheus.Gatherer
	startedAt time.Time
}

// NewServer returns a server running sweeps through runner and serving the
// metrics of gatherer. A nil gatherer serves the default registry.
func NewServer(runner Runner, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{runner: runner, gatherer: gatherer, startedAt: time.Now()}
}

// Handler routes every endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sweep", s.SweepHandler)
	mux.HandleFunc("/health", s.HealthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// SweepHandler handles GET /sweep requests
func (s *Server) SweepHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params, err := parseSweepParams(r)
	if err != nil {
		writeError(w, &probe.SweepError{
			Code:    probe.ErrCodeInvalidRequest,
			Message: fmt.Sprintf("Invalid parameters: %v", err),
			Err:     err,
		})
		return
	}

	results, err := s.runner.Run(r.Context(), params)
	if err != nil {
		writeError(w, probe.ClassifyError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(results); err != nil {
		log.Errorf("failed to encode response: %s", err)
	}
}

// HealthHandler handles GET and HEAD /health requests
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Errorf("failed to encode health response: %s", err)
	}
}

func writeError(w http.ResponseWriter, sweepErr *probe.SweepError) {
	status := http.StatusInternalServerError
	if sweepErr.Code == probe.ErrCodeInvalidRequest {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(probe.ErrorResponse{Code: sweepErr.Code, Message: sweepErr.Message}); err != nil {
		log.Errorf("failed to encode error response: %s", err)
	}
}

// parseSweepParams extracts and validates query parameters from the HTTP request
func parseSweepParams(r *http.Request) (session.Params, error) {
	q := &queryReader{values: r.URL.Query()}

	hostname := q.values.Get("target")
	if hostname == "" {
		return session.Params{}, fmt.Errorf("missing required parameter: target")
	}

	params := session.Params{
		Hostname:              hostname,
		Port:                  q.intIn("port", common.DefaultPort, 1, 65535),
		Connections:           q.intIn("connections", 1, 1, math.MaxUint16),
		Timeout:               time.Duration(q.intIn("timeout", 0, 0, math.MaxInt32)) * time.Millisecond,
		WantV6:                q.bool("ipv6"),
		ReverseDns:            q.bool("reverse-dns"),
		CollectSourcePublicIP: q.bool("source-public-ip"),
	}
	if q.err != nil {
		return session.Params{}, q.err
	}
	return params, nil
}

// Start serves on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Debugf("Starting HTTP server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
