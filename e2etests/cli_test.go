// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build e2etest

package e2etests

import (
	"bytes"
	"runtime"
	"strconv"
	"testing"
)

func cliArgs(config testConfig) []string {
	args := []string{
		"sweep",
		"--port", strconv.Itoa(config.port),
		"--connections", strconv.Itoa(config.connections),
		"--timeout", "30s",
	}
	if config.wantV6 {
		args = append(args, "--ipv6")
	}
	if testing.Verbose() {
		args = append(args, "--verbose")
	}
	return append(args, config.hostname)
}

func testCLI(t *testing.T, config testConfig) {
	binary := cliBinary.build(t, "pathprobe", ".")

	var stdout, stderr bytes.Buffer
	cmd := privileged(t, binary, cliArgs(config)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if stderr.Len() > 0 {
		t.Logf("pathprobe stderr:\n%s", stderr.String())
	}
	if err != nil {
		t.Fatalf("Failed to run pathprobe: %v\nStdout: %s", err, stdout.String())
	}
	validateResults(t, stdout.Bytes(), config)
}

func TestLocalhostCLI(t *testing.T) {
	for _, config := range localhostTestConfigs {
		t.Run(config.testName(), func(t *testing.T) {
			if config.wantV6 && runtime.GOOS != "linux" {
				t.Skip("IPv6 tests currently only supported on Linux")
			}
			testCLI(t, config)
		})
	}
}

func TestPublicTargetCLI(t *testing.T) {
	for _, config := range publicTargetTestConfigs {
		t.Run(config.testName(), func(t *testing.T) {
			testCLI(t, config)
		})
	}
}

func TestStridesCLI(t *testing.T) {
	binary := cliBinary.build(t, "pathprobe", ".")
	out, err := privileged(t, binary, "strides").CombinedOutput()
	if err != nil {
		t.Fatalf("strides failed: %v\nOutput: %s", err, string(out))
	}
	if !bytes.Contains(out, []byte("ok\n")) {
		t.Fatalf("default strides should validate, got:\n%s", string(out))
	}
}
