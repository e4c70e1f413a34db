// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package main provides the pathprobe HTTP server binary
package main

import "github.com/DataDog/datadog-pathprobe/cmd"

func main() {
	cmd.ExecuteServer()
}
