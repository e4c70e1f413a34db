// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package publicip

import "time"

// MaxTries is the maximum amount of tries to attempt to one service.
const MaxTries = 3

// CacheExpiration is how long a fetched address is reused
const CacheExpiration = 2 * time.Hour

// Timeout sets the time limit of collecting results from different services.
var Timeout = 2 * time.Second

// ipCheckers answer a plain GET with the caller's address as text
var ipCheckers = []struct {
	url    string
	weight uint
}{
	{"https://icanhazip.com/", 3},         // owned by cloudflare
	{"https://checkip.amazonaws.com/", 3}, // Amazon
	{"https://api.ipify.org/", 2},
	{"https://ipinfo.io/ip", 2},
	{"https://whatismyip.akamai.com/", 1},
	{"https://ifconfig.me/ip", 1},
}
