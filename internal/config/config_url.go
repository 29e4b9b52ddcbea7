// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

func validateNATSURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222)")
	}
	return nil
}

// validateEndpoint checks an S3 endpoint given as host[:port] without scheme,
// the form minio-go expects.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if strings.Contains(endpoint, "://") {
		return fmt.Errorf("endpoint must not include a scheme, got %q", endpoint)
	}
	if strings.ContainsAny(endpoint, "/?#") {
		return fmt.Errorf("endpoint must be host[:port], got %q", endpoint)
	}
	if strings.Contains(endpoint, ":") {
		if _, _, err := net.SplitHostPort(endpoint); err != nil {
			return fmt.Errorf("endpoint %q: %w", endpoint, err)
		}
	}
	return nil
}

// RedactDSN hides the password of a connection URL for logging.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
