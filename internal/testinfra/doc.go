// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package testinfra starts Docker containers for integration tests with
// testcontainers-go. Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/repository/... ./internal/notify/...
//
// Tests call SkipIfNoDocker first so the tag is safe on machines without
// Docker.
package testinfra
