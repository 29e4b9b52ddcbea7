// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package config loads the lookalike filler configuration with koanf.
//
// Sources are layered, later ones winning:
//
//  1. Struct defaults (defaultConfig)
//  2. YAML file from CONFIG_PATH, ./config.yaml or /etc/lookalike/config.yaml
//  3. Environment variables listed in envMappings
//
// Example config.yaml:
//
//	database:
//	  path: /data/identity.duckdb
//	  identity_table: enrichment_users
//	postgres:
//	  dsn: postgres://filler:secret@db:5432/allsource?sslmode=disable
//	nats:
//	  url: nats://nats:4222
//	lookalike:
//	  workers: 8
//	  worker_timeout: 2h
//	  normalization:
//	    numeric: [age, income_range]
//	    recency: [last_purchase_days]
//	    ordered:
//	      seniority: {entry: 1, manager: 2, director: 3, executive: 4}
//
// Environment variables use flat names (POSTGRES_DSN, LOOKALIKE_WORKERS,
// TRAINING_ROUNDS). Unlisted variables are ignored. List values such as
// LOOKALIKE_NUMERIC accept comma-separated strings.
//
// Validate runs one validator per section and fails on the first error.
// Optional integrations (Redis, object store, status server) are only
// validated when enabled.
package config
