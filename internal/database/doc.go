// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package database is the DuckDB layer of the lookalike filler.
//
// It reads the identity graph (enrichment_users by default) and owns the
// per-job score table. DB satisfies lookalike.IdentityGraph and
// lookalike.ScoreStore.
//
// # Files
//
//   - database.go: lifecycle and score table creation
//   - database_connection.go: pool sizing and error classification
//   - database_utils.go: checkpoints and query timeouts
//   - identity_graph.go: column discovery, attribute lookups, partition scans
//   - scores.go: score replacement and ranked reads
//
// # Partitioning
//
// Identities are bucketed with hash(asid) % 100. A scan reads the buckets
// assigned to one worker on a connection of its own and delivers rows in
// blocks, so memory stays bounded by the block size.
//
//	n, err := db.Scan(ctx, lookalike.ScanRequest{
//		Columns:   []string{"state", "job_level"},
//		Buckets:   []int{0, 4, 8},
//		Filter:    lookalike.FilterAnyPresent,
//		BlockSize: 10000,
//	}, func(block []lookalike.IdentityRow) error {
//		return score(block)
//	})
//
// A failure after the stream opened is reported as
// lookalike.ErrStreamInterrupted; the rows delivered before it stay valid.
//
// # Values
//
// Column values are normalized to nil, string, bool, int64, float64 or
// time.Time before they reach the scorers.
package database
