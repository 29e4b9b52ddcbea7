// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package cache holds the two caches of the lookalike filler.
//
// PartitionStore is a BadgerDB-backed store of finished partition results.
// A job that is redelivered after a crash or a retryable failure loads the
// partitions it already scored instead of scanning them again. Entries expire
// after a TTL and are dropped once the job completes.
//
//	store, err := cache.OpenPartitionStore(dir, 48*time.Hour)
//	res, ok, err := store.LoadPartition(jobID, 3)
//
// TTL is a small in-memory map with per-entry expiry, used by the status
// server to absorb polling bursts.
package cache
