// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package repository is the PostgreSQL side of the lookalike filler, built on
// gorm.
//
// Repository implements the relational interfaces of package lookalike:
//
//   - lookalike.JobStore: job rows in audience_lookalikes, including the
//     relative progress counters workers update concurrently
//   - lookalike.SeedSource and lookalike.DistributionSource: matched seed
//     members and the per-source field distributions
//   - lookalike.UserResolver: asid to enrichment user lookup and the
//     audience_lookalikes_persons output table
//
// Progress counters are only ever changed with "column = column + delta" so
// concurrent writers never overwrite each other.
//
// Tests run against in-memory SQLite; Open targets PostgreSQL.
package repository
