// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import "fmt"

// BucketCount is the number of hash buckets of the identity graph (hash(asid) % 100).
const BucketCount = 100

// AssignBuckets splits the bucket space into contiguous groups, one per worker.
// Group sizes differ by at most one; the first BucketCount%workers groups are larger.
// More workers than buckets are clamped to one bucket per worker.
func AssignBuckets(workers int) ([][]int, error) {
	if workers < 1 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workers)
	}
	if workers > BucketCount {
		workers = BucketCount
	}

	base := BucketCount / workers
	extra := BucketCount % workers

	groups := make([][]int, workers)
	next := 0
	for w := range groups {
		size := base
		if w < extra {
			size++
		}
		g := make([]int, size)
		for i := range g {
			g[i] = next
			next++
		}
		groups[w] = g
	}
	return groups, nil
}
