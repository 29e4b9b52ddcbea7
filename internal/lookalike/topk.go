// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"container/heap"
	"sort"
)

// ranksBefore is the global order: higher score first, then lower asid.
func ranksBefore(a, b ScoredIdentity) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ASID < b.ASID
}

// scoreHeap is a min-heap on the global order; the root is the weakest entry.
type scoreHeap []ScoredIdentity

func (h scoreHeap) Len() int           { return len(h) }
func (h scoreHeap) Less(i, j int) bool { return ranksBefore(h[j], h[i]) }
func (h scoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoreHeap) Push(x any) { *h = append(*h, x.(ScoredIdentity)) }

func (h *scoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopK keeps the K best identities seen so far in O(K) memory.
// It is not safe for concurrent use; each worker owns one.
type TopK struct {
	capacity int
	h        scoreHeap
}

// NewTopK creates a bounded collector. A non-positive capacity keeps nothing.
func NewTopK(capacity int) *TopK {
	if capacity < 0 {
		capacity = 0
	}
	initial := capacity
	if initial > 4096 {
		initial = 4096
	}
	return &TopK{capacity: capacity, h: make(scoreHeap, 0, initial)}
}

// Offer considers one identity. It reports whether the entry was kept.
func (t *TopK) Offer(asid string, score float64) bool {
	if t.capacity == 0 {
		return false
	}
	item := ScoredIdentity{ASID: asid, Score: score}
	if len(t.h) < t.capacity {
		heap.Push(&t.h, item)
		return true
	}
	if !ranksBefore(item, t.h[0]) {
		return false
	}
	t.h[0] = item
	heap.Fix(&t.h, 0)
	return true
}

// Len returns the number of retained entries.
func (t *TopK) Len() int { return len(t.h) }

// Min returns the weakest retained entry.
func (t *TopK) Min() (ScoredIdentity, bool) {
	if len(t.h) == 0 {
		return ScoredIdentity{}, false
	}
	return t.h[0], true
}

// Sorted returns a copy of the retained entries, best first.
func (t *TopK) Sorted() []ScoredIdentity {
	out := make([]ScoredIdentity, len(t.h))
	copy(out, t.h)
	sortRanked(out)
	return out
}

func sortRanked(s []ScoredIdentity) {
	sort.Slice(s, func(i, j int) bool { return ranksBefore(s[i], s[j]) })
}

// Merge returns the k best entries of the union of a and b.
// An asid present in both keeps its higher score. The result does not depend
// on argument order, and merging is associative for a fixed k.
func Merge(a, b []ScoredIdentity, k int) []ScoredIdentity {
	if k <= 0 {
		return nil
	}

	best := make(map[string]float64, len(a)+len(b))
	add := func(items []ScoredIdentity) {
		for _, it := range items {
			if cur, ok := best[it.ASID]; !ok || it.Score > cur {
				best[it.ASID] = it.Score
			}
		}
	}
	add(a)
	add(b)

	out := make([]ScoredIdentity, 0, len(best))
	for asid, score := range best {
		out = append(out, ScoredIdentity{ASID: asid, Score: score})
	}
	sortRanked(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}
