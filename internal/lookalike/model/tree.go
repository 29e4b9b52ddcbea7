// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package model

import "sort"

// Node is one split or leaf of a regression tree.
// Numeric splits send x <= Threshold left; categorical splits send codes in
// LeftSet (sorted) left. Unseen categories always go right.
type Node struct {
	Leaf        bool
	Value       float64
	Feature     int
	Categorical bool
	Threshold   float64
	LeftSet     []int
	Left        int
	Right       int
}

// Tree is a flattened regression tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if n.goesLeft(x[n.Feature]) {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (n *Node) goesLeft(v float64) bool {
	if !n.Categorical {
		return v <= n.Threshold
	}
	code := int(v)
	if code == unseenCategory {
		return false
	}
	j := sort.SearchInts(n.LeftSet, code)
	return j < len(n.LeftSet) && n.LeftSet[j] == code
}

// treeBuilder fits one tree to residuals with squared loss.
type treeBuilder struct {
	x        [][]float64
	r        []float64
	kinds    []FeatureKind
	maxDepth int
	minLeaf  int
	scale    float64
	nodes    []Node
}

type split struct {
	gain      float64
	feature   int
	threshold float64
	leftSet   []int
	left      []int
	right     []int
}

func (b *treeBuilder) build(idx []int) Tree {
	b.nodes = b.nodes[:0]
	b.grow(idx, 0)
	return Tree{Nodes: append([]Node(nil), b.nodes...)}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	pos := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	if depth >= b.maxDepth || len(idx) < 2*b.minLeaf {
		b.nodes[pos] = b.leaf(idx)
		return pos
	}
	best, ok := b.bestSplit(idx)
	if !ok {
		b.nodes[pos] = b.leaf(idx)
		return pos
	}

	left := b.grow(best.left, depth+1)
	right := b.grow(best.right, depth+1)
	b.nodes[pos] = Node{
		Feature:     best.feature,
		Categorical: b.kinds[best.feature] == Categorical,
		Threshold:   best.threshold,
		LeftSet:     best.leftSet,
		Left:        left,
		Right:       right,
	}
	return pos
}

func (b *treeBuilder) leaf(idx []int) Node {
	var sum float64
	for _, i := range idx {
		sum += b.r[i]
	}
	v := 0.0
	if len(idx) > 0 {
		v = sum / float64(len(idx))
	}
	return Node{Leaf: true, Value: v * b.scale}
}

func (b *treeBuilder) bestSplit(idx []int) (split, bool) {
	var total float64
	for _, i := range idx {
		total += b.r[i]
	}
	n := float64(len(idx))
	parent := total * total / n

	best := split{gain: 1e-12}
	found := false
	for f := range b.kinds {
		var s split
		var ok bool
		if b.kinds[f] == Categorical {
			s, ok = b.categoricalSplit(idx, f, total, parent)
		} else {
			s, ok = b.numericSplit(idx, f, total, parent)
		}
		if ok && s.gain > best.gain {
			best = s
			found = true
		}
	}
	return best, found
}

func (b *treeBuilder) numericSplit(idx []int, f int, total, parent float64) (split, bool) {
	order := append([]int(nil), idx...)
	sort.SliceStable(order, func(i, j int) bool { return b.x[order[i]][f] < b.x[order[j]][f] })

	n := len(order)
	var leftSum float64
	bestGain := 0.0
	bestAt := -1
	for i := 0; i < n-1; i++ {
		leftSum += b.r[order[i]]
		nl := i + 1
		nr := n - nl
		if nl < b.minLeaf || nr < b.minLeaf {
			continue
		}
		if b.x[order[i]][f] == b.x[order[i+1]][f] {
			continue
		}
		rightSum := total - leftSum
		gain := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr) - parent
		if gain > bestGain {
			bestGain = gain
			bestAt = i
		}
	}
	if bestAt < 0 {
		return split{}, false
	}
	lo, hi := b.x[order[bestAt]][f], b.x[order[bestAt+1]][f]
	return split{
		gain:      bestGain,
		feature:   f,
		threshold: lo + (hi-lo)/2,
		left:      append([]int(nil), order[:bestAt+1]...),
		right:     append([]int(nil), order[bestAt+1:]...),
	}, true
}

// categoricalSplit orders categories by mean residual and scans prefix splits.
func (b *treeBuilder) categoricalSplit(idx []int, f int, total, parent float64) (split, bool) {
	type bucket struct {
		code  int
		sum   float64
		count int
	}
	byCode := make(map[int]*bucket)
	for _, i := range idx {
		code := int(b.x[i][f])
		bk, ok := byCode[code]
		if !ok {
			bk = &bucket{code: code}
			byCode[code] = bk
		}
		bk.sum += b.r[i]
		bk.count++
	}
	if len(byCode) < 2 {
		return split{}, false
	}
	buckets := make([]*bucket, 0, len(byCode))
	for _, bk := range byCode {
		buckets = append(buckets, bk)
	}
	sort.Slice(buckets, func(i, j int) bool {
		mi := buckets[i].sum / float64(buckets[i].count)
		mj := buckets[j].sum / float64(buckets[j].count)
		if mi != mj {
			return mi < mj
		}
		return buckets[i].code < buckets[j].code
	})

	n := len(idx)
	var leftSum float64
	nl := 0
	bestGain := 0.0
	bestAt := -1
	for i := 0; i < len(buckets)-1; i++ {
		leftSum += buckets[i].sum
		nl += buckets[i].count
		nr := n - nl
		if nl < b.minLeaf || nr < b.minLeaf {
			continue
		}
		rightSum := total - leftSum
		gain := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr) - parent
		if gain > bestGain {
			bestGain = gain
			bestAt = i
		}
	}
	if bestAt < 0 {
		return split{}, false
	}

	set := make([]int, 0, bestAt+1)
	inLeft := make(map[int]bool, bestAt+1)
	for _, bk := range buckets[:bestAt+1] {
		// Rows with unseen categories cannot be routed left at prediction time.
		if bk.code == unseenCategory {
			continue
		}
		set = append(set, bk.code)
		inLeft[bk.code] = true
	}
	if len(set) == 0 {
		return split{}, false
	}
	sort.Ints(set)

	var left, right []int
	for _, i := range idx {
		if inLeft[int(b.x[i][f])] {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < b.minLeaf || len(right) < b.minLeaf {
		return split{}, false
	}
	return split{gain: bestGain, feature: f, leftSet: set, left: left, right: right}, true
}
