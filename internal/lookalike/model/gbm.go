// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package model implements the gradient-boosted regression trees that map
// identity attributes to a seed audience's customer value.
//
// Numeric and ordered columns split on thresholds. Unordered categorical
// columns split on category subsets, found by sorting categories by their
// mean residual. Training is deterministic for a fixed Params.Seed.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var (
	ErrTooFewSamples    = errors.New("at least two training samples are required")
	ErrNoColumns        = errors.New("no feature columns")
	ErrOverlappingKinds = errors.New("column assigned to more than one feature kind")
	ErrMalformedValue   = errors.New("malformed feature value")
)

// CurrentVersion is the serialized model format version.
const CurrentVersion = 1

// Params controls boosting.
type Params struct {
	Rounds         int     `koanf:"rounds" json:"rounds"`
	LearningRate   float64 `koanf:"learning_rate" json:"learning_rate"`
	MaxDepth       int     `koanf:"max_depth" json:"max_depth"`
	MinSamplesLeaf int     `koanf:"min_samples_leaf" json:"min_samples_leaf"`
	Subsample      float64 `koanf:"subsample" json:"subsample"`
	TestFraction   float64 `koanf:"test_fraction" json:"test_fraction"`
	Seed           uint64  `koanf:"seed" json:"seed"`
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		Rounds:         200,
		LearningRate:   0.05,
		MaxDepth:       4,
		MinSamplesLeaf: 5,
		Subsample:      0.8,
		TestFraction:   0.2,
		Seed:           42,
	}
}

// Validate checks parameter ranges.
func (p *Params) Validate() error {
	if p.Rounds <= 0 {
		return fmt.Errorf("rounds must be positive, got %d", p.Rounds)
	}
	if p.LearningRate <= 0 || p.LearningRate > 1 {
		return fmt.Errorf("learning_rate must be in (0, 1], got %f", p.LearningRate)
	}
	if p.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d", p.MaxDepth)
	}
	if p.MinSamplesLeaf <= 0 {
		return fmt.Errorf("min_samples_leaf must be positive, got %d", p.MinSamplesLeaf)
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		return fmt.Errorf("subsample must be in (0, 1], got %f", p.Subsample)
	}
	if p.TestFraction < 0 || p.TestFraction >= 1 {
		return fmt.Errorf("test_fraction must be in [0, 1), got %f", p.TestFraction)
	}
	return nil
}

// Sample is one training profile.
type Sample struct {
	Values map[string]any
	Target float64
}

// Metrics records training quality.
type Metrics struct {
	TrainRows    int
	TestRows     int
	SkippedRows  int
	TrainRMSE    float64
	TestRMSE     float64
	TrainedAt    time.Time
	TrainingTime time.Duration
}

// Model is a fitted regressor. It is immutable after Train and safe for
// concurrent Predict calls.
type Model struct {
	Version  int
	Columns  []string
	Features []Feature
	Base     float64
	Trees    []Tree
	Params   Params
	Metrics  Metrics
}

// Train fits a model on samples using the given columns.
func Train(samples []Sample, columns []string, norm NormalizationConfig, params Params) (*Model, error) {
	start := time.Now()
	if len(samples) < 2 {
		return nil, ErrTooFewSamples
	}
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}
	if err := norm.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15))
	trainIdx, testIdx := holdout(len(samples), params.TestFraction, rng)

	trainValues := make([]map[string]any, len(trainIdx))
	for i, idx := range trainIdx {
		trainValues[i] = samples[idx].Values
	}
	features, err := fitFeatures(columns, &norm, trainValues)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Version:  CurrentVersion,
		Columns:  append([]string(nil), columns...),
		Features: features,
		Params:   params,
	}

	var x [][]float64
	var y []float64
	skipped := 0
	for _, idx := range trainIdx {
		vec, err := m.vector(samples[idx].Values)
		if err != nil {
			skipped++
			continue
		}
		x = append(x, vec)
		y = append(y, samples[idx].Target)
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: every training row was malformed", ErrTooFewSamples)
	}

	m.boost(x, y, rng)

	m.Metrics = Metrics{
		TrainRows:   len(x),
		SkippedRows: skipped,
		TrainRMSE:   m.rmse(x, y),
		TrainedAt:   time.Now().UTC(),
	}
	var tx [][]float64
	var ty []float64
	for _, idx := range testIdx {
		vec, err := m.vector(samples[idx].Values)
		if err != nil {
			m.Metrics.SkippedRows++
			continue
		}
		tx = append(tx, vec)
		ty = append(ty, samples[idx].Target)
	}
	m.Metrics.TestRows = len(tx)
	m.Metrics.TestRMSE = m.rmse(tx, ty)
	m.Metrics.TrainingTime = time.Since(start)
	return m, nil
}

// holdout shuffles row indices and splits off at least one test row.
func holdout(n int, fraction float64, rng *rand.Rand) (train, test []int) {
	perm := rng.Perm(n)
	nTest := int(math.Round(float64(n) * fraction))
	if fraction > 0 && nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}
	return perm[nTest:], perm[:nTest]
}

func (m *Model) boost(x [][]float64, y []float64, rng *rand.Rand) {
	var sum float64
	for _, v := range y {
		sum += v
	}
	m.Base = sum / float64(len(y))

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = m.Base
	}

	kinds := make([]FeatureKind, len(m.Features))
	for i, f := range m.Features {
		kinds[i] = f.Kind
	}
	minLeaf := m.Params.MinSamplesLeaf
	if limit := max(1, len(y)/4); minLeaf > limit {
		minLeaf = limit
	}

	r := make([]float64, len(y))
	b := &treeBuilder{
		x:        x,
		r:        r,
		kinds:    kinds,
		maxDepth: m.Params.MaxDepth,
		minLeaf:  minLeaf,
		scale:    m.Params.LearningRate,
	}

	m.Trees = make([]Tree, 0, m.Params.Rounds)
	for round := 0; round < m.Params.Rounds; round++ {
		for i := range r {
			r[i] = y[i] - pred[i]
		}
		tree := b.build(subsample(len(y), m.Params.Subsample, rng))
		m.Trees = append(m.Trees, tree)
		for i := range pred {
			pred[i] += tree.predict(x[i])
		}
	}
}

func subsample(n int, fraction float64, rng *rand.Rand) []int {
	if fraction >= 1 || n < 4 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	k := max(2, int(float64(n)*fraction))
	perm := rng.Perm(n)
	return perm[:k]
}

// vector encodes a row in training column order.
func (m *Model) vector(values map[string]any) ([]float64, error) {
	vec := make([]float64, len(m.Features))
	for i := range m.Features {
		v, err := m.Features[i].encode(values[m.Features[i].Column])
		if err != nil {
			return nil, err
		}
		vec[i] = v
	}
	return vec, nil
}

func (m *Model) predictVector(x []float64) float64 {
	out := m.Base
	for i := range m.Trees {
		out += m.Trees[i].predict(x)
	}
	return out
}

// Predict scores one row keyed by column name.
func (m *Model) Predict(values map[string]any) (float64, error) {
	x, err := m.vector(values)
	if err != nil {
		return 0, err
	}
	return m.predictVector(x), nil
}

func (m *Model) rmse(x [][]float64, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for i := range x {
		d := m.predictVector(x[i]) - y[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(x)))
}
