// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package model

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func syntheticSamples(n int) []Sample {
	levels := []string{"executive", "manager", "staff", "intern"}
	out := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		level := levels[i%len(levels)]
		income := float64(20000 + (i%10)*10000)
		target := income / 200000
		if level == "executive" {
			target += 0.4
		}
		out = append(out, Sample{
			Values: map[string]any{
				"job_level":     level,
				"income":        income,
				"last_seen_day": int64(i % 30),
			},
			Target: target,
		})
	}
	return out
}

func testNorm() NormalizationConfig {
	return NormalizationConfig{
		Numeric:     []string{"income", "last_seen_day"},
		Categorical: []string{"job_level"},
		Recency:     []string{"last_seen_day"},
	}
}

func TestTrainLearnsSignal(t *testing.T) {
	t.Parallel()

	params := DefaultParams()
	params.Rounds = 80
	params.MinSamplesLeaf = 2

	m, err := Train(syntheticSamples(200), []string{"income", "job_level", "last_seen_day"}, testNorm(), params)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	exec, err := m.Predict(map[string]any{"job_level": "Executive ", "income": 90000.0, "last_seen_day": int64(3)})
	if err != nil {
		t.Fatalf("Predict(executive) error = %v", err)
	}
	staff, err := m.Predict(map[string]any{"job_level": "staff", "income": 90000.0, "last_seen_day": int64(3)})
	if err != nil {
		t.Fatalf("Predict(staff) error = %v", err)
	}
	if exec <= staff {
		t.Errorf("executive score %.4f should exceed staff score %.4f", exec, staff)
	}

	if m.Metrics.TestRows == 0 {
		t.Error("expected a holdout split")
	}
	if m.Metrics.TrainRMSE >= 0.2 {
		t.Errorf("TrainRMSE = %.4f, expected the model to fit the signal", m.Metrics.TrainRMSE)
	}
}

func TestTrainDeterministicForSeed(t *testing.T) {
	t.Parallel()

	params := DefaultParams()
	params.Rounds = 30
	cols := []string{"income", "job_level", "last_seen_day"}
	samples := syntheticSamples(120)

	a, err := Train(samples, cols, testNorm(), params)
	if err != nil {
		t.Fatalf("Train(a) error = %v", err)
	}
	b, err := Train(samples, cols, testNorm(), params)
	if err != nil {
		t.Fatalf("Train(b) error = %v", err)
	}

	for i := 0; i < 20; i++ {
		row := samples[i].Values
		pa, _ := a.Predict(row)
		pb, _ := b.Predict(row)
		if pa != pb {
			t.Fatalf("row %d: predictions differ %v vs %v", i, pa, pb)
		}
	}
}

func TestTrainTwoRows(t *testing.T) {
	t.Parallel()

	samples := []Sample{
		{Values: map[string]any{"state": "ca"}, Target: 0.9},
		{Values: map[string]any{"state": "tx"}, Target: 0.1},
	}
	m, err := Train(samples, []string{"state"}, NormalizationConfig{}, DefaultParams())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if m.Metrics.TrainRows != 1 || m.Metrics.TestRows != 1 {
		t.Errorf("split = %d/%d, want 1/1", m.Metrics.TrainRows, m.Metrics.TestRows)
	}
	if _, err := m.Predict(map[string]any{"state": "never-seen"}); err != nil {
		t.Errorf("Predict(unseen) error = %v", err)
	}
}

func TestTrainErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []Sample
		columns []string
		norm    NormalizationConfig
		wantErr error
	}{
		{
			name:    "one sample",
			samples: syntheticSamples(1),
			columns: []string{"income"},
			wantErr: ErrTooFewSamples,
		},
		{
			name:    "no columns",
			samples: syntheticSamples(10),
			wantErr: ErrNoColumns,
		},
		{
			name:    "overlapping kinds",
			samples: syntheticSamples(10),
			columns: []string{"income"},
			norm: NormalizationConfig{
				Numeric:     []string{"income"},
				Categorical: []string{"income"},
			},
			wantErr: ErrOverlappingKinds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Train(tt.samples, tt.columns, tt.norm, DefaultParams())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Train() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPredictMalformedNumeric(t *testing.T) {
	t.Parallel()

	params := DefaultParams()
	params.Rounds = 5
	m, err := Train(syntheticSamples(40), []string{"income", "job_level"}, testNorm(), params)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	_, err = m.Predict(map[string]any{"income": "lots", "job_level": "staff"})
	if !errors.Is(err, ErrMalformedValue) {
		t.Errorf("Predict() error = %v, want ErrMalformedValue", err)
	}

	if _, err := m.Predict(map[string]any{"job_level": "staff"}); err != nil {
		t.Errorf("Predict(missing income) error = %v, want fill value", err)
	}
}

func TestOrderedFeatureUsesRanks(t *testing.T) {
	t.Parallel()

	norm := NormalizationConfig{
		Ordered: map[string]map[string]float64{
			"company_size": {"1-10": 1, "11-50": 2, "51-200": 3, "201+": 4},
		},
	}
	f, err := fitFeatures([]string{"company_size"}, &norm, []map[string]any{
		{"company_size": "1-10"}, {"company_size": "201+"}, {"company_size": nil},
	})
	if err != nil {
		t.Fatalf("fitFeatures() error = %v", err)
	}
	if f[0].Kind != Ordered {
		t.Fatalf("kind = %v, want ordered", f[0].Kind)
	}

	got, err := f[0].encode("51-200")
	if err != nil || got != 3 {
		t.Errorf("encode(51-200) = %v, %v; want 3", got, err)
	}
	got, _ = f[0].encode("unknown")
	if got != f[0].Fill {
		t.Errorf("encode(unknown) = %v, want fill %v", got, f[0].Fill)
	}
}

func TestInvertRangeOrdered(t *testing.T) {
	t.Parallel()

	values := []float64{0, 0.5, 1, 2, 7, 30, 365, 10000}
	for _, a := range values {
		for _, b := range values {
			t.Run(fmt.Sprintf("%v_%v", a, b), func(t *testing.T) {
				lo, hi := InvertRange(a, b)
				if lo > hi {
					t.Errorf("InvertRange(%v, %v) = (%v, %v), want lo <= hi", a, b, lo, hi)
				}
			})
		}
	}
}

func TestRecencyFeatureRange(t *testing.T) {
	t.Parallel()

	norm := NormalizationConfig{Numeric: []string{"days"}, Recency: []string{"days"}}
	f, err := fitFeatures([]string{"days"}, &norm, []map[string]any{
		{"days": 0.0}, {"days": 9.0}, {"days": 4.0},
	})
	if err != nil {
		t.Fatalf("fitFeatures() error = %v", err)
	}
	if f[0].Min > f[0].Max {
		t.Errorf("recency range inverted: min %v > max %v", f[0].Min, f[0].Max)
	}
	if math.Abs(f[0].Max-1) > 1e-12 || math.Abs(f[0].Min-0.1) > 1e-12 {
		t.Errorf("range = [%v, %v], want [0.1, 1]", f[0].Min, f[0].Max)
	}

	if _, err := f[0].encode(-3.0); !errors.Is(err, ErrMalformedValue) {
		t.Errorf("encode(-3) error = %v, want ErrMalformedValue", err)
	}
}
