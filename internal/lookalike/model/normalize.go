// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package model

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FeatureKind is how a column is encoded before training.
type FeatureKind int

const (
	// Numeric columns are used as-is.
	Numeric FeatureKind = iota
	// Categorical columns are unordered; trees split them on category subsets.
	Categorical
	// Ordered columns are categorical with an explicit value -> rank mapping.
	Ordered
)

func (k FeatureKind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Ordered:
		return "ordered"
	default:
		return fmt.Sprintf("FeatureKind(%d)", int(k))
	}
}

// NormalizationConfig assigns columns to feature kinds. Columns that are not
// listed are treated as Categorical. Recency columns must also be Numeric.
type NormalizationConfig struct {
	Numeric     []string                      `koanf:"numeric" json:"numeric"`
	Categorical []string                      `koanf:"categorical" json:"categorical"`
	Ordered     map[string]map[string]float64 `koanf:"ordered" json:"ordered"`
	Recency     []string                      `koanf:"recency" json:"recency"`
}

// Validate checks that the three kinds are disjoint.
func (c *NormalizationConfig) Validate() error {
	owner := make(map[string]string)
	claim := func(col, kind string) error {
		if prev, ok := owner[col]; ok && prev != kind {
			return fmt.Errorf("%w: %q is both %s and %s", ErrOverlappingKinds, col, prev, kind)
		}
		owner[col] = kind
		return nil
	}
	for _, col := range c.Numeric {
		if err := claim(col, "numeric"); err != nil {
			return err
		}
	}
	for _, col := range c.Categorical {
		if err := claim(col, "categorical"); err != nil {
			return err
		}
	}
	for col, ranks := range c.Ordered {
		if err := claim(col, "ordered"); err != nil {
			return err
		}
		if len(ranks) == 0 {
			return fmt.Errorf("ordered column %q has no ranks", col)
		}
	}
	for _, col := range c.Recency {
		if owner[col] != "numeric" {
			return fmt.Errorf("recency column %q must be numeric", col)
		}
	}
	return nil
}

func (c *NormalizationConfig) kindOf(col string) FeatureKind {
	if _, ok := c.Ordered[col]; ok {
		return Ordered
	}
	for _, n := range c.Numeric {
		if n == col {
			return Numeric
		}
	}
	return Categorical
}

func (c *NormalizationConfig) isRecency(col string) bool {
	for _, r := range c.Recency {
		if r == col {
			return true
		}
	}
	return false
}

// unseenCategory is the code of categories not observed during training.
const unseenCategory = -1

// Feature is the fitted encoder of one column.
type Feature struct {
	Column     string
	Kind       FeatureKind
	Recency    bool
	Ranks      map[string]float64
	Categories map[string]int
	// Fill replaces missing numeric and ordered values.
	Fill float64
	// Min and Max are the observed training range after transformation.
	Min, Max float64
}

// InvertRecency maps a recency value so that more recent is larger: 1/(v+1).
func InvertRecency(v float64) float64 {
	return 1 / (v + 1)
}

// InvertRange inverts recency bounds. Inversion reverses their order, so the
// result is swapped back to keep lo <= hi.
func InvertRange(minV, maxV float64) (lo, hi float64) {
	lo, hi = InvertRecency(minV), InvertRecency(maxV)
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

// token normalizes a categorical value.
func token(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s, s != ""
	case []byte:
		s := strings.ToLower(strings.TrimSpace(string(t)))
		return s, s != ""
	case time.Time:
		return t.Format("2006-01-02"), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return strings.ToLower(fmt.Sprint(t)), true
	}
}

// number parses a numeric column value. Missing values return NaN and no error.
func number(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return math.NaN(), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedValue, t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrMalformedValue, v)
	}
}

// fitFeatures builds encoders from the training rows.
func fitFeatures(columns []string, norm *NormalizationConfig, rows []map[string]any) ([]Feature, error) {
	features := make([]Feature, len(columns))
	for i, col := range columns {
		f := Feature{Column: col, Kind: norm.kindOf(col), Recency: norm.isRecency(col)}
		switch f.Kind {
		case Categorical:
			seen := make(map[string]struct{})
			for _, r := range rows {
				if tok, ok := token(r[col]); ok {
					seen[tok] = struct{}{}
				}
			}
			keys := make([]string, 0, len(seen))
			for k := range seen {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			f.Categories = make(map[string]int, len(keys))
			for code, k := range keys {
				f.Categories[k] = code
			}
		case Ordered:
			f.Ranks = make(map[string]float64, len(norm.Ordered[col]))
			for k, v := range norm.Ordered[col] {
				f.Ranks[strings.ToLower(strings.TrimSpace(k))] = v
			}
			fallthrough
		case Numeric:
			var vals []float64
			for _, r := range rows {
				x, err := f.untransformed(r[col])
				if err != nil || math.IsNaN(x) {
					continue
				}
				vals = append(vals, x)
			}
			f.Fill, f.Min, f.Max = summarize(vals)
			if f.Recency && len(vals) > 0 {
				f.Fill = InvertRecency(f.Fill)
				f.Min, f.Max = InvertRange(f.Min, f.Max)
			}
		}
		features[i] = f
	}
	return features, nil
}

// untransformed converts a value to a number before any recency inversion.
func (f *Feature) untransformed(v any) (float64, error) {
	switch f.Kind {
	case Ordered:
		tok, ok := token(v)
		if !ok {
			return math.NaN(), nil
		}
		if r, ok := f.Ranks[tok]; ok {
			return r, nil
		}
		return math.NaN(), nil
	case Categorical:
		tok, ok := token(v)
		if !ok {
			return unseenCategory, nil
		}
		if code, ok := f.Categories[tok]; ok {
			return float64(code), nil
		}
		return unseenCategory, nil
	default:
		x, err := number(v)
		if err != nil {
			return 0, err
		}
		if f.Recency && x <= -1 {
			return 0, fmt.Errorf("%w: recency %v", ErrMalformedValue, x)
		}
		return x, nil
	}
}

// raw converts a value to the feature's numeric space without filling.
func (f *Feature) raw(v any) (float64, error) {
	x, err := f.untransformed(v)
	if err != nil {
		return 0, err
	}
	if f.Recency && !math.IsNaN(x) {
		x = InvertRecency(x)
	}
	return x, nil
}

// encode returns the feature value used by the trees.
func (f *Feature) encode(v any) (float64, error) {
	x, err := f.raw(v)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", f.Column, err)
	}
	if math.IsNaN(x) {
		return f.Fill, nil
	}
	return x, nil
}

// summarize returns median, min and max.
func summarize(vals []float64) (median, lo, hi float64) {
	if len(vals) == 0 {
		return 0, 0, 0
	}
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		median = s[n/2]
	} else {
		median = (s[n/2-1] + s[n/2]) / 2
	}
	return median, s[0], s[n-1]
}
