// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// FieldContribution is the audit record of one field for one identity.
type FieldContribution struct {
	Field        string
	RawValue     string
	ValuePct     int
	Importance   int
	Contribution int
}

// SimpleScorer is the deterministic weighted-distribution scorer.
// Fields are evaluated in sorted order; only positive importances count.
type SimpleScorer struct {
	fields       []string
	importance   map[string]int
	distribution FieldDistribution
}

// NewSimpleScorer builds a scorer from integer importance percents and the
// seed audience's field distributions. Distribution keys are normalized once.
func NewSimpleScorer(importance map[string]int, dist FieldDistribution) *SimpleScorer {
	s := &SimpleScorer{
		importance:   make(map[string]int, len(importance)),
		distribution: make(FieldDistribution, len(dist)),
	}
	for f, pct := range importance {
		if pct <= 0 {
			continue
		}
		s.importance[f] = pct
		s.fields = append(s.fields, f)
	}
	sort.Strings(s.fields)

	for f, values := range dist {
		norm := make(map[string]int, len(values))
		for k, v := range values {
			norm[NormalizeToken(k)] = v
		}
		s.distribution[f] = norm
	}
	return s
}

// Fields returns the scored fields in evaluation order.
func (s *SimpleScorer) Fields() []string {
	return s.fields
}

// Score implements Scorer.
func (s *SimpleScorer) Score(row IdentityRow) (float64, error) {
	total, _ := s.evaluate(row, false)
	return float64(total), nil
}

// Explain returns the integer total and the per-field breakdown.
func (s *SimpleScorer) Explain(row IdentityRow) (int, []FieldContribution) {
	return s.evaluate(row, true)
}

func (s *SimpleScorer) evaluate(row IdentityRow, explain bool) (int, []FieldContribution) {
	var parts []FieldContribution
	if explain {
		parts = make([]FieldContribution, 0, len(s.fields))
	}

	total := 0
	for _, f := range s.fields {
		raw, _ := ResolveValue(row.Values, f)
		text := valueString(raw)
		pct := s.lookup(f, text)
		imp := s.importance[f]
		contrib := imp * pct
		total += contrib
		if explain {
			parts = append(parts, FieldContribution{
				Field:        f,
				RawValue:     text,
				ValuePct:     pct,
				Importance:   imp,
				Contribution: contrib,
			})
		}
	}
	return total, parts
}

// lookup resolves a value's percentage: normalized token, simplified token,
// the other bucket, then zero.
func (s *SimpleScorer) lookup(field, raw string) int {
	values := s.distribution[field]
	if values == nil {
		return 0
	}
	if raw != "" {
		if pct, ok := values[NormalizeToken(raw)]; ok {
			return pct
		}
		if pct, ok := values[SimplifyToken(raw)]; ok {
			return pct
		}
	}
	if pct, ok := values[OtherBucket]; ok {
		return pct
	}
	return 0
}

// NormalizeToken lower-cases and trims a value.
func NormalizeToken(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// SimplifyToken reduces a value to lower-case alphanumeric words separated by
// single spaces. Integral numbers lose their fractional part ("50000.0" -> "50000").
func SimplifyToken(v string) string {
	n := NormalizeToken(v)
	if f, err := strconv.ParseFloat(n, 64); err == nil && !math.IsInf(f, 0) && f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}

	var b strings.Builder
	space := false
	for _, r := range n {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// valueString renders a scanned column value as text.
func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format("2006-01-02")
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// ImportancePercents turns arbitrary positive weights into integer percents
// summing to 100 (largest remainder). Non-positive weights are dropped.
func ImportancePercents(weights map[string]float64) map[string]int {
	var sum float64
	for _, w := range weights {
		if w > 0 && !math.IsNaN(w) && !math.IsInf(w, 0) {
			sum += w
		}
	}
	out := make(map[string]int, len(weights))
	if sum == 0 {
		return out
	}

	type rem struct {
		field string
		frac  float64
	}
	var rems []rem
	assigned := 0
	for _, f := range sortedKeys(weights) {
		w := weights[f]
		if !(w > 0) || math.IsInf(w, 0) {
			continue
		}
		exact := w * 100 / sum
		whole := int(math.Floor(exact))
		out[f] = whole
		assigned += whole
		rems = append(rems, rem{field: f, frac: exact - float64(whole)})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < 100 && i < len(rems); i++ {
		out[rems[i].field]++
		assigned++
	}
	return out
}
