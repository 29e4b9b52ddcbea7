// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"slices"
	"testing"
)

func TestSelectColumns(t *testing.T) {
	available := []string{"asid", "state", "job_level_name", "company_size", "gender_name", "gender"}

	tests := []struct {
		name   string
		fields []string
		want   []string
	}{
		{
			name:   "exact names",
			fields: []string{"state", "company_size"},
			want:   []string{"company_size", "state"},
		},
		{
			name:   "suffix appended",
			fields: []string{"job_level"},
			want:   []string{"job_level_name"},
		},
		{
			name:   "suffix stripped",
			fields: []string{"company_size_name"},
			want:   []string{"company_size"},
		},
		{
			name:   "exact wins over alias",
			fields: []string{"gender"},
			want:   []string{"gender"},
		},
		{
			name:   "unknown fields dropped",
			fields: []string{"income", "state"},
			want:   []string{"state"},
		},
		{
			name:   "aliases collapse to one column",
			fields: []string{"job_level", "job_level_name"},
			want:   []string{"job_level_name"},
		},
		{
			name:   "nothing resolves",
			fields: []string{"income"},
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectColumns(tt.fields, available)
			if !slices.Equal(got, tt.want) {
				t.Errorf("SelectColumns(%v) = %v, want %v", tt.fields, got, tt.want)
			}
		})
	}
}

func TestResolveValue_SameOrderAsColumns(t *testing.T) {
	values := map[string]any{"job_level_name": "executive", "state": "CA"}

	if v, ok := ResolveValue(values, "job_level"); !ok || v != "executive" {
		t.Errorf("ResolveValue(job_level) = %v, %v", v, ok)
	}
	if v, ok := ResolveValue(values, "state_name"); !ok || v != "CA" {
		t.Errorf("ResolveValue(state_name) = %v, %v", v, ok)
	}
	if _, ok := ResolveValue(values, "income"); ok {
		t.Error("ResolveValue(income) should not resolve")
	}
}

func TestJobFieldsSorted(t *testing.T) {
	job := &Job{SignificantFields: map[string]float64{"state": 1, "age": 2, "job_level": 3}}
	want := []string{"age", "job_level", "state"}
	if got := job.Fields(); !slices.Equal(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
}
