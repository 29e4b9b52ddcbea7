// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package query

import (
	"reflect"
	"testing"
)

func TestWhereBuilder(t *testing.T) {
	tests := []struct {
		name      string
		build     func() *WhereBuilder
		wantWhere string
		wantArgs  []any
	}{
		{
			name:      "empty",
			build:     NewWhereBuilder,
			wantWhere: "",
			wantArgs:  nil,
		},
		{
			name: "buckets and any present",
			build: func() *WhereBuilder {
				wb := NewWhereBuilder()
				AddIn(wb, "hash(asid) % 100", []int{3, 4})
				return wb.AddAnyNotNull([]string{"state", "job_level"})
			},
			wantWhere: `WHERE hash(asid) % 100 IN (?, ?) AND ("state" IS NOT NULL OR "job_level" IS NOT NULL)`,
			wantArgs:  []any{3, 4},
		},
		{
			name: "all present",
			build: func() *WhereBuilder {
				return NewWhereBuilder().AddAllNotNull([]string{"a", "b"})
			},
			wantWhere: `WHERE "a" IS NOT NULL AND "b" IS NOT NULL`,
		},
		{
			name: "empty IN matches nothing",
			build: func() *WhereBuilder {
				return AddIn(NewWhereBuilder(), "asid", []string{})
			},
			wantWhere: "WHERE FALSE",
		},
		{
			name: "not in and raw clause",
			build: func() *WhereBuilder {
				wb := NewWhereBuilder().AddClause("job_id = ?", "job-1")
				return AddNotIn(wb, "asid", []string{"x"})
			},
			wantWhere: "WHERE job_id = ? AND asid NOT IN (?)",
			wantArgs:  []any{"job-1", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := tt.build().Build()
			if where != tt.wantWhere {
				t.Errorf("where = %q, want %q", where, tt.wantWhere)
			}
			if len(args) != 0 || len(tt.wantArgs) != 0 {
				if !reflect.DeepEqual(args, tt.wantArgs) {
					t.Errorf("args = %v, want %v", args, tt.wantArgs)
				}
			}
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("QuoteIdent() = %s", got)
	}
	if got := SelectList([]string{"asid", "state"}); got != `"asid", "state"` {
		t.Errorf("SelectList() = %s", got)
	}
	if Placeholders(0) != "" || Placeholders(3) != "?, ?, ?" {
		t.Error("Placeholders() mismatch")
	}
}
