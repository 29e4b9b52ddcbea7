// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package query

import (
	"fmt"
	"strings"
)

// WhereBuilder accumulates AND-ed conditions and their bind arguments.
//
//	wb := query.AddIn(query.NewWhereBuilder(), "hash(asid) % 100", []int{0, 1, 2})
//	wb.AddAnyNotNull([]string{"state", "job_level"})
//	where, args := wb.Build()
//	// WHERE hash(asid) % 100 IN (?, ?, ?) AND ("state" IS NOT NULL OR "job_level" IS NOT NULL)
type WhereBuilder struct {
	clauses []string
	args    []any
}

// NewWhereBuilder returns an empty builder.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{}
}

// AddClause adds a raw condition with its arguments.
func (wb *WhereBuilder) AddClause(clause string, args ...any) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddIn adds "expr IN (...)". An empty list matches nothing.
func AddIn[T any](wb *WhereBuilder, expr string, values []T) *WhereBuilder {
	if len(values) == 0 {
		wb.clauses = append(wb.clauses, "FALSE")
		return wb
	}
	wb.clauses = append(wb.clauses, fmt.Sprintf("%s IN (%s)", expr, Placeholders(len(values))))
	for _, v := range values {
		wb.args = append(wb.args, v)
	}
	return wb
}

// AddNotIn adds "expr NOT IN (...)". An empty list is skipped.
func AddNotIn[T any](wb *WhereBuilder, expr string, values []T) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	wb.clauses = append(wb.clauses, fmt.Sprintf("%s NOT IN (%s)", expr, Placeholders(len(values))))
	for _, v := range values {
		wb.args = append(wb.args, v)
	}
	return wb
}

// AddAllNotNull requires every column to be non-null.
func (wb *WhereBuilder) AddAllNotNull(columns []string) *WhereBuilder {
	for _, c := range columns {
		wb.clauses = append(wb.clauses, QuoteIdent(c)+" IS NOT NULL")
	}
	return wb
}

// AddAnyNotNull requires at least one column to be non-null.
func (wb *WhereBuilder) AddAnyNotNull(columns []string) *WhereBuilder {
	if len(columns) == 0 {
		return wb
	}
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = QuoteIdent(c) + " IS NOT NULL"
	}
	wb.clauses = append(wb.clauses, "("+strings.Join(parts, " OR ")+")")
	return wb
}

// Build returns the WHERE clause (empty when there are no conditions) and args.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(wb.clauses, " AND "), wb.args
}

// Placeholders returns n comma-separated "?".
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// QuoteIdent quotes an identifier for DuckDB and PostgreSQL.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SelectList quotes and joins column names.
func SelectList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
