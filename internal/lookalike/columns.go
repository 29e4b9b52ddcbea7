// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"sort"
	"strings"
)

const nameSuffix = "_name"

// aliasCandidates lists the names a field may be stored under, in resolution order:
// exact, suffix stripped, suffix appended.
func aliasCandidates(field string) []string {
	out := []string{field}
	if strings.HasSuffix(field, nameSuffix) {
		out = append(out, strings.TrimSuffix(field, nameSuffix))
	} else {
		out = append(out, field+nameSuffix)
	}
	return out
}

// ResolveColumn finds the physical column for a significant field.
func ResolveColumn(field string, available map[string]struct{}) (string, bool) {
	for _, c := range aliasCandidates(field) {
		if _, ok := available[c]; ok {
			return c, true
		}
	}
	return "", false
}

// SelectColumns maps significant fields to identity-graph columns.
// Unknown fields are dropped. The result is sorted and free of duplicates.
func SelectColumns(fields []string, available []string) []string {
	set := make(map[string]struct{}, len(available))
	for _, c := range available {
		set[c] = struct{}{}
	}

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		col, ok := ResolveColumn(f, set)
		if !ok {
			continue
		}
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

// ResolveValue looks up a field's value in a scanned row using the same
// alias order as ResolveColumn.
func ResolveValue(values map[string]any, field string) (any, bool) {
	for _, c := range aliasCandidates(field) {
		if v, ok := values[c]; ok {
			return v, true
		}
	}
	return nil, false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
