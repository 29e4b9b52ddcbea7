// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package query builds parameterized SQL fragments for the identity graph.
//
// Column names come from information_schema and are always quoted with
// QuoteIdent; values are always bound as arguments.
package query
