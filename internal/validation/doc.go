// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is built once and shared. Besides the built-in
// tags it registers:
//
//   - lookalike_mode: model, simple_all or simple_any
//   - size_tier: one of the lookalike size options
//   - field_weights: a map of non-empty field names to finite, non-negative weights
//
// ValidateStruct returns nil or a *RequestValidationError whose messages are
// readable without the struct definition at hand:
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    logger.Warn().Interface("fields", verr.Fields()).Msg("Rejected request")
//	}
//
// ValidateJob applies the job rules used before a job row is stored and
// by the request consumer.
package validation
