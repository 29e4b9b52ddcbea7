// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package validation

import (
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
)

// JobSpec holds the user-supplied fields of a lookalike job.
type JobSpec struct {
	ID                string             `validate:"required,max=36"`
	UserID            int64              `validate:"gt=0"`
	SourceID          string             `validate:"required,max=36"`
	Mode              string             `validate:"required,lookalike_mode"`
	SizeTier          string             `validate:"required,size_tier"`
	SignificantFields map[string]float64 `validate:"required,min=1,field_weights"`
}

// ValidateJob checks a job before it is stored. Returns nil or a
// *RequestValidationError.
func ValidateJob(job *lookalike.Job) error {
	spec := JobSpec{
		ID:                job.ID,
		UserID:            job.UserID,
		SourceID:          job.SourceID,
		Mode:              string(job.Mode),
		SizeTier:          string(job.SizeTier),
		SignificantFields: job.SignificantFields,
	}
	if verr := ValidateStruct(&spec); verr != nil {
		return verr
	}
	return nil
}
