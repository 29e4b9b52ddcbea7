// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package validation

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
)

// ===================================================================================================
// Singleton Validator Tests
// ===================================================================================================

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

// ===================================================================================================
// ValidateStruct Tests
// ===================================================================================================

type requestStruct struct {
	JobID    string `validate:"required,max=36"`
	Attempts int    `validate:"min=0,max=10"`
	Mode     string `validate:"omitempty,lookalike_mode"`
	Size     string `validate:"omitempty,size_tier"`
}

func TestValidateStruct_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input requestStruct
	}{
		{"minimal", requestStruct{JobID: "job-1"}},
		{"model mode", requestStruct{JobID: "job-1", Mode: "model"}},
		{"simple any with size", requestStruct{JobID: "job-1", Mode: "simple_any", Size: "broad"}},
		{"max attempts", requestStruct{JobID: "job-1", Attempts: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStruct(&tt.input); err != nil {
				t.Errorf("ValidateStruct() unexpected error = %v", err)
			}
		})
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		input     requestStruct
		wantField string
		wantTag   string
	}{
		{"missing job id", requestStruct{}, "JobID", "required"},
		{"job id too long", requestStruct{JobID: strings.Repeat("x", 37)}, "JobID", "max"},
		{"negative attempts", requestStruct{JobID: "j", Attempts: -1}, "Attempts", "min"},
		{"too many attempts", requestStruct{JobID: "j", Attempts: 11}, "Attempts", "max"},
		{"unknown mode", requestStruct{JobID: "j", Mode: "lookalike"}, "Mode", "lookalike_mode"},
		{"unknown size", requestStruct{JobID: "j", Size: "huge"}, "Size", "size_tier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if err == nil {
				t.Fatal("ValidateStruct() should have returned an error")
			}

			found := false
			for _, e := range err.Errors() {
				if e.Field() == tt.wantField && e.Tag() == tt.wantTag {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Expected error on field %s with tag %s, got: %v", tt.wantField, tt.wantTag, err)
			}
		})
	}
}

func TestRequestValidationError_Fields(t *testing.T) {
	err := ValidateStruct(&requestStruct{Attempts: 20})
	if err == nil {
		t.Fatal("Expected validation error")
	}

	fields := err.Fields()
	if len(fields) != 2 {
		t.Fatalf("Fields() = %v, want 2 entries", fields)
	}
	if fields["JobID"] != "JobID is required" {
		t.Errorf("JobID message = %q", fields["JobID"])
	}
	if fields["Attempts"] != "Attempts must be at most 10" {
		t.Errorf("Attempts message = %q", fields["Attempts"])
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("Error() = %q, want joined messages", err.Error())
	}
}

// ===================================================================================================
// Job Validation Tests
// ===================================================================================================

func validJob() *lookalike.Job {
	return &lookalike.Job{
		ID:                "6f1c2a7e-0000-4000-8000-000000000001",
		UserID:            42,
		SourceID:          "src-1",
		Mode:              lookalike.ModeSimpleAll,
		SizeTier:          lookalike.SizeVerySimilar,
		SignificantFields: map[string]float64{"state": 0.6, "age": 0.4},
	}
}

func TestValidateJob(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(j *lookalike.Job)
		wantField string
	}{
		{"valid", func(j *lookalike.Job) {}, ""},
		{"zero weight allowed", func(j *lookalike.Job) { j.SignificantFields["age"] = 0 }, ""},
		{"missing id", func(j *lookalike.Job) { j.ID = "" }, "ID"},
		{"missing user", func(j *lookalike.Job) { j.UserID = 0 }, "UserID"},
		{"missing source", func(j *lookalike.Job) { j.SourceID = "" }, "SourceID"},
		{"bad mode", func(j *lookalike.Job) { j.Mode = "random" }, "Mode"},
		{"bad size", func(j *lookalike.Job) { j.SizeTier = "everyone" }, "SizeTier"},
		{"no fields", func(j *lookalike.Job) { j.SignificantFields = map[string]float64{} }, "SignificantFields"},
		{"negative weight", func(j *lookalike.Job) { j.SignificantFields["age"] = -0.1 }, "SignificantFields"},
		{"nan weight", func(j *lookalike.Job) { j.SignificantFields["age"] = math.NaN() }, "SignificantFields"},
		{"blank field name", func(j *lookalike.Job) { j.SignificantFields[" "] = 0.1 }, "SignificantFields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := validJob()
			tt.mutate(job)

			err := ValidateJob(job)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateJob() unexpected error = %v", err)
				}
				return
			}
			var verr *RequestValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateJob() error = %v, want *RequestValidationError", err)
			}
			if _, ok := verr.Fields()[tt.wantField]; !ok {
				t.Errorf("ValidateJob() fields = %v, want %s", verr.Fields(), tt.wantField)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := ValidateJob(&lookalike.Job{Mode: "x", SizeTier: "y"})
	if err == nil {
		t.Fatal("Expected validation error")
	}
	fields := err.(*RequestValidationError).Fields()

	want := map[string]string{
		"ID":       "ID is required",
		"UserID":   "UserID must be greater than 0",
		"Mode":     "Mode must be one of: model simple_all simple_any",
		"SizeTier": "SizeTier must be a known lookalike size",
	}
	for field, msg := range want {
		if fields[field] != msg {
			t.Errorf("%s message = %q, want %q", field, fields[field], msg)
		}
	}
}
