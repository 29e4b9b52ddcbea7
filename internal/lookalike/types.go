// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"fmt"
	"time"
)

// Mode selects the scoring strategy of a lookalike job.
type Mode string

const (
	// ModeModel scores identities with a trained regression model.
	ModeModel Mode = "model"
	// ModeSimpleAll scores with field distributions, scanning rows that carry every significant column.
	ModeSimpleAll Mode = "simple_all"
	// ModeSimpleAny scores with field distributions, scanning rows that carry at least one significant column.
	ModeSimpleAny Mode = "simple_any"
)

// IsSimple reports whether the mode uses weighted-distribution scoring.
func (m Mode) IsSimple() bool {
	return m == ModeSimpleAll || m == ModeSimpleAny
}

// ParseMode validates a stored mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeModel, ModeSimpleAll, ModeSimpleAny:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// ScanFilter returns the row filter the scanner applies for this mode.
func (m Mode) ScanFilter() ScanFilter {
	switch m {
	case ModeSimpleAll:
		return FilterAllPresent
	case ModeSimpleAny:
		return FilterAnyPresent
	default:
		return FilterNone
	}
}

// SizeTier is the user-facing lookalike size option.
type SizeTier string

const (
	SizeAlmostIdentical  SizeTier = "almost_identical"
	SizeExtremelySimilar SizeTier = "extremely_similar"
	SizeVerySimilar      SizeTier = "very_similar"
	SizeQuiteSimilar     SizeTier = "quite_similar"
	SizeBroad            SizeTier = "broad"
)

var sizeTierTargets = map[SizeTier]int{
	SizeAlmostIdentical:  10_000,
	SizeExtremelySimilar: 50_000,
	SizeVerySimilar:      100_000,
	SizeQuiteSimilar:     200_000,
	SizeBroad:            500_000,
}

// Target returns the output cap for the tier.
func (t SizeTier) Target() (int, error) {
	n, ok := sizeTierTargets[t]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSizeTier, t)
	}
	return n, nil
}

// JobStatus is the lifecycle state stored on the job row.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job is the pipeline's view of a lookalike job row.
type Job struct {
	ID                      string
	UserID                  int64
	SourceID                string
	Mode                    Mode
	SizeTier                SizeTier
	SignificantFields       map[string]float64
	Status                  JobStatus
	FailureReason           string
	DatasetSize             int64
	TrainModelSize          int64
	ProcessedSize           int64
	ProcessedTrainModelSize int64
	Size                    int64
	Stats                   SimilarityStats
	CreatedAt               time.Time
	StartedAt               *time.Time
	CompletedAt             *time.Time
}

// Fields returns the significant field names in a stable order.
func (j *Job) Fields() []string {
	return sortedKeys(j.SignificantFields)
}

// ScoredIdentity is one ranked identity.
type ScoredIdentity struct {
	ASID  string  `json:"asid"`
	Score float64 `json:"score"`
}

// IdentityRow is one identity-graph row projected to the requested columns.
type IdentityRow struct {
	ASID   string
	Values map[string]any
}

// SeedMember is one matched member of the seed audience.
type SeedMember struct {
	ID            int64
	ASID          string
	CustomerValue float64
}

// FieldDistribution maps field -> normalized value token -> percentage (0..100).
// Each field may carry an OtherBucket entry.
type FieldDistribution map[string]map[string]int

// OtherBucket is the catch-all key of a field distribution.
const OtherBucket = "other"

// ScanFilter restricts scanned rows by column presence.
type ScanFilter int

const (
	FilterNone ScanFilter = iota
	FilterAllPresent
	FilterAnyPresent
)

// ScanRequest describes one partitioned identity-graph scan.
type ScanRequest struct {
	Columns   []string
	Buckets   []int
	Filter    ScanFilter
	RowLimit  int
	BlockSize int
}
