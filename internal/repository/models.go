// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package repository

import (
	"time"

	"gorm.io/datatypes"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
)

// LookalikeJob is a row of audience_lookalikes.
type LookalikeJob struct {
	ID                      string                                 `gorm:"column:id;primaryKey;type:varchar(36)"`
	UserID                  int64                                  `gorm:"column:user_id;index"`
	SourceID                string                                 `gorm:"column:source_id;type:varchar(36);index"`
	LookalikeType           string                                 `gorm:"column:lookalike_type;type:varchar(16)"`
	LookalikeSize           string                                 `gorm:"column:lookalike_size;type:varchar(32)"`
	SignificantFields       datatypes.JSONType[map[string]float64] `gorm:"column:significant_fields"`
	Status                  string                                 `gorm:"column:status;type:varchar(16);default:pending"`
	FailureReason           string                                 `gorm:"column:failure_reason"`
	DatasetSize             int64                                  `gorm:"column:dataset_size;not null;default:0"`
	TrainModelSize          int64                                  `gorm:"column:train_model_size;not null;default:0"`
	ProcessedSize           int64                                  `gorm:"column:processed_size;not null;default:0"`
	ProcessedTrainModelSize int64                                  `gorm:"column:processed_train_model_size;not null;default:0"`
	Size                    int64                                  `gorm:"column:size;not null;default:0"`
	SimilarityMin           *float64                               `gorm:"column:similarity_min"`
	SimilarityMax           *float64                               `gorm:"column:similarity_max"`
	SimilarityAverage       *float64                               `gorm:"column:similarity_average"`
	SimilarityMedian        *float64                               `gorm:"column:similarity_median"`
	StartedAt               *time.Time                             `gorm:"column:started_at"`
	CompletedAt             *time.Time                             `gorm:"column:completed_at"`
	CreatedAt               time.Time                              `gorm:"column:created_at"`
	UpdatedAt               time.Time                              `gorm:"column:updated_at"`
}

func (LookalikeJob) TableName() string { return "audience_lookalikes" }

// toDomain converts the row to the pipeline's job type.
func (j *LookalikeJob) toDomain() *lookalike.Job {
	fields := j.SignificantFields.Data()
	if fields == nil {
		fields = map[string]float64{}
	}
	return &lookalike.Job{
		ID:                      j.ID,
		UserID:                  j.UserID,
		SourceID:                j.SourceID,
		Mode:                    lookalike.Mode(j.LookalikeType),
		SizeTier:                lookalike.SizeTier(j.LookalikeSize),
		SignificantFields:       fields,
		Status:                  lookalike.JobStatus(j.Status),
		FailureReason:           j.FailureReason,
		DatasetSize:             j.DatasetSize,
		TrainModelSize:          j.TrainModelSize,
		ProcessedSize:           j.ProcessedSize,
		ProcessedTrainModelSize: j.ProcessedTrainModelSize,
		Size:                    j.Size,
		Stats: lookalike.SimilarityStats{
			Min:     j.SimilarityMin,
			Max:     j.SimilarityMax,
			Average: j.SimilarityAverage,
			Median:  j.SimilarityMedian,
		},
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// SourceMatchedPerson is a seed audience member matched to the identity graph.
type SourceMatchedPerson struct {
	ID            int64   `gorm:"column:id;primaryKey;autoIncrement"`
	SourceID      string  `gorm:"column:source_id;type:varchar(36);index:idx_matched_source_id,priority:1"`
	ASID          string  `gorm:"column:asid;type:varchar(64)"`
	CustomerValue float64 `gorm:"column:customer_value"`
}

func (SourceMatchedPerson) TableName() string { return "audience_sources_matched_persons" }

// SourceInsight holds the field distributions computed for a source by the
// insights service.
type SourceInsight struct {
	SourceID     string                                        `gorm:"column:source_id;primaryKey;type:varchar(36)"`
	Distribution datatypes.JSONType[map[string]map[string]int] `gorm:"column:distribution"`
	UpdatedAt    time.Time                                     `gorm:"column:updated_at"`
}

func (SourceInsight) TableName() string { return "audience_source_insights" }

// EnrichmentUser maps an identity graph asid to an addressable user.
type EnrichmentUser struct {
	ID   string `gorm:"column:id;primaryKey;type:varchar(36)"`
	ASID string `gorm:"column:asid;type:varchar(64);uniqueIndex"`
}

func (EnrichmentUser) TableName() string { return "enrichment_users" }

// LookalikePerson is one user of a finished lookalike audience.
type LookalikePerson struct {
	LookalikeID      string    `gorm:"column:lookalike_id;primaryKey;type:varchar(36)"`
	EnrichmentUserID string    `gorm:"column:enrichment_user_id;primaryKey;type:varchar(36)"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

func (LookalikePerson) TableName() string { return "audience_lookalikes_persons" }

// AllModels lists the tables the filler reads or writes, for AutoMigrate.
func AllModels() []any {
	return []any{
		&LookalikeJob{},
		&SourceMatchedPerson{},
		&SourceInsight{},
		&EnrichmentUser{},
		&LookalikePerson{},
	}
}
