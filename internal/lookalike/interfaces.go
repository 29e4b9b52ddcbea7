// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"context"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike/model"
)

// ProgressRecorder applies relative increments to a job's progress counters
// and returns the new cumulative value.
type ProgressRecorder interface {
	AddProcessed(ctx context.Context, jobID string, delta int64) (int64, error)
	AddProcessedTrainModel(ctx context.Context, jobID string, delta int64) (int64, error)
}

// JobStore persists lookalike job state.
type JobStore interface {
	ProgressRecorder
	GetJob(ctx context.Context, jobID string) (*Job, error)
	MarkRunning(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, reason string) error
	MarkCompleted(ctx context.Context, jobID string, size int64, stats SimilarityStats) error
	SetDatasetSize(ctx context.Context, jobID string, size int64) error
	SetTrainModelSize(ctx context.Context, jobID string, size int64) error
}

// SeedSource reads the matched members of a seed audience.
type SeedSource interface {
	// SeedMembers pages through members with ID > afterID, ordered by ID.
	SeedMembers(ctx context.Context, sourceID string, afterID int64, limit int) ([]SeedMember, error)
	CountSeedMembers(ctx context.Context, sourceID string) (int64, error)
	SeedASIDs(ctx context.Context, sourceID string) ([]string, error)
}

// DistributionSource supplies the simple-mode field distributions of a source.
type DistributionSource interface {
	FieldDistributions(ctx context.Context, sourceID string) (FieldDistribution, error)
}

// IdentityGraph is the columnar identity store.
type IdentityGraph interface {
	Columns(ctx context.Context) ([]string, error)
	FetchByASIDs(ctx context.Context, columns []string, asids []string) ([]IdentityRow, error)
	Count(ctx context.Context, req ScanRequest) (int64, error)
	// Scan streams matching rows to fn in blocks. Read failures after the
	// stream opened wrap ErrStreamInterrupted.
	Scan(ctx context.Context, req ScanRequest, fn func(block []IdentityRow) error) (int64, error)
}

// ScoreStore holds per-job scores.
type ScoreStore interface {
	BulkInsert(ctx context.Context, jobID string, scores []ScoredIdentity) error
	TopScores(ctx context.Context, jobID string, limit int, exclude []string) ([]ScoredIdentity, error)
}

// UserResolver maps identities to addressable users and stores the output.
type UserResolver interface {
	ResolveUsers(ctx context.Context, asids []string) (map[string]string, error)
	ReplaceLookalikePersons(ctx context.Context, jobID string, userIDs []string) error
}

// ModelStore persists trained models by job ID.
type ModelStore interface {
	SaveModel(ctx context.Context, jobID string, m *model.Model) error
	// LoadModel returns ErrModelNotFound when nothing is stored.
	LoadModel(ctx context.Context, jobID string) (*model.Model, error)
}

// ArtifactUploader copies local files to object storage.
type ArtifactUploader interface {
	UploadFile(ctx context.Context, objectName, path, contentType string) error
}

// PartitionCache keeps completed partition results so a restarted job can
// skip them.
type PartitionCache interface {
	LoadPartition(jobID string, partition int) (*WorkerResult, bool, error)
	SavePartition(jobID string, result *WorkerResult) error
	DropJob(jobID string) error
}

// Completion is the payload of the completion notification.
type Completion struct {
	JobID    string          `json:"job_id"`
	UserID   int64           `json:"user_id"`
	SourceID string          `json:"source_id"`
	Status   JobStatus       `json:"status"`
	Size     int64           `json:"size"`
	Stats    SimilarityStats `json:"stats"`
	Reason   string          `json:"reason,omitempty"`
}

// Notifier announces finished jobs. Delivery is best effort.
type Notifier interface {
	NotifyCompleted(ctx context.Context, c Completion) error
}
