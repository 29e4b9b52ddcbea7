// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike/model"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/metrics"
)

// Scorer computes the score of one identity row.
type Scorer interface {
	Score(row IdentityRow) (float64, error)
}

// Explainer is a Scorer that can break a score down per field for the audit file.
type Explainer interface {
	Scorer
	Fields() []string
	Explain(row IdentityRow) (int, []FieldContribution)
}

// ModelScorer scores rows with a trained regression model.
type ModelScorer struct {
	Model *model.Model
}

// Score implements Scorer.
func (s ModelScorer) Score(row IdentityRow) (float64, error) {
	return s.Model.Predict(row.Values)
}

// WorkerSpec is the immutable input of one scoring partition.
type WorkerSpec struct {
	JobID     string
	Mode      Mode
	Partition int
	Scan      ScanRequest
	Scorer    Scorer
	Capacity  int
	BulkSize  int
	AuditDir  string
}

// WorkerResult is what a partition contributes to the job.
type WorkerResult struct {
	Partition int              `json:"partition"`
	TopK      []ScoredIdentity `json:"top_k"`
	Scanned   int64            `json:"scanned"`
	Skipped   int64            `json:"skipped"`
	AuditPath string           `json:"audit_path,omitempty"`
	Partial   bool             `json:"partial"`
}

// Worker scores one partition of the identity graph.
type Worker struct {
	graph    IdentityGraph
	progress ProgressRecorder
	logger   zerolog.Logger
}

// NewWorker creates a worker reading from graph and checkpointing through progress.
func NewWorker(graph IdentityGraph, progress ProgressRecorder, logger zerolog.Logger) *Worker {
	return &Worker{graph: graph, progress: progress, logger: logger}
}

// Run scans the partition, keeps the local top-K and checkpoints progress.
// A stream interruption yields the partial result and no error.
func (w *Worker) Run(ctx context.Context, spec WorkerSpec) (*WorkerResult, error) {
	logger := w.logger.With().
		Str("job_id", spec.JobID).
		Int("partition", spec.Partition).
		Logger()
	rowLogger := logger.Sample(&zerolog.BasicSampler{N: 100})

	top := NewTopK(spec.Capacity)
	result := &WorkerResult{Partition: spec.Partition}

	audit, err := w.openAudit(spec)
	if err != nil {
		return nil, err
	}
	if audit != nil {
		result.AuditPath = audit.path
	}

	var pending int64
	flush := func(ctx context.Context) {
		if pending == 0 || w.progress == nil {
			return
		}
		_, err := w.progress.AddProcessed(ctx, spec.JobID, pending)
		metrics.RecordCheckpoint("processed_size", err)
		if err != nil {
			// The delta stays pending and is retried on the next flush.
			logger.Warn().Err(err).Int64("delta", pending).Msg("Progress checkpoint failed")
			return
		}
		pending = 0
	}

	bulk := int64(spec.BulkSize)
	if bulk <= 0 {
		bulk = 10_000
	}

	_, scanErr := w.graph.Scan(ctx, spec.Scan, func(block []IdentityRow) error {
		for i := range block {
			row := block[i]
			result.Scanned++
			pending++

			if audit != nil {
				score, err := audit.score(row)
				if err != nil {
					return fmt.Errorf("write audit row: %w", err)
				}
				top.Offer(row.ASID, score)
			} else if score, err := spec.Scorer.Score(row); err != nil {
				result.Skipped++
				rowLogger.Warn().Err(err).Str("asid", row.ASID).Msg("Skipping row that failed to score")
			} else {
				top.Offer(row.ASID, score)
			}

			if pending >= bulk {
				flush(ctx)
			}
		}
		return nil
	})

	// Counters must reflect every scanned row even when the job context is gone.
	tailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	flush(tailCtx)
	cancel()

	if audit != nil {
		if err := audit.close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close audit file")
		}
	}

	metrics.RecordRows(string(spec.Mode), result.Scanned-result.Skipped, result.Skipped)

	switch {
	case scanErr == nil:
	case errors.Is(scanErr, ErrStreamInterrupted):
		result.Partial = true
		logger.Warn().
			Err(scanErr).
			Int64("scanned", result.Scanned).
			Msg("Stream interrupted, returning partial partition result")
	default:
		return nil, fmt.Errorf("scan partition %d: %w", spec.Partition, scanErr)
	}

	result.TopK = top.Sorted()
	return result, nil
}

// auditWriter writes the per-identity score breakdown of simple mode.
type auditWriter struct {
	path      string
	file      *os.File
	csv       *csv.Writer
	explainer Explainer
	record    []string
}

func (w *Worker) openAudit(spec WorkerSpec) (*auditWriter, error) {
	if spec.AuditDir == "" {
		return nil, nil
	}
	explainer, ok := spec.Scorer.(Explainer)
	if !ok {
		return nil, nil
	}

	dir := filepath.Join(spec.AuditDir, spec.JobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("partition_%03d.csv", spec.Partition))
	f, err := os.Create(path) //nolint:gosec // path is built from config and job ID
	if err != nil {
		return nil, fmt.Errorf("create audit file: %w", err)
	}

	a := &auditWriter{path: path, file: f, csv: csv.NewWriter(f), explainer: explainer}
	header := []string{"asid", "total_score"}
	for _, field := range explainer.Fields() {
		header = append(header,
			field+"_value",
			field+"_pct",
			field+"_importance",
			field+"_contribution",
		)
	}
	a.record = make([]string, 0, len(header))
	if err := a.csv.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write audit header: %w", err)
	}
	return a, nil
}

// score explains the row, writes the audit record and returns the total.
func (a *auditWriter) score(row IdentityRow) (float64, error) {
	total, parts := a.explainer.Explain(row)
	rec := append(a.record[:0], row.ASID, strconv.Itoa(total))
	for _, p := range parts {
		rec = append(rec,
			p.RawValue,
			strconv.Itoa(p.ValuePct),
			strconv.Itoa(p.Importance),
			strconv.Itoa(p.Contribution),
		)
	}
	a.record = rec
	return float64(total), a.csv.Write(rec)
}

func (a *auditWriter) close() error {
	a.csv.Flush()
	if err := a.csv.Error(); err != nil {
		_ = a.file.Close()
		return err
	}
	return a.file.Close()
}
