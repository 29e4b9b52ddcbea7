// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike/model"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/metrics"
)

// Deps are the collaborators of the pipeline. Uploader, Cache and Notifier
// are optional.
type Deps struct {
	Jobs          JobStore
	Seeds         SeedSource
	Distributions DistributionSource
	Graph         IdentityGraph
	Scores        ScoreStore
	Users         UserResolver
	Models        ModelStore
	Uploader      ArtifactUploader
	Cache         PartitionCache
	Notifier      Notifier
}

func (d *Deps) validate() error {
	switch {
	case d.Jobs == nil:
		return errors.New("job store is required")
	case d.Seeds == nil:
		return errors.New("seed source is required")
	case d.Distributions == nil:
		return errors.New("distribution source is required")
	case d.Graph == nil:
		return errors.New("identity graph is required")
	case d.Scores == nil:
		return errors.New("score store is required")
	case d.Users == nil:
		return errors.New("user resolver is required")
	case d.Models == nil:
		return errors.New("model store is required")
	}
	return nil
}

// Pipeline drives lookalike jobs from job row to finalized audience.
type Pipeline struct {
	cfg      Config
	deps     Deps
	fetcher  *ProfileFetcher
	worker   *Worker
	post     *PostProcessor
	logger   zerolog.Logger
	running  atomic.Int32
	finished atomic.Int64
}

// NewPipeline validates configuration and dependencies.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewPipeline(cfg Config, deps Deps, logger zerolog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lookalike config: %w", err)
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	logger = logger.With().Str("component", "lookalike").Logger()
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		fetcher: NewProfileFetcher(deps.Seeds, deps.Graph, deps.Jobs, cfg.SeedPageSize, logger),
		worker:  NewWorker(deps.Graph, deps.Jobs, logger),
		post:    NewPostProcessor(deps.Jobs, deps.Seeds, deps.Scores, deps.Users, logger),
		logger:  logger,
	}, nil
}

// Running returns the number of jobs currently executing.
func (p *Pipeline) Running() int { return int(p.running.Load()) }

// Finished returns the number of jobs that reached a final state.
func (p *Pipeline) Finished() int64 { return p.finished.Load() }

// Run executes one job. Terminal job conditions (unusable seed audience,
// worker timeout, no usable columns) mark the job failed and return nil.
// Other errors are returned so the caller can retry the request.
func (p *Pipeline) Run(ctx context.Context, jobID string) error {
	p.running.Add(1)
	defer p.running.Add(-1)
	start := time.Now()

	job, err := p.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	logger := p.logger.With().Str("job_id", job.ID).Str("mode", string(job.Mode)).Logger()

	if job.Status == StatusCompleted {
		logger.Info().Msg("Job already completed, skipping")
		return nil
	}
	if err := p.deps.Jobs.MarkRunning(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	now := time.Now()
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	logger.Info().Str("size", string(job.SizeTier)).Msg("Lookalike job started")

	final, err := p.execute(ctx, job, logger)
	if err == nil {
		p.finished.Add(1)
		metrics.RecordJob(string(job.Mode), string(StatusCompleted), time.Since(start))
		logger.Info().
			Int("size", len(final.ASIDs)).
			Int("users", len(final.UserIDs)).
			Dur("duration", time.Since(start)).
			Msg("Lookalike job completed")
		p.notify(ctx, Completion{
			JobID:    job.ID,
			UserID:   job.UserID,
			SourceID: job.SourceID,
			Status:   StatusCompleted,
			Size:     int64(len(final.ASIDs)),
			Stats:    final.Stats,
		}, logger)
		return nil
	}

	reason, terminal := terminalReason(err)
	if !terminal {
		if ctx.Err() == nil {
			p.markFailed(ctx, job.ID, "internal_error", logger)
		}
		metrics.RecordJob(string(job.Mode), string(StatusFailed), time.Since(start))
		return err
	}

	logger.Warn().Err(err).Str("reason", reason).Msg("Lookalike job failed")
	p.markFailed(ctx, job.ID, reason, logger)
	p.finished.Add(1)
	metrics.RecordJob(string(job.Mode), string(StatusFailed), time.Since(start))
	p.notify(ctx, Completion{
		JobID:    job.ID,
		UserID:   job.UserID,
		SourceID: job.SourceID,
		Status:   StatusFailed,
		Reason:   reason,
	}, logger)
	return nil
}

// terminalReason maps errors that must not be retried to a failure reason.
func terminalReason(err error) (string, bool) {
	if tf, ok := AsTrainingFailure(err); ok {
		return tf.Kind.Reason(), true
	}
	switch {
	case errors.Is(err, ErrWorkerTimeout):
		return "worker_timeout", true
	case errors.Is(err, ErrNoColumns):
		return "no_columns", true
	case errors.Is(err, ErrNoDistribution):
		return "no_distribution", true
	case errors.Is(err, ErrUnknownMode), errors.Is(err, ErrUnknownSizeTier):
		return "invalid_job", true
	}
	return "", false
}

func (p *Pipeline) markFailed(ctx context.Context, jobID, reason string, logger zerolog.Logger) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.deps.Jobs.MarkFailed(mctx, jobID, reason); err != nil {
		logger.Error().Err(err).Str("reason", reason).Msg("Failed to mark job failed")
	}
}

func (p *Pipeline) execute(ctx context.Context, job *Job, logger zerolog.Logger) (*FinalResult, error) {
	if _, err := ParseMode(string(job.Mode)); err != nil {
		return nil, err
	}
	target, err := job.SizeTier.Target()
	if err != nil {
		return nil, err
	}

	available, err := p.deps.Graph.Columns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identity graph columns: %w", err)
	}
	columns := SelectColumns(job.Fields(), available)
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}
	logger.Debug().Strs("columns", columns).Msg("Resolved significant columns")

	var scorer Scorer
	if job.Mode == ModeModel {
		scorer, err = p.modelScorer(ctx, job, columns, logger)
	} else {
		scorer, err = p.simpleScorer(ctx, job, available)
	}
	if err != nil {
		return nil, err
	}

	seedCount, err := p.deps.Seeds.CountSeedMembers(ctx, job.SourceID)
	if err != nil {
		return nil, fmt.Errorf("count seed members: %w", err)
	}
	// Seed identities are dropped after the merge, so keep enough spare.
	capacity := target + int(seedCount)

	specs, err := p.buildSpecs(job, columns, scorer, capacity)
	if err != nil {
		return nil, err
	}

	var datasetSize int64
	for _, s := range specs {
		n, err := p.deps.Graph.Count(ctx, s.Scan)
		if err != nil {
			return nil, fmt.Errorf("count partition %d: %w", s.Partition, err)
		}
		datasetSize += n
	}
	if err := p.deps.Jobs.SetDatasetSize(ctx, job.ID, datasetSize); err != nil {
		return nil, fmt.Errorf("store dataset size: %w", err)
	}

	merged, err := p.runWorkers(ctx, job, specs, capacity, logger)
	if err != nil {
		return nil, err
	}

	if err := p.deps.Scores.BulkInsert(ctx, job.ID, merged); err != nil {
		return nil, fmt.Errorf("store scores: %w", err)
	}

	final, err := p.post.Finalize(ctx, job)
	if err != nil {
		return nil, err
	}

	if p.deps.Cache != nil {
		if err := p.deps.Cache.DropJob(job.ID); err != nil {
			logger.Warn().Err(err).Msg("Failed to drop partition cache")
		}
	}
	return final, nil
}

// buildSpecs assembles the immutable per-partition inputs once.
func (p *Pipeline) buildSpecs(job *Job, columns []string, scorer Scorer, capacity int) ([]WorkerSpec, error) {
	groups, err := AssignBuckets(p.cfg.Workers)
	if err != nil {
		return nil, err
	}
	auditDir := ""
	if job.Mode.IsSimple() {
		auditDir = p.cfg.AuditDir
	}

	specs := make([]WorkerSpec, len(groups))
	for i, g := range groups {
		specs[i] = WorkerSpec{
			JobID:     job.ID,
			Mode:      job.Mode,
			Partition: i,
			Scan: ScanRequest{
				Columns:   slices.Clone(columns),
				Buckets:   g,
				Filter:    job.Mode.ScanFilter(),
				RowLimit:  p.cfg.RowLimit,
				BlockSize: p.cfg.BlockSize,
			},
			Scorer:   scorer,
			Capacity: capacity,
			BulkSize: p.cfg.BulkSize,
			AuditDir: auditDir,
		}
	}
	return specs, nil
}

type workerOutcome struct {
	spec     WorkerSpec
	result   *WorkerResult
	err      error
	duration time.Duration
	cached   bool
}

// runWorkers scores every partition and merges results as workers finish.
// A failed partition contributes nothing; a timed-out partition fails the job.
func (p *Pipeline) runWorkers(ctx context.Context, job *Job, specs []WorkerSpec, capacity int, logger zerolog.Logger) ([]ScoredIdentity, error) {
	outcomes := make(chan workerOutcome, len(specs))

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, spec := range specs {
		if res, ok := p.cachedPartition(job.ID, spec.Partition, logger); ok {
			outcomes <- workerOutcome{spec: spec, result: res, cached: true}
			continue
		}
		g.Go(func() error {
			outcomes <- p.runPartition(ctx, spec)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(outcomes)
	}()

	var merged []ScoredIdentity
	var timeoutErr error
	for out := range outcomes {
		plog := logger.With().Int("partition", out.spec.Partition).Logger()

		if out.err != nil {
			if errors.Is(out.err, ErrWorkerTimeout) {
				timeoutErr = out.err
				metrics.RecordWorker("timeout", out.duration)
			} else {
				metrics.RecordWorker("error", out.duration)
			}
			plog.Error().Err(out.err).Msg("Scoring worker failed, partition contributes no rows")
			continue
		}

		merged = Merge(merged, out.result.TopK, capacity)
		switch {
		case out.cached:
			metrics.RecordWorker("cached", 0)
		case out.result.Partial:
			metrics.RecordWorker("partial", out.duration)
		default:
			metrics.RecordWorker("ok", out.duration)
		}
		plog.Info().
			Int64("scanned", out.result.Scanned).
			Int64("skipped", out.result.Skipped).
			Bool("partial", out.result.Partial).
			Bool("cached", out.cached).
			Int("merged", len(merged)).
			Msg("Partition merged")

		if !out.cached {
			p.afterPartition(ctx, job.ID, out.result, plog)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeoutErr != nil {
		return nil, timeoutErr
	}
	return merged, nil
}

func (p *Pipeline) runPartition(ctx context.Context, spec WorkerSpec) workerOutcome {
	wctx := ctx
	if p.cfg.WorkerTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, p.cfg.WorkerTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.worker.Run(wctx, spec)
	out := workerOutcome{spec: spec, result: res, err: err, duration: time.Since(start)}
	if err != nil && ctx.Err() == nil && errors.Is(wctx.Err(), context.DeadlineExceeded) {
		out.err = fmt.Errorf("%w: partition %d after %s", ErrWorkerTimeout, spec.Partition, p.cfg.WorkerTimeout)
	}
	return out
}

func (p *Pipeline) cachedPartition(jobID string, partition int, logger zerolog.Logger) (*WorkerResult, bool) {
	if p.deps.Cache == nil {
		return nil, false
	}
	res, ok, err := p.deps.Cache.LoadPartition(jobID, partition)
	if err != nil {
		logger.Warn().Err(err).Int("partition", partition).Msg("Partition cache read failed")
		return nil, false
	}
	return res, ok
}

// afterPartition stores the partition for resume and uploads its audit file.
// Partial partitions are not cached so a resumed job scans them again.
func (p *Pipeline) afterPartition(ctx context.Context, jobID string, res *WorkerResult, logger zerolog.Logger) {
	if p.deps.Cache != nil && !res.Partial {
		if err := p.deps.Cache.SavePartition(jobID, res); err != nil {
			logger.Warn().Err(err).Msg("Partition cache write failed")
		}
	}
	if p.deps.Uploader != nil && res.AuditPath != "" {
		object := fmt.Sprintf("audit/%s/%s", jobID, filepath.Base(res.AuditPath))
		if err := p.deps.Uploader.UploadFile(ctx, object, res.AuditPath, "text/csv"); err != nil {
			logger.Warn().Err(err).Str("object", object).Msg("Audit upload failed")
		}
	}
}

func (p *Pipeline) modelScorer(ctx context.Context, job *Job, columns []string, logger zerolog.Logger) (Scorer, error) {
	stored, err := p.deps.Models.LoadModel(ctx, job.ID)
	switch {
	case err == nil && slices.Equal(stored.Columns, columns):
		logger.Info().Msg("Reusing stored model")
		return ModelScorer{Model: stored}, nil
	case err != nil && !errors.Is(err, ErrModelNotFound):
		logger.Warn().Err(err).Msg("Stored model unreadable, retraining")
	}

	total, err := p.deps.Seeds.CountSeedMembers(ctx, job.SourceID)
	if err != nil {
		return nil, fmt.Errorf("count seed members: %w", err)
	}
	if err := p.deps.Jobs.SetTrainModelSize(ctx, job.ID, total); err != nil {
		return nil, fmt.Errorf("store train model size: %w", err)
	}

	profiles, err := p.fetcher.Fetch(ctx, job, columns)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := model.Train(Samples(profiles), columns, p.cfg.Normalization, p.cfg.Training)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	metrics.RecordTraining(time.Since(start))
	logger.Info().
		Int("train_rows", m.Metrics.TrainRows).
		Int("test_rows", m.Metrics.TestRows).
		Float64("train_rmse", m.Metrics.TrainRMSE).
		Float64("test_rmse", m.Metrics.TestRMSE).
		Msg("Model trained")

	if err := p.deps.Models.SaveModel(ctx, job.ID, m); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	return ModelScorer{Model: m}, nil
}

func (p *Pipeline) simpleScorer(ctx context.Context, job *Job, available []string) (Scorer, error) {
	dist, err := p.deps.Distributions.FieldDistributions(ctx, job.SourceID)
	if err != nil {
		return nil, fmt.Errorf("load field distributions: %w", err)
	}

	set := make(map[string]struct{}, len(available))
	for _, c := range available {
		set[c] = struct{}{}
	}
	weights := make(map[string]float64, len(job.SignificantFields))
	for f, w := range job.SignificantFields {
		if _, ok := ResolveColumn(f, set); ok {
			weights[f] = w
		}
	}
	percents := ImportancePercents(weights)
	if len(percents) == 0 {
		return nil, fmt.Errorf("%w: no significant field has a positive weight", ErrNoColumns)
	}
	return NewSimpleScorer(percents, dist), nil
}

func (p *Pipeline) notify(ctx context.Context, c Completion, logger zerolog.Logger) {
	if p.deps.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.NotifyTimeout)
	defer cancel()
	if err := p.deps.Notifier.NotifyCompleted(nctx, c); err != nil {
		logger.Warn().Err(err).Msg("Completion notification failed")
	}
}
