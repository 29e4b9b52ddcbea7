// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike/model"
)

type pipelineFixture struct {
	jobs     *memJobs
	seeds    *memSeeds
	graph    *memGraph
	scores   *memScores
	users    *memUsers
	models   *memModels
	notifier *memNotifier
	cache    *memCache
}

func newFixture(job *Job) *pipelineFixture {
	f := &pipelineFixture{
		jobs:     newMemJobs(job),
		seeds:    &memSeeds{},
		graph:    &memGraph{columns: []string{"asid", "state", "job_level_name", "age"}},
		scores:   &memScores{},
		users:    &memUsers{},
		models:   &memModels{},
		notifier: &memNotifier{},
		cache:    &memCache{},
	}
	states := []string{"ca", "tx", "ny", "wa"}
	levels := []string{"executive", "manager", "staff"}
	for i := 0; i < 400; i++ {
		values := map[string]any{
			"state":          states[i%len(states)],
			"job_level_name": levels[i%len(levels)],
			"age":            float64(20 + i%40),
		}
		if i%10 == 0 {
			values["state"] = nil
		}
		f.graph.rows = append(f.graph.rows, IdentityRow{ASID: fmt.Sprintf("asid-%03d", i), Values: values})
	}
	return f
}

func (f *pipelineFixture) pipeline(t *testing.T, mutate func(*Config)) *Pipeline {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 4
	cfg.BlockSize = 25
	cfg.BulkSize = 40
	cfg.Training.Rounds = 20
	cfg.Training.MinSamplesLeaf = 2
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewPipeline(cfg, Deps{
		Jobs:          f.jobs,
		Seeds:         f.seeds,
		Distributions: f.seeds,
		Graph:         f.graph,
		Scores:        f.scores,
		Users:         f.users,
		Models:        f.models,
		Cache:         f.cache,
		Notifier:      f.notifier,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}

func TestPipeline_SimpleMode(t *testing.T) {
	job := &Job{
		ID:                "job-simple",
		UserID:            7,
		SourceID:          "src",
		Mode:              ModeSimpleAll,
		SizeTier:          SizeAlmostIdentical,
		SignificantFields: map[string]float64{"state": 0.4, "job_level": 0.6, "income": 0.2},
		Status:            StatusPending,
	}
	f := newFixture(job)
	f.seeds.members = []SeedMember{{ID: 1, ASID: "asid-001"}, {ID: 2, ASID: "asid-002"}}
	f.seeds.dist = FieldDistribution{
		"job_level": {"executive": 80, "other": 10},
		"state":     {"ca": 50, "other": 5},
	}

	if err := f.pipeline(t, nil).Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := f.jobs.snapshot(job.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", got.Status, got.FailureReason)
	}
	// 40 rows lack state; two seeds are removed afterwards.
	if got.DatasetSize != 360 || got.ProcessedSize != 360 {
		t.Errorf("DatasetSize = %d, ProcessedSize = %d, want 360", got.DatasetSize, got.ProcessedSize)
	}
	if got.Size != 358 {
		t.Errorf("Size = %d, want 358", got.Size)
	}

	written := f.users.written[job.ID]
	if slices.Contains(written, "user-asid-001") || slices.Contains(written, "user-asid-002") {
		t.Error("seed identity in output")
	}
	if got.Stats.Max == nil || *got.Stats.Max != 6800 {
		t.Errorf("Stats.Max = %v, want 6800", got.Stats.Max)
	}

	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Status != StatusCompleted || f.notifier.sent[0].UserID != 7 {
		t.Errorf("notifications = %+v", f.notifier.sent)
	}
	if !slices.Contains(f.cache.dropped, job.ID) {
		t.Error("partition cache not dropped")
	}
}

func TestPipeline_ModelMode(t *testing.T) {
	job := &Job{
		ID:                "job-model",
		SourceID:          "src",
		Mode:              ModeModel,
		SizeTier:          SizeAlmostIdentical,
		SignificantFields: map[string]float64{"state": 1, "age": 1},
	}
	f := newFixture(job)
	for i := 0; i < 60; i++ {
		f.seeds.members = append(f.seeds.members, SeedMember{
			ID:            int64(i + 1),
			ASID:          fmt.Sprintf("asid-%03d", i*5),
			CustomerValue: float64(20 + i%40),
		})
	}

	p := f.pipeline(t, nil)
	if err := p.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := f.jobs.snapshot(job.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", got.Status, got.FailureReason)
	}
	if got.TrainModelSize != 60 || got.ProcessedTrainModelSize != 60 {
		t.Errorf("train sizes = %d/%d, want 60/60", got.TrainModelSize, got.ProcessedTrainModelSize)
	}
	if got.DatasetSize != 400 || got.ProcessedSize != 400 {
		t.Errorf("DatasetSize = %d, ProcessedSize = %d, want 400", got.DatasetSize, got.ProcessedSize)
	}
	if got.Size != 340 {
		t.Errorf("Size = %d, want 340", got.Size)
	}
	if f.models.saves != 1 {
		t.Errorf("models saved = %d, want 1", f.models.saves)
	}
	if p.Finished() != 1 || p.Running() != 0 {
		t.Errorf("Finished = %d, Running = %d", p.Finished(), p.Running())
	}
}

func TestPipeline_ReusesStoredModel(t *testing.T) {
	job := &Job{
		ID:                "job-model",
		SourceID:          "src",
		Mode:              ModeModel,
		SizeTier:          SizeAlmostIdentical,
		SignificantFields: map[string]float64{"age": 1},
	}
	f := newFixture(job)
	m, err := model.Train([]model.Sample{
		{Values: map[string]any{"age": 20.0}, Target: 1},
		{Values: map[string]any{"age": 40.0}, Target: 5},
		{Values: map[string]any{"age": 60.0}, Target: 9},
	}, []string{"age"}, model.NormalizationConfig{}, model.DefaultParams())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	f.models.models = map[string]*model.Model{job.ID: m}

	if err := f.pipeline(t, nil).Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.models.saves != 0 {
		t.Errorf("model retrained, saves = %d", f.models.saves)
	}
	if got := f.jobs.snapshot(job.ID); got.Status != StatusCompleted || got.Size != 400 {
		t.Errorf("job = %s size %d", got.Status, got.Size)
	}
}

func TestPipeline_DegenerateTargetsFailBeforeScoring(t *testing.T) {
	job := &Job{
		ID:                "job-flat",
		SourceID:          "src",
		Mode:              ModeModel,
		SizeTier:          SizeBroad,
		SignificantFields: map[string]float64{"state": 1},
	}
	f := newFixture(job)
	f.seeds.members = []SeedMember{
		{ID: 1, ASID: "asid-001", CustomerValue: 3},
		{ID: 2, ASID: "asid-002", CustomerValue: 3},
		{ID: 3, ASID: "asid-003", CustomerValue: 3},
	}

	if err := f.pipeline(t, nil).Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v, terminal failures are not retried", err)
	}

	got := f.jobs.snapshot(job.ID)
	if got.Status != StatusFailed || got.FailureReason != "equal_train_targets" {
		t.Errorf("job = %s (%s)", got.Status, got.FailureReason)
	}
	if got.DatasetSize != 0 || got.ProcessedSize != 0 {
		t.Error("scoring started after a training failure")
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Reason != "equal_train_targets" {
		t.Errorf("notifications = %+v", f.notifier.sent)
	}
}

func TestPipeline_NoColumns(t *testing.T) {
	job := &Job{
		ID:                "job-nocols",
		Mode:              ModeSimpleAny,
		SizeTier:          SizeBroad,
		SignificantFields: map[string]float64{"income": 1},
	}
	f := newFixture(job)

	if err := f.pipeline(t, nil).Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.jobs.snapshot(job.ID); got.Status != StatusFailed || got.FailureReason != "no_columns" {
		t.Errorf("job = %s (%s)", got.Status, got.FailureReason)
	}
}

func TestPipeline_NonPositiveWeightsFailNoColumns(t *testing.T) {
	job := &Job{
		ID:                "job-zero-weights",
		Mode:              ModeSimpleAny,
		SizeTier:          SizeBroad,
		SignificantFields: map[string]float64{"state": 0, "job_level": -1},
	}
	f := newFixture(job)

	if err := f.pipeline(t, nil).Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.jobs.snapshot(job.ID); got.Status != StatusFailed || got.FailureReason != "no_columns" {
		t.Errorf("job = %s (%s)", got.Status, got.FailureReason)
	}
	if _, ok := f.users.written[job.ID]; ok {
		t.Error("users written for a job without usable weights")
	}
}

func TestPipeline_WorkerErrorLosesOnlyPartition(t *testing.T) {
	job := &Job{
		ID:                "job-lost-partition",
		Mode:              ModeSimpleAny,
		SizeTier:          SizeAlmostIdentical,
		SignificantFields: map[string]float64{"state": 1},
	}
	f := newFixture(job)
	f.seeds.dist = FieldDistribution{"state": {"ca": 10}}

	groups, err := AssignBuckets(4)
	if err != nil {
		t.Fatalf("AssignBuckets() error = %v", err)
	}
	failed := make(map[int]bool, len(groups[0]))
	for _, b := range groups[0] {
		failed[b] = true
	}
	f.graph.failBuckets = failed

	var want int64
	for _, r := range f.graph.rows {
		if r.Values["state"] != nil && !failed[bucketOf(r.ASID)] {
			want++
		}
	}
	if want == 0 || want == 360 {
		t.Fatalf("fixture puts %d of 360 rows outside the failed partition", want)
	}

	if err := f.pipeline(t, nil).Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := f.jobs.snapshot(job.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", got.Status, got.FailureReason)
	}
	if got.Size != want || got.Size >= got.DatasetSize {
		t.Errorf("Size = %d, DatasetSize = %d, want Size %d", got.Size, got.DatasetSize, want)
	}
	for _, id := range f.users.written[job.ID] {
		if failed[bucketOf(strings.TrimPrefix(id, "user-"))] {
			t.Errorf("%s comes from the failed partition", id)
		}
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Status != StatusCompleted {
		t.Errorf("notifications = %+v", f.notifier.sent)
	}
}

func TestPipeline_WorkerTimeout(t *testing.T) {
	job := &Job{
		ID:                "job-slow",
		Mode:              ModeSimpleAny,
		SizeTier:          SizeBroad,
		SignificantFields: map[string]float64{"state": 1},
	}
	f := newFixture(job)
	f.graph.block = true

	p := f.pipeline(t, func(c *Config) { c.WorkerTimeout = 50 * time.Millisecond })
	if err := p.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.jobs.snapshot(job.ID); got.Status != StatusFailed || got.FailureReason != "worker_timeout" {
		t.Errorf("job = %s (%s)", got.Status, got.FailureReason)
	}
}

func TestPipeline_SkipsCompletedJob(t *testing.T) {
	job := &Job{ID: "job-done", Status: StatusCompleted, Mode: ModeModel, SizeTier: SizeBroad}
	f := newFixture(job)

	if err := f.pipeline(t, nil).Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Error("completed job was processed again")
	}
}

func TestPipeline_ResumesFromCache(t *testing.T) {
	job := &Job{
		ID:                "job-resume",
		Mode:              ModeSimpleAny,
		SizeTier:          SizeAlmostIdentical,
		SignificantFields: map[string]float64{"state": 1},
	}
	f := newFixture(job)
	f.seeds.dist = FieldDistribution{"state": {"ca": 10}}
	_ = f.cache.SavePartition(job.ID, &WorkerResult{
		Partition: 0,
		TopK:      []ScoredIdentity{{ASID: "cached-asid", Score: 1e9}},
	})

	if err := f.pipeline(t, nil).Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	written := f.users.written[job.ID]
	if len(written) == 0 || written[0] != "user-cached-asid" {
		t.Errorf("cached partition not merged, first = %v", written[:min(1, len(written))])
	}
}

func TestPipeline_UnknownJob(t *testing.T) {
	f := newFixture(&Job{ID: "other"})
	if err := f.pipeline(t, nil).Run(context.Background(), "missing"); err == nil {
		t.Fatal("Run() expected error for unknown job")
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 0
	if _, err := NewPipeline(cfg, Deps{}, zerolog.Nop()); err == nil {
		t.Error("expected config error")
	}
	if _, err := NewPipeline(DefaultConfig(), Deps{}, zerolog.Nop()); err == nil {
		t.Error("expected dependency error")
	}
}
