// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike/model"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/metrics"
)

// Profile is one seed member with its identity attributes.
type Profile struct {
	ASID   string
	Values map[string]any
	Target float64
}

// ProfileFetcher loads the seed audience for training.
type ProfileFetcher struct {
	seeds    SeedSource
	graph    IdentityGraph
	progress ProgressRecorder
	pageSize int
	logger   zerolog.Logger
}

// NewProfileFetcher creates a fetcher reading seed members in pages of pageSize.
func NewProfileFetcher(seeds SeedSource, graph IdentityGraph, progress ProgressRecorder, pageSize int, logger zerolog.Logger) *ProfileFetcher {
	if pageSize <= 0 {
		pageSize = 5000
	}
	return &ProfileFetcher{
		seeds:    seeds,
		graph:    graph,
		progress: progress,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Fetch returns every seed member's attributes and target. Members without an
// identity-graph row keep empty attributes. A *TrainingFailure is returned when
// the result cannot train a regressor.
func (f *ProfileFetcher) Fetch(ctx context.Context, job *Job, columns []string) ([]Profile, error) {
	var profiles []Profile
	var after, pending int64

	for {
		page, err := f.seeds.SeedMembers(ctx, job.SourceID, after, f.pageSize)
		if err != nil {
			return nil, fmt.Errorf("load seed members: %w", err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].ID

		asids := make([]string, len(page))
		for i, m := range page {
			asids[i] = m.ASID
		}
		rows, err := f.graph.FetchByASIDs(ctx, columns, asids)
		if err != nil {
			return nil, fmt.Errorf("load seed attributes: %w", err)
		}
		byASID := make(map[string]map[string]any, len(rows))
		for _, r := range rows {
			byASID[r.ASID] = r.Values
		}

		for _, m := range page {
			values := byASID[m.ASID]
			if values == nil {
				values = map[string]any{}
			}
			profiles = append(profiles, Profile{ASID: m.ASID, Values: values, Target: m.CustomerValue})
		}

		pending += int64(len(page))
		if f.progress != nil {
			_, err := f.progress.AddProcessedTrainModel(ctx, job.ID, pending)
			metrics.RecordCheckpoint("processed_train_model_size", err)
			if err != nil {
				f.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Train progress checkpoint failed")
			} else {
				pending = 0
			}
		}

		if len(page) < f.pageSize {
			break
		}
	}

	targets := make([]float64, len(profiles))
	for i, p := range profiles {
		targets[i] = p.Target
	}
	if err := ValidateTargets(targets); err != nil {
		return nil, err
	}
	return profiles, nil
}

// Samples converts profiles to training samples.
func Samples(profiles []Profile) []model.Sample {
	out := make([]model.Sample, len(profiles))
	for i, p := range profiles {
		out[i] = model.Sample{Values: p.Values, Target: p.Target}
	}
	return out
}
