// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// FinalResult is the finalized lookalike audience.
type FinalResult struct {
	ASIDs      []string
	Scores     []float64
	UserIDs    []string
	Stats      SimilarityStats
	Unresolved int
}

// PostProcessor turns stored scores into the final audience.
type PostProcessor struct {
	jobs   JobStore
	seeds  SeedSource
	scores ScoreStore
	users  UserResolver
	logger zerolog.Logger
}

// NewPostProcessor creates a post-processor.
func NewPostProcessor(jobs JobStore, seeds SeedSource, scores ScoreStore, users UserResolver, logger zerolog.Logger) *PostProcessor {
	return &PostProcessor{jobs: jobs, seeds: seeds, scores: scores, users: users, logger: logger}
}

// Finalize re-reads the job's scores, drops seed identities, truncates to the
// target size, stores size and statistics on the job row and writes the
// resolved user IDs to the output table. The job is marked completed.
func (p *PostProcessor) Finalize(ctx context.Context, job *Job) (*FinalResult, error) {
	target, err := job.SizeTier.Target()
	if err != nil {
		return nil, err
	}

	seed, err := p.seeds.SeedASIDs(ctx, job.SourceID)
	if err != nil {
		return nil, fmt.Errorf("load seed identities: %w", err)
	}
	exclude := make(map[string]struct{}, len(seed))
	for _, a := range seed {
		exclude[a] = struct{}{}
	}

	top, err := p.scores.TopScores(ctx, job.ID, target, seed)
	if err != nil {
		return nil, fmt.Errorf("select top scores: %w", err)
	}

	res := &FinalResult{
		ASIDs:  make([]string, 0, len(top)),
		Scores: make([]float64, 0, len(top)),
	}
	for _, s := range top {
		if _, isSeed := exclude[s.ASID]; isSeed {
			continue
		}
		if len(res.ASIDs) == target {
			break
		}
		res.ASIDs = append(res.ASIDs, s.ASID)
		res.Scores = append(res.Scores, s.Score)
	}
	res.Stats = ComputeStats(res.Scores)

	users, err := p.users.ResolveUsers(ctx, res.ASIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}
	res.UserIDs = make([]string, 0, len(res.ASIDs))
	for _, a := range res.ASIDs {
		if id, ok := users[a]; ok {
			res.UserIDs = append(res.UserIDs, id)
		} else {
			res.Unresolved++
		}
	}
	if res.Unresolved > 0 {
		p.logger.Warn().
			Str("job_id", job.ID).
			Int("unresolved", res.Unresolved).
			Msg("Some lookalike identities have no enrichment user")
	}

	if err := p.users.ReplaceLookalikePersons(ctx, job.ID, res.UserIDs); err != nil {
		return nil, fmt.Errorf("store lookalike persons: %w", err)
	}
	if err := p.jobs.MarkCompleted(ctx, job.ID, int64(len(res.ASIDs)), res.Stats); err != nil {
		return nil, fmt.Errorf("store job statistics: %w", err)
	}
	return res, nil
}
