// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
)

const (
	matchedTable  = "audience_sources_matched_persons"
	insightsTable = "audience_source_insights"
)

// SeedMembers returns up to limit members of a source with ID > afterID,
// ordered by ID, for keyset paging.
func (r *Repository) SeedMembers(ctx context.Context, sourceID string, afterID int64, limit int) ([]lookalike.SeedMember, error) {
	defer observe("seed_members", matchedTable, time.Now())

	var rows []SourceMatchedPerson
	err := r.db.WithContext(ctx).
		Where("source_id = ? AND id > ?", sourceID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("seed members of %s: %w", sourceID, err)
	}

	out := make([]lookalike.SeedMember, len(rows))
	for i, row := range rows {
		out[i] = lookalike.SeedMember{ID: row.ID, ASID: row.ASID, CustomerValue: row.CustomerValue}
	}
	return out, nil
}

// CountSeedMembers counts the matched members of a source.
func (r *Repository) CountSeedMembers(ctx context.Context, sourceID string) (int64, error) {
	defer observe("count_seed_members", matchedTable, time.Now())

	var n int64
	if err := r.db.WithContext(ctx).Model(&SourceMatchedPerson{}).Where("source_id = ?", sourceID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count seed members of %s: %w", sourceID, err)
	}
	return n, nil
}

// SeedASIDs returns the distinct asids of a source.
func (r *Repository) SeedASIDs(ctx context.Context, sourceID string) ([]string, error) {
	defer observe("seed_asids", matchedTable, time.Now())

	var asids []string
	err := r.db.WithContext(ctx).
		Model(&SourceMatchedPerson{}).
		Where("source_id = ? AND asid <> ''", sourceID).
		Distinct().
		Order("asid").
		Pluck("asid", &asids).Error
	if err != nil {
		return nil, fmt.Errorf("seed asids of %s: %w", sourceID, err)
	}
	return asids, nil
}

// FieldDistributions returns the insight distributions of a source. A source
// without insights returns lookalike.ErrNoDistribution.
func (r *Repository) FieldDistributions(ctx context.Context, sourceID string) (lookalike.FieldDistribution, error) {
	defer observe("field_distributions", insightsTable, time.Now())

	var row SourceInsight
	if err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&row).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", lookalike.ErrNoDistribution, sourceID)
		}
		return nil, fmt.Errorf("field distributions of %s: %w", sourceID, err)
	}

	dist := row.Distribution.Data()
	if len(dist) == 0 {
		return nil, fmt.Errorf("%w: %s", lookalike.ErrNoDistribution, sourceID)
	}
	return lookalike.FieldDistribution(dist), nil
}

// SaveFieldDistributions upserts the distributions of a source.
func (r *Repository) SaveFieldDistributions(ctx context.Context, sourceID string, dist lookalike.FieldDistribution) error {
	row := SourceInsight{
		SourceID:     sourceID,
		Distribution: datatypes.NewJSONType(map[string]map[string]int(dist)),
	}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save field distributions of %s: %w", sourceID, err)
	}
	return nil
}
