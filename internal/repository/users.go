// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	usersTable   = "enrichment_users"
	personsTable = "audience_lookalikes_persons"

	// lookupChunk bounds IN lists and insert batches.
	lookupChunk = 1000
)

// ResolveUsers maps asids to enrichment user IDs. Unknown asids are absent
// from the result.
func (r *Repository) ResolveUsers(ctx context.Context, asids []string) (map[string]string, error) {
	defer observe("resolve_users", usersTable, time.Now())

	out := make(map[string]string, len(asids))
	for start := 0; start < len(asids); start += lookupChunk {
		chunk := asids[start:min(start+lookupChunk, len(asids))]

		var rows []EnrichmentUser
		if err := r.db.WithContext(ctx).Where("asid IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("resolve users: %w", err)
		}
		for _, u := range rows {
			out[u.ASID] = u.ID
		}
	}
	return out, nil
}

// ReplaceLookalikePersons rewrites the output rows of a job in one transaction.
func (r *Repository) ReplaceLookalikePersons(ctx context.Context, jobID string, userIDs []string) error {
	defer observe("replace_persons", personsTable, time.Now())

	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lookalike_id = ?", jobID).Delete(&LookalikePerson{}).Error; err != nil {
			return err
		}
		if len(userIDs) == 0 {
			return nil
		}

		seen := make(map[string]struct{}, len(userIDs))
		rows := make([]LookalikePerson, 0, len(userIDs))
		for _, id := range userIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			rows = append(rows, LookalikePerson{LookalikeID: jobID, EnrichmentUserID: id, CreatedAt: now})
		}
		return tx.CreateInBatches(rows, lookupChunk).Error
	})
	if err != nil {
		return fmt.Errorf("replace lookalike persons of %s: %w", jobID, err)
	}
	return nil
}

// LookalikePersons lists the user IDs stored for a job.
func (r *Repository) LookalikePersons(ctx context.Context, jobID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&LookalikePerson{}).
		Where("lookalike_id = ?", jobID).
		Order("enrichment_user_id").
		Pluck("enrichment_user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("lookalike persons of %s: %w", jobID, err)
	}
	return ids, nil
}
