// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/database/query"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/metrics"
)

// conflictRetries bounds retries of a score write that hit a transaction conflict.
const conflictRetries = 3

// BulkInsert replaces the stored scores of a job in one transaction.
func (db *DB) BulkInsert(ctx context.Context, jobID string, scores []lookalike.ScoredIdentity) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if err = db.replaceScores(ctx, jobID, scores); err == nil || !isTransactionConflict(err) {
			return err
		}
		logging.Warn().Err(err).Str("job_id", jobID).Int("attempt", attempt+1).Msg("Score write conflicted, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
	return err
}

func (db *DB) replaceScores(ctx context.Context, jobID string, scores []lookalike.ScoredIdentity) error {
	start := time.Now()
	table := query.QuoteIdent(db.scoreTable)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin score transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE job_id = ?", jobID); err != nil {
		return fmt.Errorf("clear scores: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO "+table+" (job_id, asid, score) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare score insert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for _, s := range scores {
		if _, err := stmt.ExecContext(ctx, jobID, s.ASID, s.Score); err != nil {
			return fmt.Errorf("insert score for %s: %w", s.ASID, err)
		}
	}
	err = tx.Commit()
	metrics.RecordDBQuery("bulk_insert", db.scoreTable, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("commit scores: %w", err)
	}
	return nil
}

// TopScores returns up to limit scores of a job, best first, skipping the
// excluded identities. Ties are broken by asid.
func (db *DB) TopScores(ctx context.Context, jobID string, limit int, exclude []string) ([]lookalike.ScoredIdentity, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	wb := query.NewWhereBuilder().AddClause("job_id = ?", jobID)
	where, args := query.AddNotIn(wb, "asid", exclude).Build()
	stmt := fmt.Sprintf("SELECT asid, score FROM %s %s ORDER BY score DESC, asid ASC LIMIT %d",
		query.QuoteIdent(db.scoreTable), where, limit)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		metrics.RecordDBQuery("top_scores", db.scoreTable, time.Since(start), err)
		return nil, fmt.Errorf("select top scores: %w", err)
	}
	defer closeWithLog(rows, "rows")

	out := make([]lookalike.ScoredIdentity, 0, min(limit, 4096))
	for rows.Next() {
		var s lookalike.ScoredIdentity
		if err := rows.Scan(&s.ASID, &s.Score); err != nil {
			return nil, fmt.Errorf("decode score: %w", err)
		}
		out = append(out, s)
	}
	err = rows.Err()
	metrics.RecordDBQuery("top_scores", db.scoreTable, time.Since(start), err)
	return out, err
}

// DeleteScores drops the stored scores of a job.
func (db *DB) DeleteScores(ctx context.Context, jobID string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	_, err := db.conn.ExecContext(ctx, "DELETE FROM "+query.QuoteIdent(db.scoreTable)+" WHERE job_id = ?", jobID)
	return err
}
