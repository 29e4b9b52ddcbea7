// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/config"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/database/query"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
)

// DB wraps the DuckDB database holding the identity graph and job scores.
type DB struct {
	conn          *sql.DB
	cfg           *config.DatabaseConfig
	identityTable string
	scoreTable    string
}

// New opens the database and creates the score table.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if dir := filepath.Dir(cfg.Path); cfg.Path != ":memory:" && dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	preserveOrder := "false"
	if cfg.PreserveInsertionOrder {
		preserveOrder = "true"
	}
	dsn := fmt.Sprintf("%s?access_mode=read_write&threads=%d&preserve_insertion_order=%s",
		cfg.Path, threads, preserveOrder)
	if cfg.MaxMemory != "" {
		dsn += "&max_memory=" + cfg.MaxMemory
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn:          conn,
		cfg:           cfg,
		identityTable: cfg.IdentityTable,
		scoreTable:    cfg.ScoreTable,
	}
	if db.identityTable == "" {
		db.identityTable = "enrichment_users"
	}
	if db.scoreTable == "" {
		db.scoreTable = "lookalike_scores"
	}

	db.configureConnectionPool()

	if err := db.createTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", threads).
		Str("identity_table", db.identityTable).
		Msg("DuckDB opened")
	return db, nil
}

// Conn returns the underlying pool.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close checkpoints and closes the database.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	cancel()
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// createTables creates the score table. The identity graph is owned by the
// enrichment loader and only read here.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	table := query.QuoteIdent(db.scoreTable)
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			job_id VARCHAR NOT NULL,
			asid VARCHAR NOT NULL,
			score DOUBLE NOT NULL,
			PRIMARY KEY (job_id, asid)
		)`, table),
	}
	for _, s := range stmts {
		if _, err := db.conn.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("failed to create %s: %w", db.scoreTable, err)
		}
	}
	return nil
}
