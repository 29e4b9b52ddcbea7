// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
)

// setupTestRepo opens a private in-memory SQLite database with all tables.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: NewGormLogger(time.Second)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	// SQLite serializes writers; one connection keeps the shared cache stable.
	sqlDB.SetMaxOpenConns(1)

	repo := New(db)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return repo
}

func createTestJob(t *testing.T, repo *Repository, id string) {
	t.Helper()
	err := repo.CreateJob(context.Background(), &lookalike.Job{
		ID:                id,
		UserID:            42,
		SourceID:          "src-1",
		Mode:              lookalike.ModeSimpleAny,
		SizeTier:          lookalike.SizeAlmostIdentical,
		SignificantFields: map[string]float64{"state": 0.6, "job_level": 0.4},
	})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
}

func TestPing(t *testing.T) {
	repo := setupTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
