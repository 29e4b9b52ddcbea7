// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package database

import (
	"runtime"
	"strings"
	"time"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
)

// poolHeadroom is kept free of scan connections for lookups and score writes.
const poolHeadroom = 4

// poolSize gives every scoring worker its own scan connection plus headroom.
func poolSize(workers int) int {
	return max(runtime.NumCPU(), 4, workers) + poolHeadroom
}

func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(poolSize(0))
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// SizePoolForWorkers grows the pool so that workers concurrent scans never
// wait on each other for a connection.
func (db *DB) SizePoolForWorkers(workers int) {
	size := poolSize(workers)
	db.conn.SetMaxOpenConns(size)
	logging.Debug().Int("workers", workers).Int("max_open_conns", size).Msg("DuckDB pool sized")
}

// isConnectionError reports errors that mean the connection itself failed.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad connection",
		"database is closed",
		"IO Error",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// isTransactionConflict reports DuckDB optimistic concurrency conflicts.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction conflict") ||
		strings.Contains(msg, "Conflict on update")
}
