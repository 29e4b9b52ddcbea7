// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/database/query"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/metrics"
)

// bucketExpr assigns every identity to one of lookalike.BucketCount buckets.
const bucketExpr = "hash(asid) % 100"

// fetchChunk bounds the IN list of attribute lookups.
const fetchChunk = 1000

// Columns lists the identity graph columns in table order.
func (db *DB) Columns(ctx context.Context) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = ?
		ORDER BY ordinal_position`, db.identityTable)
	if err != nil {
		metrics.RecordDBQuery("columns", db.identityTable, time.Since(start), err)
		return nil, fmt.Errorf("list columns of %s: %w", db.identityTable, err)
	}
	defer closeWithLog(rows, "rows")

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols = append(cols, c)
	}
	err = rows.Err()
	metrics.RecordDBQuery("columns", db.identityTable, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("identity table %s does not exist", db.identityTable)
	}
	return cols, nil
}

// FetchByASIDs returns the requested columns for the given identities.
// Identities that are not in the graph are absent from the result.
func (db *DB) FetchByASIDs(ctx context.Context, columns, asids []string) ([]lookalike.IdentityRow, error) {
	if len(asids) == 0 {
		return nil, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	out := make([]lookalike.IdentityRow, 0, len(asids))
	for start := 0; start < len(asids); start += fetchChunk {
		chunk := asids[start:min(start+fetchChunk, len(asids))]

		where, args := query.AddIn(query.NewWhereBuilder(), "asid", chunk).Build()
		stmt := fmt.Sprintf("SELECT %s FROM %s %s",
			selectColumns(columns), query.QuoteIdent(db.identityTable), where)

		began := time.Now()
		rows, err := db.conn.QueryContext(ctx, stmt, args...)
		if err != nil {
			metrics.RecordDBQuery("fetch_by_asid", db.identityTable, time.Since(began), err)
			return nil, fmt.Errorf("fetch identities: %w", err)
		}
		rejected, err := readRows(rows, columns, func(r lookalike.IdentityRow) error {
			out = append(out, r)
			return nil
		})
		db.recordRejected("fetch_by_asid", rejected)
		metrics.RecordDBQuery("fetch_by_asid", db.identityTable, time.Since(began), err)
		if err != nil {
			return nil, fmt.Errorf("fetch identities: %w", err)
		}
	}
	return out, nil
}

// Count returns how many rows Scan would deliver for req.
func (db *DB) Count(ctx context.Context, req lookalike.ScanRequest) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	inner, args := db.scanSQL(req, "1")
	stmt := "SELECT count(*) FROM (" + inner + ")"

	start := time.Now()
	var n int64
	err := db.conn.QueryRowContext(ctx, stmt, args...).Scan(&n)
	metrics.RecordDBQuery("count", db.identityTable, time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("count partition: %w", err)
	}
	return n, nil
}

// Scan streams the partition described by req to fn in blocks of
// req.BlockSize rows on a dedicated connection. A read failure after the
// stream opened is reported as lookalike.ErrStreamInterrupted together with
// the number of rows already delivered. Malformed rows are skipped without
// ending the stream.
func (db *DB) Scan(ctx context.Context, req lookalike.ScanRequest, fn func([]lookalike.IdentityRow) error) (int64, error) {
	if len(req.Columns) == 0 {
		return 0, lookalike.ErrNoColumns
	}
	blockSize := req.BlockSize
	if blockSize <= 0 {
		blockSize = 10_000
	}

	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire scan connection: %w", err)
	}
	defer closeWithLog(conn, "scan connection")

	stmt, args := db.scanSQL(req, selectColumns(req.Columns))
	start := time.Now()
	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		metrics.RecordDBQuery("scan", db.identityTable, time.Since(start), err)
		return 0, fmt.Errorf("open partition stream: %w", err)
	}

	var delivered int64
	block := make([]lookalike.IdentityRow, 0, blockSize)
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		if err := fn(block); err != nil {
			return err
		}
		delivered += int64(len(block))
		block = make([]lookalike.IdentityRow, 0, blockSize)
		return nil
	}

	var consumerErr error
	rejected, readErr := readRows(rows, req.Columns, func(r lookalike.IdentityRow) error {
		block = append(block, r)
		if len(block) < blockSize {
			return nil
		}
		if err := flush(); err != nil {
			consumerErr = err
			return err
		}
		return nil
	})
	metrics.RecordDBQuery("scan", db.identityTable, time.Since(start), readErr)
	db.recordRejected("scan", rejected)

	switch {
	case consumerErr != nil:
		return delivered, consumerErr
	case readErr == nil:
		return delivered, flush()
	case ctx.Err() != nil:
		return delivered, ctx.Err()
	}

	// Rows read before the failure still count.
	if err := flush(); err != nil {
		return delivered, err
	}
	logging.Warn().
		Err(readErr).
		Bool("connection_lost", isConnectionError(readErr)).
		Int64("delivered", delivered).
		Ints("buckets", req.Buckets).
		Msg("Identity graph stream failed")
	return delivered, fmt.Errorf("%w: %w", lookalike.ErrStreamInterrupted, readErr)
}

// scanSQL renders the partition query with the given select list.
func (db *DB) scanSQL(req lookalike.ScanRequest, selectList string) (string, []any) {
	wb := query.AddIn(query.NewWhereBuilder(), bucketExpr, req.Buckets)
	switch req.Filter {
	case lookalike.FilterAllPresent:
		wb.AddAllNotNull(req.Columns)
	case lookalike.FilterAnyPresent:
		wb.AddAnyNotNull(req.Columns)
	}
	where, args := wb.Build()

	stmt := fmt.Sprintf("SELECT %s FROM %s %s", selectList, query.QuoteIdent(db.identityTable), where)
	if req.RowLimit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", req.RowLimit)
	}
	return stmt, args
}

func selectColumns(columns []string) string {
	if len(columns) == 0 {
		return "asid"
	}
	return "asid, " + query.SelectList(columns)
}

// readRows decodes "asid, columns..." rows and closes them. Rows that fail
// to decode or carry no textual asid are skipped and counted in rejected;
// only consumer errors and rows.Err() end the read.
func readRows(rows *sql.Rows, columns []string, fn func(lookalike.IdentityRow) error) (rejected int64, err error) {
	defer closeWithLog(rows, "rows")

	raw := make([]any, len(columns)+1)
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		clear(raw)
		if err := rows.Scan(ptrs...); err != nil {
			rejected++
			logging.Debug().Err(err).Msg("Skipping undecodable identity row")
			continue
		}
		asid, ok := asidText(raw[0])
		if !ok {
			rejected++
			logging.Debug().Str("asid_type", fmt.Sprintf("%T", raw[0])).Msg("Skipping identity row without asid")
			continue
		}
		values := make(map[string]any, len(columns))
		for i, c := range columns {
			values[c] = normalizeValue(raw[i+1])
		}
		if err := fn(lookalike.IdentityRow{ASID: asid, Values: values}); err != nil {
			return rejected, err
		}
	}
	return rejected, rows.Err()
}

func asidText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case []byte:
		return string(t), len(t) > 0
	default:
		return "", false
	}
}

// recordRejected logs and counts rows readRows skipped.
func (db *DB) recordRejected(operation string, rejected int64) {
	if rejected == 0 {
		return
	}
	metrics.RecordRowsRejected(db.identityTable, rejected)
	logging.Warn().
		Str("operation", operation).
		Str("table", db.identityTable).
		Int64("rejected", rejected).
		Msg("Skipped malformed identity rows")
}

// normalizeValue maps driver types onto the small set the scorers understand:
// nil, string, bool, float64, int64 and time.Time.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, int64, time.Time:
		return t
	case []byte:
		return string(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case *big.Int:
		f, _ := new(big.Float).SetInt(t).Float64()
		return f
	case interface{ Float64() float64 }:
		// DECIMAL columns.
		return t.Float64()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
