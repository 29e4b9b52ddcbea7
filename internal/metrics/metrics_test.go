// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestRecordDBQuery tests database query metric recording
func TestRecordDBQuery(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		table     string
		duration  time.Duration
		err       error
	}{
		{
			name:      "successful scan",
			operation: "SCAN",
			table:     "enrichment_users",
			duration:  10 * time.Millisecond,
		},
		{
			name:      "failed insert with long error - should truncate to 50 chars",
			operation: "INSERT",
			table:     "lookalike_scores",
			duration:  50 * time.Millisecond,
			err:       errors.New("this is a very long error message that exceeds fifty characters and should be truncated properly"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(DBQueryErrors.WithLabelValues(tt.operation, tt.table, truncate(tt.err)))
			RecordDBQuery(tt.operation, tt.table, tt.duration, tt.err)
			if tt.err == nil {
				return
			}
			after := testutil.ToFloat64(DBQueryErrors.WithLabelValues(tt.operation, tt.table, truncate(tt.err)))
			if after != before+1 {
				t.Errorf("error counter = %v, want %v", after, before+1)
			}
		})
	}
}

func truncate(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

func TestRecordRows(t *testing.T) {
	scored := testutil.ToFloat64(RowsScored.WithLabelValues("simple_all"))
	skipped := testutil.ToFloat64(RowsSkipped.WithLabelValues("simple_all"))

	RecordRows("simple_all", 120, 3)
	RecordRows("simple_all", 0, 0)

	if got := testutil.ToFloat64(RowsScored.WithLabelValues("simple_all")); got != scored+120 {
		t.Errorf("rows scored = %v, want %v", got, scored+120)
	}
	if got := testutil.ToFloat64(RowsSkipped.WithLabelValues("simple_all")); got != skipped+3 {
		t.Errorf("rows skipped = %v, want %v", got, skipped+3)
	}
}

func TestRecordRowsRejected(t *testing.T) {
	before := testutil.ToFloat64(IdentityRowsRejected.WithLabelValues("enrichment_users"))

	RecordRowsRejected("enrichment_users", 2)
	RecordRowsRejected("enrichment_users", 0)

	if got := testutil.ToFloat64(IdentityRowsRejected.WithLabelValues("enrichment_users")); got != before+2 {
		t.Errorf("rows rejected = %v, want %v", got, before+2)
	}
}

func TestRecordWorkerPartialCountsInterruption(t *testing.T) {
	before := testutil.ToFloat64(StreamInterruptions)

	RecordWorker("ok", time.Second)
	RecordWorker("partial", 2*time.Second)

	if got := testutil.ToFloat64(StreamInterruptions); got != before+1 {
		t.Errorf("stream interruptions = %v, want %v", got, before+1)
	}
}

func TestRecordCheckpointAndNotification(t *testing.T) {
	okBefore := testutil.ToFloat64(ProgressCheckpoints.WithLabelValues("processed_size", "ok"))
	errBefore := testutil.ToFloat64(Notifications.WithLabelValues("redis", "error"))

	RecordCheckpoint("processed_size", nil)
	RecordNotification("redis", errors.New("connection refused"))

	if got := testutil.ToFloat64(ProgressCheckpoints.WithLabelValues("processed_size", "ok")); got != okBefore+1 {
		t.Errorf("checkpoints = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(Notifications.WithLabelValues("redis", "error")); got != errBefore+1 {
		t.Errorf("notifications = %v, want %v", got, errBefore+1)
	}
}

// TestRecordAPIRequest tests status server request metric recording
func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/jobs/{id}/progress", "404"))
	RecordAPIRequest("GET", "/jobs/{id}/progress", "404", 3*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/jobs/{id}/progress", "404"))

	if after-before != 1 {
		t.Errorf("api_requests_total delta = %v, want 1", after-before)
	}
}
