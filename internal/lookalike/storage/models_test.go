// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package storage

import (
	"context"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike/model"
)

func trainedModel(t *testing.T) *model.Model {
	t.Helper()
	samples := make([]model.Sample, 0, 40)
	for i := range 40 {
		level := "staff"
		if i%2 == 0 {
			level = "director"
		}
		samples = append(samples, model.Sample{
			Values: map[string]any{"age": float64(20 + i), "job_level": level},
			Target: float64(i%2) + float64(i)/100,
		})
	}
	params := model.DefaultParams()
	params.Rounds = 10
	params.MinSamplesLeaf = 2
	m, err := model.Train(samples, []string{"age", "job_level"}, model.NormalizationConfig{
		Numeric:     []string{"age"},
		Categorical: []string{"job_level"},
	}, params)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	return m
}

type recordingUploader struct {
	mu      sync.Mutex
	objects []string
	fail    bool
}

func (u *recordingUploader) UploadFile(_ context.Context, object, path, _ string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail {
		return errors.New("bucket unavailable")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	u.objects = append(u.objects, object)
	return nil
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{"creates directory", func(t *testing.T) string { return filepath.Join(t.TempDir(), "models") }},
		{"existing directory", func(t *testing.T) string { return t.TempDir() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.setup(t))
			if err != nil || store == nil {
				t.Fatalf("NewStore() = %v, %v", store, err)
			}
		})
	}
}

func TestSaveAndLoadModel(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()
	m := trainedModel(t)

	if err := store.SaveModel(ctx, "job-1", m); err != nil {
		t.Fatalf("SaveModel() error = %v", err)
	}
	loaded, err := store.LoadModel(ctx, "job-1")
	if err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	if !slices.Equal(loaded.Columns, m.Columns) || len(loaded.Trees) != len(m.Trees) {
		t.Fatalf("loaded model differs: columns %v trees %d", loaded.Columns, len(loaded.Trees))
	}

	row := map[string]any{"age": 31.0, "job_level": "director"}
	want, _ := m.Predict(row)
	got, err := loaded.Predict(row)
	if err != nil || got != want {
		t.Errorf("Predict() = %v, %v; want %v", got, err, want)
	}
}

func TestLoadModel_NotFound(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	_, err := store.LoadModel(context.Background(), "missing")
	if !errors.Is(err, lookalike.ErrModelNotFound) {
		t.Errorf("LoadModel() error = %v, want ErrModelNotFound", err)
	}
}

func TestVersionsAndRescan(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	ctx := context.Background()
	m := trainedModel(t)

	for range 3 {
		if err := store.SaveModel(ctx, "job-1", m); err != nil {
			t.Fatalf("SaveModel() error = %v", err)
		}
	}
	if v, ok := store.LatestVersion("job-1"); !ok || v != 3 {
		t.Errorf("LatestVersion() = %d, %v; want 3", v, ok)
	}

	// A new store over the same directory sees the saved versions.
	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if v, _ := reopened.LatestVersion("job-1"); v != 3 {
		t.Errorf("reopened LatestVersion() = %d, want 3", v)
	}

	if err := reopened.Prune(ctx, "job-1", 1); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "lookalike_job-1_v*.gob.gz"))
	if len(files) != 1 || filepath.Base(files[0]) != "lookalike_job-1_v3.gob.gz" {
		t.Errorf("files after prune = %v", files)
	}

	metas, err := reopened.ListModels(ctx)
	if err != nil || len(metas) != 1 || metas[0].Version != 3 || metas[0].Checksum == "" {
		t.Errorf("ListModels() = %+v, %v", metas, err)
	}

	if err := reopened.Delete(ctx, "job-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := reopened.LoadModel(ctx, "job-1"); !errors.Is(err, lookalike.ErrModelNotFound) {
		t.Errorf("LoadModel() after delete error = %v", err)
	}
}

func TestLoad_ChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	ctx := context.Background()

	type payload struct{ Values []int }
	if _, err := store.save("job-x", payload{Values: []int{1, 2, 3}}, ModelMetadata{}); err != nil {
		t.Fatalf("save() error = %v", err)
	}
	// Rewrite the stored checksum.
	path := store.modelPath("job-x", 1)
	meta, err := store.readMetadata("job-x", 1)
	if err != nil {
		t.Fatalf("readMetadata() error = %v", err)
	}
	var p payload
	if _, err := store.Load(ctx, "job-x", 1, &p); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	meta.Checksum = "deadbeef"
	if err := rewriteMetadata(path, meta); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, err := store.Load(ctx, "job-x", 1, &p); err == nil {
		t.Error("expected checksum mismatch")
	}
}

func TestSaveModel_Uploads(t *testing.T) {
	ctx := context.Background()
	m := trainedModel(t)

	up := &recordingUploader{}
	store, _ := NewStore(t.TempDir(), WithUploader(up))
	if err := store.SaveModel(ctx, "job-1", m); err != nil {
		t.Fatalf("SaveModel() error = %v", err)
	}
	if !slices.Equal(up.objects, []string{"models/lookalike_job-1_v1.gob.gz"}) {
		t.Errorf("uploaded = %v", up.objects)
	}

	// Upload failures do not fail the save.
	failing := &recordingUploader{fail: true}
	store2, _ := NewStore(t.TempDir(), WithUploader(failing))
	if err := store2.SaveModel(ctx, "job-1", m); err != nil {
		t.Errorf("SaveModel() with failing uploader error = %v", err)
	}
}

func TestParseModelFilename(t *testing.T) {
	tests := []struct {
		name    string
		jobID   string
		version int
		ok      bool
	}{
		{"lookalike_abc_v2.gob.gz", "abc", 2, true},
		{"lookalike_a_v_b_v10.gob.gz", "a_v_b", 10, true},
		{"lookalike_abc.gob.gz", "", 0, false},
		{"ease_v1.gob.gz", "", 0, false},
		{"lookalike_abc_v0.gob.gz", "", 0, false},
		{".model-123", "", 0, false},
	}
	for _, tt := range tests {
		jobID, version, ok := parseModelFilename(tt.name)
		if jobID != tt.jobID || version != tt.version || ok != tt.ok {
			t.Errorf("parseModelFilename(%q) = %q, %d, %v", tt.name, jobID, version, ok)
		}
	}
}

func TestSave_InvalidJobID(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	if err := store.SaveModel(context.Background(), "../escape", trainedModel(t)); err == nil {
		t.Error("expected error for job id with a path separator")
	}
}

// rewriteMetadata re-encodes a model file with modified metadata.
func rewriteMetadata(path string, meta ModelMetadata) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	var sf storedFile
	err = gob.NewDecoder(f).Decode(&sf)
	_ = f.Close()
	if err != nil {
		return err
	}
	sf.Metadata = meta
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()
	return gob.NewEncoder(out).Encode(sf)
}
