// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike/model"
)

const (
	filePrefix = "lookalike_"
	fileSuffix = ".gob.gz"
)

// ModelMetadata describes a stored model.
type ModelMetadata struct {
	JobID   string `json:"job_id"`
	Version int    `json:"version"`

	// Columns are the identity graph columns the model was trained on.
	Columns []string `json:"columns"`

	TrainedAt time.Time `json:"trained_at"`
	SavedAt   time.Time `json:"saved_at"`

	TrainRows int     `json:"train_rows"`
	TestRMSE  float64 `json:"test_rmse"`
	Trees     int     `json:"trees"`

	// Checksum is the SHA-256 of the uncompressed gob payload.
	Checksum  string `json:"checksum"`
	SizeBytes int64  `json:"size_bytes"`
}

// storedFile is the on-disk format.
type storedFile struct {
	Metadata       ModelMetadata
	CompressedData []byte
}

// Store manages model files in one directory.
type Store struct {
	baseDir  string
	uploader lookalike.ArtifactUploader

	mu       sync.RWMutex
	versions map[string]int
}

// Option configures a Store.
type Option func(*Store)

// WithUploader mirrors saved models to object storage.
func WithUploader(u lookalike.ArtifactUploader) Option {
	return func(s *Store) { s.uploader = u }
}

// NewStore opens a store at baseDir, creating it if needed, and indexes the
// models already present.
func NewStore(baseDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create model directory: %w", err)
	}
	s := &Store{
		baseDir:  baseDir,
		versions: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.scanModels(); err != nil {
		return nil, fmt.Errorf("scan existing models: %w", err)
	}
	return s, nil
}

func (s *Store) scanModels() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		jobID, version, ok := parseModelFilename(e.Name())
		if !ok {
			continue
		}
		if v, seen := s.versions[jobID]; !seen || version > v {
			s.versions[jobID] = version
		}
	}
	return nil
}

// parseModelFilename splits "lookalike_<job>_v<n>.gob.gz".
func parseModelFilename(name string) (jobID string, version int, ok bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", 0, false
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	i := strings.LastIndex(stem, "_v")
	if i <= 0 {
		return "", 0, false
	}
	version, err := strconv.Atoi(stem[i+2:])
	if err != nil || version <= 0 {
		return "", 0, false
	}
	return stem[:i], version, true
}

// SaveModel writes m as the next version for jobID.
func (s *Store) SaveModel(ctx context.Context, jobID string, m *model.Model) error {
	if m == nil {
		return errors.New("nil model")
	}
	meta := ModelMetadata{
		Columns:   slices.Clone(m.Columns),
		TrainedAt: m.Metrics.TrainedAt,
		TrainRows: m.Metrics.TrainRows,
		TestRMSE:  m.Metrics.TestRMSE,
		Trees:     len(m.Trees),
	}
	path, err := s.save(jobID, m, meta)
	if err != nil {
		return err
	}

	if s.uploader != nil {
		object := "models/" + filepath.Base(path)
		if err := s.uploader.UploadFile(ctx, object, path, "application/gzip"); err != nil {
			// The local copy is authoritative.
			logging.Warn().Err(err).Str("job_id", jobID).Str("object", object).Msg("Model upload failed")
		}
	}
	return nil
}

func (s *Store) save(jobID string, data any, meta ModelMetadata) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(data); err != nil {
		return "", fmt.Errorf("encode model: %w", err)
	}
	sum := sha256.Sum256(raw.Bytes())

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return "", fmt.Errorf("compress model: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return "", fmt.Errorf("finalize compression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.versions[jobID] + 1
	meta.JobID = jobID
	meta.Version = version
	meta.Checksum = hex.EncodeToString(sum[:])
	meta.SizeBytes = int64(compressed.Len())
	meta.SavedAt = time.Now().UTC()

	// Write to a temp file and rename so readers never see a partial model.
	path := s.modelPath(jobID, version)
	tmp, err := os.CreateTemp(s.baseDir, ".model-*")
	if err != nil {
		return "", fmt.Errorf("create model file: %w", err)
	}
	tmpName := tmp.Name()
	encErr := gob.NewEncoder(tmp).Encode(storedFile{Metadata: meta, CompressedData: compressed.Bytes()})
	closeErr := tmp.Close()
	if encErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write model file: %w", errors.Join(encErr, closeErr))
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("install model file: %w", err)
	}

	s.versions[jobID] = version
	return path, nil
}

// LoadModel returns the latest model of jobID, or lookalike.ErrModelNotFound.
func (s *Store) LoadModel(ctx context.Context, jobID string) (*model.Model, error) {
	var m model.Model
	if _, err := s.Load(ctx, jobID, 0, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load decodes a stored version into target. Version 0 means the latest.
func (s *Store) Load(_ context.Context, jobID string, version int, target any) (*ModelMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		v, ok := s.versions[jobID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", lookalike.ErrModelNotFound, jobID)
		}
		version = v
	}

	f, err := os.Open(s.modelPath(jobID, version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s v%d", lookalike.ErrModelNotFound, jobID, version)
		}
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("decompress model: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed data: %w", err)
	}
	sum := sha256.Sum256(raw)
	if got := hex.EncodeToString(sum[:]); got != sf.Metadata.Checksum {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", sf.Metadata.Checksum, got)
	}

	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(target); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return &sf.Metadata, nil
}

// LatestVersion returns the newest version stored for jobID.
func (s *Store) LatestVersion(jobID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[jobID]
	return v, ok
}

// ListModels returns the metadata of the latest version of every job.
func (s *Store) ListModels(_ context.Context) ([]ModelMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ModelMetadata, 0, len(s.versions))
	for jobID, version := range s.versions {
		meta, err := s.readMetadata(jobID, version)
		if err != nil {
			logging.Debug().Err(err).Str("job_id", jobID).Msg("Skipping unreadable model")
			continue
		}
		out = append(out, meta)
	}
	slices.SortFunc(out, func(a, b ModelMetadata) int { return strings.Compare(a.JobID, b.JobID) })
	return out, nil
}

func (s *Store) readMetadata(jobID string, version int) (ModelMetadata, error) {
	f, err := os.Open(s.modelPath(jobID, version))
	if err != nil {
		return ModelMetadata{}, err
	}
	defer func() { _ = f.Close() }()
	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return ModelMetadata{}, err
	}
	return sf.Metadata, nil
}

// Prune keeps the newest keep versions of jobID and removes the rest.
func (s *Store) Prune(_ context.Context, jobID string, keep int) error {
	if keep < 1 {
		keep = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.versionsOf(jobID)
	if err != nil {
		return err
	}
	slices.Sort(versions)
	slices.Reverse(versions)
	for _, v := range versions[min(keep, len(versions)):] {
		if err := os.Remove(s.modelPath(jobID, v)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove model v%d: %w", v, err)
		}
	}
	return nil
}

// Delete removes every version of jobID.
func (s *Store) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.versionsOf(jobID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := os.Remove(s.modelPath(jobID, v)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove model v%d: %w", v, err)
		}
	}
	delete(s.versions, jobID)
	return nil
}

func (s *Store) versionsOf(jobID string) ([]int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read model directory: %w", err)
	}
	var out []int
	for _, e := range entries {
		id, v, ok := parseModelFilename(e.Name())
		if ok && id == jobID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) modelPath(jobID string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s%s_v%d%s", filePrefix, jobID, version, fileSuffix))
}
