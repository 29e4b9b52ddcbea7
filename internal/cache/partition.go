// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package cache

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
)

const partitionKeyPrefix = "partition:"

// PartitionStore keeps finished partition results per job.
type PartitionStore struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenPartitionStore opens (or creates) the store in dir. A ttl of zero keeps
// entries until the job is dropped.
func OpenPartitionStore(dir string, ttl time.Duration) (*PartitionStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open partition cache: %w", err)
	}
	logging.Info().Str("dir", dir).Dur("ttl", ttl).Msg("Partition cache opened")
	return NewPartitionStore(db, ttl), nil
}

// NewPartitionStore wraps an open badger database.
func NewPartitionStore(db *badger.DB, ttl time.Duration) *PartitionStore {
	return &PartitionStore{db: db, ttl: ttl}
}

func jobPrefix(jobID string) []byte {
	return []byte(partitionKeyPrefix + jobID + ":")
}

func partitionKey(jobID string, partition int) []byte {
	return append(jobPrefix(jobID), strconv.Itoa(partition)...)
}

// SavePartition stores a finished partition.
func (s *PartitionStore) SavePartition(jobID string, result *lookalike.WorkerResult) error {
	if result == nil {
		return errors.New("nil partition result")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal partition: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(partitionKey(jobID, result.Partition), data)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// LoadPartition returns a stored partition. ok is false when none is stored.
func (s *PartitionStore) LoadPartition(jobID string, partition int) (*lookalike.WorkerResult, bool, error) {
	var res lookalike.WorkerResult
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(partitionKey(jobID, partition))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &res)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load partition %d of %s: %w", partition, jobID, err)
	}
	return &res, true, nil
}

// Partitions lists the stored partition numbers of a job.
func (s *PartitionStore) Partitions(jobID string) ([]int, error) {
	var out []int
	prefix := jobPrefix(jobID)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n, err := strconv.Atoi(string(it.Item().Key()[len(prefix):]))
			if err != nil {
				continue
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

// DropJob removes every stored partition of a job.
func (s *PartitionStore) DropJob(jobID string) error {
	if err := s.db.DropPrefix(jobPrefix(jobID)); err != nil {
		return fmt.Errorf("drop partitions of %s: %w", jobID, err)
	}
	return nil
}

// RunGC reclaims value log space. Called periodically by the supervisor.
func (s *PartitionStore) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Close closes the underlying database.
func (s *PartitionStore) Close() error {
	return s.db.Close()
}
