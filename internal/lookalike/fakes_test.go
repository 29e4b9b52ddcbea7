// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"sort"
	"sync"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike/model"
)

// memGraph is an in-memory identity graph partitioned by fnv(asid) % 100.
type memGraph struct {
	columns []string
	rows    []IdentityRow

	// failAfter interrupts a scan after that many rows were delivered in a partition.
	failAfter int
	// scanErr is returned for every scan when set.
	scanErr error
	// block makes Scan wait for ctx cancellation.
	block bool
	// failBuckets fails the whole scan of any partition holding one of these buckets.
	failBuckets map[int]bool
}

func bucketOf(asid string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(asid))
	return int(h.Sum32() % BucketCount)
}

func (g *memGraph) Columns(context.Context) ([]string, error) {
	return g.columns, nil
}

func (g *memGraph) FetchByASIDs(_ context.Context, columns, asids []string) ([]IdentityRow, error) {
	want := make(map[string]struct{}, len(asids))
	for _, a := range asids {
		want[a] = struct{}{}
	}
	var out []IdentityRow
	for _, r := range g.rows {
		if _, ok := want[r.ASID]; ok {
			out = append(out, project(r, columns))
		}
	}
	return out, nil
}

func project(r IdentityRow, columns []string) IdentityRow {
	values := make(map[string]any, len(columns))
	for _, c := range columns {
		if v, ok := r.Values[c]; ok {
			values[c] = v
		}
	}
	return IdentityRow{ASID: r.ASID, Values: values}
}

func (g *memGraph) matching(req ScanRequest) []IdentityRow {
	buckets := make(map[int]struct{}, len(req.Buckets))
	for _, b := range req.Buckets {
		buckets[b] = struct{}{}
	}
	var out []IdentityRow
	for _, r := range g.rows {
		if _, ok := buckets[bucketOf(r.ASID)]; !ok {
			continue
		}
		present := 0
		for _, c := range req.Columns {
			if r.Values[c] != nil {
				present++
			}
		}
		switch req.Filter {
		case FilterAllPresent:
			if present != len(req.Columns) {
				continue
			}
		case FilterAnyPresent:
			if present == 0 {
				continue
			}
		}
		out = append(out, project(r, req.Columns))
		if req.RowLimit > 0 && len(out) == req.RowLimit {
			break
		}
	}
	return out
}

func (g *memGraph) Count(_ context.Context, req ScanRequest) (int64, error) {
	return int64(len(g.matching(req))), nil
}

func (g *memGraph) Scan(ctx context.Context, req ScanRequest, fn func([]IdentityRow) error) (int64, error) {
	if g.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if g.scanErr != nil {
		return 0, g.scanErr
	}
	for _, b := range req.Buckets {
		if g.failBuckets[b] {
			return 0, fmt.Errorf("open partition stream: bucket %d unavailable", b)
		}
	}
	rows := g.matching(req)
	size := req.BlockSize
	if size <= 0 {
		size = 1000
	}
	var n int64
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		block := rows[start:end]
		if g.failAfter > 0 && int(n)+len(block) > g.failAfter {
			block = block[:g.failAfter-int(n)]
			if err := fn(block); err != nil {
				return n, err
			}
			n += int64(len(block))
			return n, fmt.Errorf("%w: connection reset", ErrStreamInterrupted)
		}
		if err := fn(block); err != nil {
			return n, err
		}
		n += int64(len(block))
	}
	return n, nil
}

// memJobs is an in-memory JobStore.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*Job

	// failAdds makes that many AddProcessed calls fail before succeeding.
	failAdds int
	addCalls int
}

func newMemJobs(jobs ...*Job) *memJobs {
	m := &memJobs{jobs: make(map[string]*Job)}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) get(id string) (*Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

func (m *memJobs) snapshot(id string) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memJobs) AddProcessed(_ context.Context, id string, d int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	if m.failAdds > 0 {
		m.failAdds--
		return 0, errors.New("database is locked")
	}
	j, err := m.get(id)
	if err != nil {
		return 0, err
	}
	j.ProcessedSize += d
	return j.ProcessedSize, nil
}

func (m *memJobs) AddProcessedTrainModel(_ context.Context, id string, d int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.get(id)
	if err != nil {
		return 0, err
	}
	j.ProcessedTrainModelSize += d
	return j.ProcessedTrainModelSize, nil
}

func (m *memJobs) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.get(id)
	if err != nil {
		return nil, err
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) update(id string, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.get(id)
	if err != nil {
		return err
	}
	fn(j)
	return nil
}

func (m *memJobs) MarkRunning(_ context.Context, id string) error {
	return m.update(id, func(j *Job) { j.Status = StatusRunning })
}

func (m *memJobs) MarkFailed(_ context.Context, id, reason string) error {
	return m.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.FailureReason = reason
	})
}

func (m *memJobs) MarkCompleted(_ context.Context, id string, size int64, stats SimilarityStats) error {
	return m.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Size = size
		j.Stats = stats
	})
}

func (m *memJobs) SetDatasetSize(_ context.Context, id string, n int64) error {
	return m.update(id, func(j *Job) { j.DatasetSize = n })
}

func (m *memJobs) SetTrainModelSize(_ context.Context, id string, n int64) error {
	return m.update(id, func(j *Job) { j.TrainModelSize = n })
}

// memSeeds serves one source's seed members.
type memSeeds struct {
	members []SeedMember
	dist    FieldDistribution
}

func (s *memSeeds) SeedMembers(_ context.Context, _ string, after int64, limit int) ([]SeedMember, error) {
	var out []SeedMember
	for _, m := range s.members {
		if m.ID > after {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memSeeds) CountSeedMembers(context.Context, string) (int64, error) {
	return int64(len(s.members)), nil
}

func (s *memSeeds) SeedASIDs(context.Context, string) ([]string, error) {
	out := make([]string, len(s.members))
	for i, m := range s.members {
		out[i] = m.ASID
	}
	return out, nil
}

func (s *memSeeds) FieldDistributions(context.Context, string) (FieldDistribution, error) {
	return s.dist, nil
}

// memScores keeps stored scores per job.
type memScores struct {
	mu     sync.Mutex
	scores map[string][]ScoredIdentity
}

func (s *memScores) BulkInsert(_ context.Context, jobID string, scores []ScoredIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scores == nil {
		s.scores = make(map[string][]ScoredIdentity)
	}
	s.scores[jobID] = slices.Clone(scores)
	return nil
}

func (s *memScores) TopScores(_ context.Context, jobID string, limit int, exclude []string) ([]ScoredIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ScoredIdentity
	for _, sc := range s.scores[jobID] {
		if !slices.Contains(exclude, sc.ASID) {
			out = append(out, sc)
		}
	}
	sortRanked(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memUsers resolves "asid-N" to "user-N" unless listed in missing.
type memUsers struct {
	missing map[string]bool
	written map[string][]string
}

func (u *memUsers) ResolveUsers(_ context.Context, asids []string) (map[string]string, error) {
	out := make(map[string]string, len(asids))
	for _, a := range asids {
		if !u.missing[a] {
			out[a] = "user-" + a
		}
	}
	return out, nil
}

func (u *memUsers) ReplaceLookalikePersons(_ context.Context, jobID string, ids []string) error {
	if u.written == nil {
		u.written = make(map[string][]string)
	}
	u.written[jobID] = slices.Clone(ids)
	return nil
}

type memModels struct {
	mu     sync.Mutex
	models map[string]*model.Model
	saves  int
}

func (s *memModels) SaveModel(_ context.Context, jobID string, m *model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.models == nil {
		s.models = make(map[string]*model.Model)
	}
	s.models[jobID] = m
	s.saves++
	return nil
}

func (s *memModels) LoadModel(_ context.Context, jobID string) (*model.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[jobID]
	if !ok {
		return nil, ErrModelNotFound
	}
	return m, nil
}

type memNotifier struct {
	mu   sync.Mutex
	sent []Completion
}

func (n *memNotifier) NotifyCompleted(_ context.Context, c Completion) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, c)
	return nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]*WorkerResult
	dropped []string
}

func cacheKey(jobID string, partition int) string {
	return fmt.Sprintf("%s/%d", jobID, partition)
}

func (c *memCache) LoadPartition(jobID string, partition int) (*WorkerResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[cacheKey(jobID, partition)]
	return r, ok, nil
}

func (c *memCache) SavePartition(jobID string, r *WorkerResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]*WorkerResult)
	}
	c.entries[cacheKey(jobID, r.Partition)] = r
	return nil
}

func (c *memCache) DropJob(jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = append(c.dropped, jobID)
	return nil
}

// constScorer scores by a lookup table and fails for rows listed in bad.
type constScorer struct {
	scores map[string]float64
	bad    map[string]bool
}

func (s constScorer) Score(row IdentityRow) (float64, error) {
	if s.bad[row.ASID] {
		return 0, errors.New("malformed value")
	}
	return s.scores[row.ASID], nil
}

func asids(items []ScoredIdentity) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ASID
	}
	return out
}

func allBuckets() []int {
	out := make([]int, BucketCount)
	for i := range out {
		out[i] = i
	}
	return out
}

func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	sort.Strings(out)
	return out
}
