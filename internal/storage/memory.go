package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/mpjuers/transmission/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.TrainingRun
	runOrder    []string
	posteriors  map[string]model.PosteriorRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.TrainingRun)
	s.runOrder = nil
	s.posteriors = make(map[string]model.PosteriorRecord)
	return nil
}

func (s *MemoryStore) SaveTrainingRun(_ context.Context, run model.TrainingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.RunID]; !exists {
		s.runOrder = append(s.runOrder, run.RunID)
	}
	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) GetTrainingRun(_ context.Context, runID string) (model.TrainingRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	return run, ok, nil
}

func (s *MemoryStore) LatestTrainingRun(_ context.Context) (model.TrainingRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runOrder) == 0 {
		return model.TrainingRun{}, false, nil
	}
	run := s.runs[s.runOrder[len(s.runOrder)-1]]
	return run, true, nil
}

func (s *MemoryStore) ListTrainingRuns(_ context.Context, limit int) ([]model.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.runOrder))
	copy(ids, s.runOrder)
	sort.SliceStable(ids, func(a, b int) bool {
		return s.runs[ids[a]].CreatedAtUTC > s.runs[ids[b]].CreatedAtUTC
	})
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]model.TrainingRun, len(ids))
	for i, id := range ids {
		out[i] = s.runs[id]
	}
	return out, nil
}

func (s *MemoryStore) SavePosterior(_ context.Context, record model.PosteriorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posteriors[record.RunID] = record
	return nil
}

func (s *MemoryStore) GetPosterior(_ context.Context, runID string) (model.PosteriorRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.posteriors[runID]
	return record, ok, nil
}
