package storage

import (
	"context"
	"errors"
	"sync"

	"nichemodeller/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	models      map[string]model.ModelRecord
	projections map[string]model.ProjectionRecord
	history     map[string][]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.models = make(map[string]model.ModelRecord)
	s.projections = make(map[string]model.ProjectionRecord)
	s.history = make(map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveModel(_ context.Context, record model.ModelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.models[record.ID] = copyModel(record)
	return nil
}

func (s *MemoryStore) GetModel(_ context.Context, id string) (model.ModelRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.models[id]
	if !ok {
		return model.ModelRecord{}, false, nil
	}
	return copyModel(record), true, nil
}

func (s *MemoryStore) ListModels(_ context.Context) ([]model.ModelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ModelRecord, 0, len(s.models))
	for _, record := range s.models {
		out = append(out, copyModel(record))
	}
	sortModels(out)
	return out, nil
}

// DeleteModel drops the model with its projections and history.
func (s *MemoryStore) DeleteModel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.models, id)
	delete(s.history, id)
	for pid, p := range s.projections {
		if p.ModelID == id {
			delete(s.projections, pid)
		}
	}
	return nil
}

func (s *MemoryStore) SaveProjection(_ context.Context, record model.ProjectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	record.Layers = append([]string(nil), record.Layers...)
	s.projections[record.ID] = record
	return nil
}

func (s *MemoryStore) GetProjection(_ context.Context, id string) (model.ProjectionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.projections[id]
	if !ok {
		return model.ProjectionRecord{}, false, nil
	}
	record.Layers = append([]string(nil), record.Layers...)
	return record, true, nil
}

// ListProjections lists every projection when modelID is empty.
func (s *MemoryStore) ListProjections(_ context.Context, modelID string) ([]model.ProjectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ProjectionRecord, 0)
	for _, record := range s.projections {
		if modelID != "" && record.ModelID != modelID {
			continue
		}
		record.Layers = append([]string(nil), record.Layers...)
		out = append(out, record)
	}
	sortProjections(out)
	return out, nil
}

func (s *MemoryStore) SaveProgressHistory(_ context.Context, modelID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	copied := append([]float64(nil), history...)
	s.history[modelID] = copied
	return nil
}

func (s *MemoryStore) GetProgressHistory(_ context.Context, modelID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[modelID]
	if !ok {
		return nil, false, nil
	}
	copied := append([]float64(nil), history...)
	return copied, true, nil
}

var errNotInitialized = errors.New("store is not initialized")

func copyModel(record model.ModelRecord) model.ModelRecord {
	record.Layers = append([]string(nil), record.Layers...)
	record.Categorical = append([]string(nil), record.Categorical...)
	record.Model = append([]byte(nil), record.Model...)
	if record.Parameters != nil {
		params := make(map[string]string, len(record.Parameters))
		for k, v := range record.Parameters {
			params[k] = v
		}
		record.Parameters = params
	}
	if record.Evaluation != nil {
		eval := *record.Evaluation
		record.Evaluation = &eval
	}
	return record
}
