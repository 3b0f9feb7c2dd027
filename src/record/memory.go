package record

import (
	"context"
	"sync"

	"guardian-agent/src/contracts"
)

// MemoryRecorder is an in-memory Recorder for local analysis runs and tests.
type MemoryRecorder struct {
	mu sync.RWMutex
	// byKey detects replays; order preserves append sequence for List.
	byKey map[string]struct{}
	order []contracts.OutcomeRecord
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{byKey: make(map[string]struct{})}
}

// Append stores the record unless its key was already appended.
func (m *MemoryRecorder) Append(ctx context.Context, rec contracts.OutcomeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byKey[rec.Key]; exists {
		return nil
	}
	m.byKey[rec.Key] = struct{}{}
	m.order = append(m.order, rec)
	return nil
}

// List returns the records for one pipeline in append order.
func (m *MemoryRecorder) List(ctx context.Context, pipelineID int64) ([]contracts.OutcomeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []contracts.OutcomeRecord
	for _, rec := range m.order {
		if rec.Event.PipelineID == pipelineID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// All returns every record in append order. Used by the watch TUI.
func (m *MemoryRecorder) All(ctx context.Context) ([]contracts.OutcomeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]contracts.OutcomeRecord, len(m.order))
	copy(out, m.order)
	return out, nil
}

// Stats computes counters over the ledger.
func (m *MemoryRecorder) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		TotalRecords: len(m.order),
		ByPlan:       make(map[contracts.PlanKind]int),
		ByCategory:   make(map[contracts.Category]int),
		ByStatus:     make(map[contracts.OutcomeStatus]int),
	}
	pipelines := make(map[int64]struct{})
	for _, rec := range m.order {
		pipelines[rec.Event.PipelineID] = struct{}{}
		stats.ByPlan[rec.Plan.Kind]++
		stats.ByCategory[rec.Diagnosis.Category]++
		stats.ByStatus[rec.Outcome.Status]++
	}
	stats.Pipelines = len(pipelines)
	return stats, nil
}

// Close is a no-op for the in-memory recorder.
func (m *MemoryRecorder) Close() error { return nil }
