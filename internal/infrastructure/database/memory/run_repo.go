package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"fleet-audit/internal/domain/audit"
)

// RunRepository implements audit.RunRepository in process memory.
// It backs standalone mode when neither Postgres nor Redis is reachable.
type RunRepository struct {
	mu       sync.RWMutex
	runs     map[uuid.UUID]*audit.Result
	capacity int
}

// NewRunRepository keeps at most capacity runs, evicting the oldest
func NewRunRepository(capacity int) *RunRepository {
	if capacity <= 0 {
		capacity = 100
	}
	return &RunRepository{
		runs:     make(map[uuid.UUID]*audit.Result),
		capacity: capacity,
	}
}

// Save stores a run
func (r *RunRepository) Save(_ context.Context, result *audit.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[result.RunID] = result
	for len(r.runs) > r.capacity {
		oldest := r.sortedLocked()[len(r.runs)-1]
		delete(r.runs, oldest.RunID)
	}
	return nil
}

// GetByID returns a stored run or audit.ErrRunNotFound
func (r *RunRepository) GetByID(_ context.Context, runID uuid.UUID) (*audit.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if res, ok := r.runs[runID]; ok {
		return res, nil
	}
	return nil, audit.ErrRunNotFound
}

// ListRecent returns up to limit runs, newest first
func (r *RunRepository) ListRecent(_ context.Context, limit int) ([]*audit.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.sortedLocked()
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *RunRepository) sortedLocked() []*audit.Result {
	out := make([]*audit.Result, 0, len(r.runs))
	for _, res := range r.runs {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].RunID.String() < out[j].RunID.String()
	})
	return out
}
