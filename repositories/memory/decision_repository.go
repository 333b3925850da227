// Package memory holds in-process repository implementations used when no
// database is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/upb/tier-router/models"
	"github.com/upb/tier-router/repositories"
)

// DefaultCapacity bounds the log when no capacity is given.
const DefaultCapacity = 10000

// DecisionRepository keeps the most recent decisions in a ring buffer.
type DecisionRepository struct {
	mu       sync.RWMutex
	records  []*models.DecisionRecord
	byID     map[uuid.UUID]*models.DecisionRecord
	capacity int
}

// NewDecisionRepository creates a repository holding at most capacity records.
// The oldest record is evicted once the log is full.
func NewDecisionRepository(capacity int) *DecisionRepository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &DecisionRepository{
		records:  make([]*models.DecisionRecord, 0, min(capacity, 1024)),
		byID:     make(map[uuid.UUID]*models.DecisionRecord),
		capacity: capacity,
	}
}

var _ repositories.DecisionRepository = (*DecisionRepository)(nil)

func (r *DecisionRepository) Insert(ctx context.Context, rec *models.DecisionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("nil decision record")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[rec.ID]; exists {
		return fmt.Errorf("decision %s already exists", rec.ID)
	}

	if len(r.records) >= r.capacity {
		oldest := r.records[0]
		delete(r.byID, oldest.ID)
		r.records[0] = nil
		r.records = r.records[1:]
	}

	cp := *rec
	r.records = append(r.records, &cp)
	r.byID[cp.ID] = &cp
	return nil
}

func (r *DecisionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("decision %s: %w", id, repositories.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

// List returns records newest first.
func (r *DecisionRepository) List(ctx context.Context, limit, offset int) ([]*models.DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.records)
	if offset >= n || limit <= 0 {
		return []*models.DecisionRecord{}, nil
	}

	end := min(offset+limit, n)
	out := make([]*models.DecisionRecord, 0, end-offset)
	for i := offset; i < end; i++ {
		cp := *r.records[n-1-i]
		out = append(out, &cp)
	}
	return out, nil
}

// Len reports how many records are held.
func (r *DecisionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
