package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/upb/tier-router/models"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("record not found")

// DecisionRepository handles placement decision log operations
type DecisionRepository interface {
	// Insert stores a new decision record
	Insert(ctx context.Context, rec *models.DecisionRecord) error

	// GetByID retrieves a decision by ID, or ErrNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*models.DecisionRecord, error)

	// List returns decisions newest first
	List(ctx context.Context, limit, offset int) ([]*models.DecisionRecord, error)
}
