package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/tier-router/internal/placement"
	"github.com/upb/tier-router/models"
	"github.com/upb/tier-router/repositories"
)

const decisionColumns = `id, request_id, subject, target, gate, explanation, context, decided_at`

// DecisionRepository implements repositories.DecisionRepository on PostgreSQL.
type DecisionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *DB, logger *zap.Logger) repositories.DecisionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionRepository{db: db, logger: logger}
}

// Insert stores rec. The task context is written as JSONB.
func (r *DecisionRepository) Insert(ctx context.Context, rec *models.DecisionRecord) error {
	raw, err := rec.ContextJSON()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO placement_decisions (` + decisionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		nullString(rec.RequestID),
		nullString(rec.Subject),
		string(rec.Target),
		string(rec.Gate),
		rec.Explanation,
		raw,
		rec.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}

	r.logger.Debug("decision inserted",
		zap.String("id", rec.ID.String()),
		zap.String("target", string(rec.Target)),
		zap.String("gate", string(rec.Gate)))
	return nil
}

// GetByID retrieves a decision by ID
func (r *DecisionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + ` FROM placement_decisions WHERE id = $1`

	rec, err := scanDecision(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("decision %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	return rec, nil
}

// List returns decisions newest first
func (r *DecisionRepository) List(ctx context.Context, limit, offset int) ([]*models.DecisionRecord, error) {
	query := `
		SELECT ` + decisionColumns + `
		FROM placement_decisions
		ORDER BY decided_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.DecisionRecord, 0, limit)
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDecision(row rowScanner) (*models.DecisionRecord, error) {
	var (
		rec       models.DecisionRecord
		requestID sql.NullString
		subject   sql.NullString
		target    string
		gate      string
		raw       []byte
	)
	if err := row.Scan(&rec.ID, &requestID, &subject, &target, &gate, &rec.Explanation, &raw, &rec.DecidedAt); err != nil {
		return nil, err
	}
	if err := rec.Target.UnmarshalText([]byte(target)); err != nil {
		return nil, err
	}
	if err := rec.ScanContext(raw); err != nil {
		return nil, err
	}
	rec.RequestID = requestID.String
	rec.Subject = subject.String
	rec.Gate = placement.GateID(gate)
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
