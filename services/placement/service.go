// Package placement exposes the routing engine as a service: it validates task
// contexts, evaluates the gates, and hands each decision to the audit trail.
package placement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/tier-router/internal/narrative"
	"github.com/upb/tier-router/internal/placement"
	"github.com/upb/tier-router/internal/shared"
	"github.com/upb/tier-router/models"
	"github.com/upb/tier-router/repositories"
	"github.com/upb/tier-router/services"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Recorder accepts decisions for asynchronous persistence.
type Recorder interface {
	Record(rec *models.DecisionRecord) error
}

// Decision is the routed outcome returned to callers.
type Decision struct {
	ID          uuid.UUID              `json:"id"`
	RequestID   string                 `json:"requestId,omitempty"`
	Target      placement.Target       `json:"target"`
	Gate        placement.GateID       `json:"gate"`
	GateLabel   string                 `json:"gateLabel"`
	Explanation string                 `json:"explanation"`
	Badge       narrative.PrivacyBadge `json:"privacyBadge"`
	Context     placement.TaskContext  `json:"context"`
	DecidedAt   time.Time              `json:"decidedAt"`
}

// Explanation is the unrecorded answer to "where would this go and why".
type Explanation struct {
	Target      placement.Target `json:"target"`
	Gate        placement.GateID `json:"gate"`
	Explanation string           `json:"explanation"`
}

// Service handles placement decisions
type Service struct {
	repo     repositories.DecisionRepository
	recorder Recorder
	logger   *zap.Logger
}

// NewService creates a placement service. recorder may be nil, in which case
// decisions are not kept.
func NewService(repo repositories.DecisionRepository, recorder Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, recorder: recorder, logger: logger}
}

// Decide validates tc, routes it, and queues the decision for the audit trail.
// A full or stopped recorder does not fail the decision.
func (s *Service) Decide(ctx context.Context, tc placement.TaskContext) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	valid, err := s.validate(tc)
	if err != nil {
		return nil, err
	}

	v := placement.Evaluate(valid)
	rec := models.NewDecisionRecord(valid, v).WithRequest(shared.RequestID(ctx), shared.Subject(ctx))

	if s.recorder != nil {
		if err := s.recorder.Record(rec); err != nil {
			s.logger.Warn("decision not recorded",
				zap.String("decision_id", rec.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("placement decided",
		zap.String("request_id", rec.RequestID),
		zap.String("decision_id", rec.ID.String()),
		zap.String("gate", string(v.Gate)),
		zap.String("target", string(v.Target)),
		zap.Float64("sla_ms", valid.SLAMs),
		zap.String("privacy", string(valid.Privacy)))

	return toDecision(rec), nil
}

// Explain routes tc without recording anything.
func (s *Service) Explain(ctx context.Context, tc placement.TaskContext) (*Explanation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	valid, err := s.validate(tc)
	if err != nil {
		return nil, err
	}

	v := placement.Evaluate(valid)
	s.logger.Debug("placement explained",
		zap.String("request_id", shared.RequestID(ctx)),
		zap.Stringer("verdict", v))

	return &Explanation{Target: v.Target, Gate: v.Gate, Explanation: v.Explain(valid)}, nil
}

// Get fetches a recorded decision.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Decision, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewDomainError(services.ErrorTypeNotFound, "decision not found", err).
				WithDetail("id", id.String())
		}
		s.logger.Error("failed to load decision", zap.String("decision_id", id.String()), zap.Error(err))
		return nil, services.WrapInternal("failed to load decision", err)
	}
	return toDecision(rec), nil
}

// Recent lists recorded decisions newest first. limit is clamped to [1, MaxListLimit].
func (s *Service) Recent(ctx context.Context, limit, offset int) ([]*Decision, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	recs, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list decisions", zap.Error(err))
		return nil, services.WrapInternal("failed to list decisions", err)
	}

	out := make([]*Decision, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDecision(rec))
	}
	return out, nil
}

func (s *Service) validate(tc placement.TaskContext) (placement.TaskContext, error) {
	valid, err := placement.Validate(tc)
	if err == nil {
		return valid, nil
	}

	var verr *placement.ValidationError
	if errors.As(err, &verr) {
		return placement.TaskContext{}, services.ValidationFailed("invalid task context", err, verr.Fields)
	}
	return placement.TaskContext{}, services.ValidationFailed("invalid task context", err, nil)
}

func toDecision(rec *models.DecisionRecord) *Decision {
	return &Decision{
		ID:          rec.ID,
		RequestID:   rec.RequestID,
		Target:      rec.Target,
		Gate:        rec.Gate,
		GateLabel:   rec.Gate.Label(),
		Explanation: rec.Explanation,
		Badge:       narrative.BadgeForTarget(rec.Target),
		Context:     rec.Context,
		DecidedAt:   rec.DecidedAt,
	}
}
