package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/tier-router/internal/placement"
	"github.com/upb/tier-router/middleware"
	placementsvc "github.com/upb/tier-router/services/placement"
	"github.com/upb/tier-router/utils"
)

// PlacementService defines the placement operations the API exposes
type PlacementService interface {
	Decide(ctx context.Context, tc placement.TaskContext) (*placementsvc.Decision, error)
	Explain(ctx context.Context, tc placement.TaskContext) (*placementsvc.Explanation, error)
	Get(ctx context.Context, id uuid.UUID) (*placementsvc.Decision, error)
	Recent(ctx context.Context, limit, offset int) ([]*placementsvc.Decision, error)
}

// ListResponse wraps a page of results
type ListResponse struct {
	Items  interface{} `json:"items"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
	Count  int         `json:"count"`
}

// PlacementHandler handles placement-related HTTP requests
type PlacementHandler struct {
	service PlacementService
	logger  *zap.Logger
}

// NewPlacementHandler creates a new PlacementHandler
func NewPlacementHandler(service PlacementService, logger *zap.Logger) *PlacementHandler {
	return &PlacementHandler{
		service: service,
		logger:  logger,
	}
}

// HandleDefaults handles GET /api/v1/placement/defaults
func (h *PlacementHandler) HandleDefaults(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, placement.DefaultContext())
}

// HandleGates handles GET /api/v1/placement/gates
func (h *PlacementHandler) HandleGates(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, placement.Gates())
}

// HandleDecide handles POST /api/v1/placement/decide
// With ?base=default the body only carries overrides on top of the default context.
func (h *PlacementHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	tc, ok := h.decodeContext(w, r)
	if !ok {
		return
	}

	decision, err := h.service.Decide(ctx, tc)
	if err != nil {
		h.logger.Debug("decide failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, decision)
}

// HandleExplain handles POST /api/v1/placement/explain
func (h *PlacementHandler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	tc, ok := h.decodeContext(w, r)
	if !ok {
		return
	}

	explanation, err := h.service.Explain(r.Context(), tc)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, explanation)
}

// HandleListDecisions handles GET /api/v1/placement/decisions
func (h *PlacementHandler) HandleListDecisions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", placementsvc.DefaultListLimit)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid limit", nil)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid offset", nil)
		return
	}

	decisions, err := h.service.Recent(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, ListResponse{
		Items:  decisions,
		Limit:  limit,
		Offset: offset,
		Count:  len(decisions),
	})
}

// HandleGetDecision handles GET /api/v1/placement/decisions/{id}
func (h *PlacementHandler) HandleGetDecision(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid decision ID format", nil)
		return
	}

	decision, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, decision)
}

func (h *PlacementHandler) decodeContext(w http.ResponseWriter, r *http.Request) (placement.TaskContext, bool) {
	var tc placement.TaskContext
	base := r.URL.Query().Get("base")
	switch base {
	case "":
	case "default":
		tc = placement.DefaultContext()
	default:
		_ = utils.WriteBadRequest(w, "Unknown base context", map[string]interface{}{"base": base})
		return tc, false
	}

	if err := utils.DecodeJSON(w, r, &tc); err != nil {
		if base != "" && errors.Is(err, utils.ErrEmptyBody) {
			return tc, true
		}
		var details map[string]interface{}
		if errors.Is(err, placement.ErrUnknownEnum) {
			details = map[string]interface{}{"reason": "unknown_enum"}
		}
		_ = utils.WriteDecodeError(w, err, details)
		return tc, false
	}
	return tc, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
