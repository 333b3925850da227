package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/tier-router/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// TemplateLister reports which narrative modalities have templates on disk and loads them.
type TemplateLister interface {
	TemplateSource
	Modalities() ([]string, error)
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db        *sql.DB
	templates TemplateLister
	logger    *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and templates may be nil.
func NewHealthHandler(db *sql.DB, templates TemplateLister, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		templates: templates,
		logger:    logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	switch err := h.checkDatabase(ctx); {
	case h.db == nil:
		checks["database"] = "not_configured"
	case err != nil:
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	default:
		checks["database"] = "healthy"
	}

	if h.templates != nil {
		checks["templates"] = h.checkTemplates()
		if checks["templates"] != "healthy" {
			allHealthy = false
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// checkTemplates passes once any modality's default template loads.
func (h *HealthHandler) checkTemplates() string {
	modalities, err := h.templates.Modalities()
	if err != nil {
		h.logger.Warn("templates check failed", zap.Error(err))
		return "unhealthy"
	}
	if len(modalities) == 0 {
		return "none_found"
	}
	for _, m := range modalities {
		_, err := h.templates.Load(m, "")
		if err == nil {
			return "healthy"
		}
		h.logger.Warn("template failed to load", zap.String("modality", m), zap.Error(err))
	}
	return "unhealthy"
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}

	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
