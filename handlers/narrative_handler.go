package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/tier-router/internal/narrative"
	"github.com/upb/tier-router/middleware"
	"github.com/upb/tier-router/services"
	"github.com/upb/tier-router/utils"
)

const (
	// MaxBatchEvents bounds POST .../events:batch.
	MaxBatchEvents = 500

	wsWriteTimeout = 5 * time.Second
	maxCloseReason = 120
)

// TemplateSource loads narrative templates by modality and language
type TemplateSource interface {
	Load(modality, lang string) (*narrative.Template, error)
}

// NarrativeOptions configures the relay
type NarrativeOptions struct {
	DefaultModality string
	OriginPatterns  []string // empty means same-origin only
	ReadLimit       int64
}

// ErrorFrame is written back on the socket when one inbound frame cannot be rendered.
type ErrorFrame struct {
	Error string `json:"error"`
	Step  string `json:"step,omitempty"`
}

// NarrativeHandler turns workflow events into patient-facing narrative events
type NarrativeHandler struct {
	templates TemplateSource
	opts      NarrativeOptions
	logger    *zap.Logger
}

// NewNarrativeHandler creates a new NarrativeHandler
func NewNarrativeHandler(templates TemplateSource, opts NarrativeOptions, logger *zap.Logger) *NarrativeHandler {
	if opts.DefaultModality == "" {
		opts.DefaultModality = "oct"
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32 << 10
	}
	return &NarrativeHandler{templates: templates, opts: opts, logger: logger}
}

// HandleStream handles GET /ws/narrative?sessionId=<id>&modality=<m>[&lang=<l>]
func (h *NarrativeHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("sessionId")
	modality := q.Get("modality")
	if modality == "" {
		modality = h.opts.DefaultModality
	}
	lang := q.Get("lang")

	// Server read/write timeouts must not cut the stream.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		return
	}
	defer conn.CloseNow()

	if sessionID == "" {
		_ = conn.Close(websocket.StatusPolicyViolation, "missing sessionId parameter")
		return
	}

	log := h.logger.With(
		zap.String("session_id", sessionID),
		zap.String("modality", modality))

	tpl, err := h.templates.Load(modality, lang)
	if err != nil {
		log.Error("failed to load narrative template", zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, closeReason("template not found for "+modality))
		return
	}

	conn.SetReadLimit(h.opts.ReadLimit)
	log.Info("narrative client connected")

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Info("narrative client disconnected")
			default:
				log.Debug("narrative connection ended", zap.Error(err))
			}
			return
		}

		var reply interface{}
		if typ != websocket.MessageText {
			reply = ErrorFrame{Error: "only text frames are accepted"}
		} else {
			reply = h.render(log, data, tpl)
		}

		writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		err = wsjson.Write(writeCtx, conn, reply)
		cancel()
		if err != nil {
			log.Warn("failed to write narrative frame", zap.Error(err))
			return
		}
	}
}

// render maps one inbound frame, returning a NarrativeEvent or an ErrorFrame.
func (h *NarrativeHandler) render(log *zap.Logger, data []byte, tpl *narrative.Template) interface{} {
	var ev narrative.WorkflowEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warn("undecodable workflow event", zap.Error(err))
		return ErrorFrame{Error: "invalid workflow event: " + err.Error()}
	}
	if err := utils.ValidateStruct(ev); err != nil {
		log.Warn("invalid workflow event", zap.String("step", ev.Step), zap.Error(err))
		return ErrorFrame{Error: validationMessage(err), Step: ev.Step}
	}

	out, err := narrative.ToNarrative(ev, tpl)
	if err != nil {
		log.Warn("unmappable workflow event", zap.String("step", ev.Step), zap.Error(err))
		return ErrorFrame{Error: err.Error(), Step: ev.Step}
	}

	log.Debug("narrative sent", zap.String("step", ev.Step), zap.Int("progress", out.Progress))
	return out
}

// HandleEvent handles POST /api/v1/narrative/{modality}/events
func (h *NarrativeHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var ev narrative.WorkflowEvent
	if err := utils.DecodeJSON(w, r, &ev); err != nil {
		_ = utils.WriteDecodeError(w, err, nil)
		return
	}
	if err := utils.ValidateStruct(ev); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	tpl, err := h.loadTemplate(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	out, err := narrative.ToNarrative(ev, tpl)
	if err != nil {
		HandleServiceError(w, mapNarrativeError(err), h.logger)
		return
	}

	_ = utils.WriteOK(w, out)
}

// HandleEventBatch handles POST /api/v1/narrative/{modality}/events:batch
// The batch is rendered all-or-nothing.
func (h *NarrativeHandler) HandleEventBatch(w http.ResponseWriter, r *http.Request) {
	var events []narrative.WorkflowEvent
	if err := utils.DecodeJSON(w, r, &events); err != nil {
		_ = utils.WriteDecodeError(w, err, nil)
		return
	}
	if len(events) == 0 {
		_ = utils.WriteBadRequest(w, "at least one event is required", nil)
		return
	}
	if len(events) > MaxBatchEvents {
		_ = utils.WriteBadRequest(w, fmt.Sprintf("at most %d events per batch", MaxBatchEvents), nil)
		return
	}
	for i, ev := range events {
		if err := utils.ValidateStruct(ev); err != nil {
			details := utils.FieldsToDetails(utils.GetValidationFields(err))
			_ = utils.WriteBadRequest(w, fmt.Sprintf("event %d: %s", i, validationMessage(err)), details)
			return
		}
	}

	tpl, err := h.loadTemplate(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	out, err := narrative.ToNarrativeBatch(events, tpl)
	if err != nil {
		HandleServiceError(w, mapNarrativeError(err), h.logger)
		return
	}

	_ = utils.WriteOK(w, out)
}

func (h *NarrativeHandler) loadTemplate(r *http.Request) (*narrative.Template, error) {
	modality := chi.URLParam(r, "modality")
	tpl, err := h.templates.Load(modality, r.URL.Query().Get("lang"))
	if err != nil {
		return nil, mapNarrativeError(err)
	}
	return tpl, nil
}

func mapNarrativeError(err error) error {
	switch {
	case errors.Is(err, narrative.ErrTemplateNotFound):
		return services.NewDomainError(services.ErrorTypeNotFound, "narrative template not found", err)
	case errors.Is(err, narrative.ErrStepNotFound):
		return services.NewDomainError(services.ErrorTypeValidation, "unknown workflow step", err)
	default:
		return services.WrapInternal("failed to render narrative", err)
	}
}

// validationMessage prefers the field message when exactly one field failed.
func validationMessage(err error) string {
	if fields := utils.GetValidationFields(err); len(fields) == 1 {
		for _, msg := range fields {
			return msg
		}
	}
	return err.Error()
}

// closeReason trims s to fit a websocket close frame.
func closeReason(s string) string {
	if len(s) > maxCloseReason {
		return s[:maxCloseReason]
	}
	return s
}
