package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/tier-router/app"
	"github.com/upb/tier-router/internal/placement"
	"github.com/upb/tier-router/utils"
)

// StatusResponse describes the running service.
type StatusResponse struct {
	Version     string               `json:"version"`
	Environment string               `json:"environment"`
	Gates       []placement.GateInfo `json:"gates"`
	Modalities  []string             `json:"modalities"`
	DecisionLog string               `json:"decisionLog"`
	AuthEnabled bool                 `json:"authEnabled"`
	Recorder    interface{}          `json:"recorder,omitempty"`
}

// StatusHandler returns application status information
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Version:     deps.Config.Version,
			Environment: deps.Config.Environment,
			Gates:       placement.Gates(),
			Modalities:  []string{},
			DecisionLog: "memory",
			AuthEnabled: deps.AuthMiddleware != nil,
		}
		if deps.DB != nil {
			resp.DecisionLog = "postgres"
		}
		if deps.Templates != nil {
			if m, err := deps.Templates.Modalities(); err == nil {
				resp.Modalities = m
			} else {
				deps.Logger.Warn("failed to list modalities", zap.Error(err))
			}
		}
		if deps.Recorder != nil {
			resp.Recorder = deps.Recorder.Stats()
		}

		_ = utils.WriteOK(w, resp)
	}
}
