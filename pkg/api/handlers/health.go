// Package handlers implements the admin API endpoints.
package handlers

import (
	"net/http"

	"github.com/orsa-go/orsa/pkg/api/response"
	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/version"
)

// HealthHandler serves the liveness, readiness and status endpoints.
type HealthHandler struct {
	manager *saga.Manager
	backend string
}

// NewHealthHandler creates a health handler. backend names the snapshot store
// reported by Status.
func NewHealthHandler(manager *saga.Manager, backend string) *HealthHandler {
	return &HealthHandler{manager: manager, backend: backend}
}

// Health handles /health. The process is live as long as it answers.
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles /ready: ready while the manager accepts sagas.
// @Summary Readiness check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 503 {object} map[string]bool
// @Router /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	if !h.manager.Running() {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	Running      bool              `json:"running"`
	Active       []string          `json:"active"`
	Declarations []string          `json:"declarations"`
	Storage      string            `json:"storage"`
	Version      map[string]string `json:"version"`
}

// Status handles /status.
// @Summary Service status
// @Tags health
// @Produce json
// @Success 200 {object} handlers.StatusResponse
// @Router /status [get]
func (h *HealthHandler) Status(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, StatusResponse{
		Running:      h.manager.Running(),
		Active:       h.manager.Active(),
		Declarations: h.manager.Registry().Keys(),
		Storage:      h.backend,
		Version:      version.Info(),
	})
}
