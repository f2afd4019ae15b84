package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/views"
)

// writeJSON writes a JSON response with the given status code
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth responds to liveness probes
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	})
}

// handleSystemStatus reports process and host resource usage
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"uptime":     time.Since(s.started).String(),
		"goroutines": runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_used_pct"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_used_pct"] = percents[0]
	}

	s.writeJSON(w, http.StatusOK, status)
}

// rebalanceRequest is the body of POST /api/rebalance: one forecast batch,
// already filtered to active forecasts and deduplicated upstream.
type rebalanceRequest struct {
	Forecasts []domain.Forecast `json:"forecasts"`
}

// handleRebalance runs one rebalance cycle over the submitted forecast batch
func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	targets, err := s.service.Rebalance(req.Forecasts)
	if err != nil {
		if errors.Is(err, views.ErrMissingMagnitude) {
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("Rebalance failed")
		s.writeError(w, http.StatusInternalServerError, "rebalance failed")
		return
	}

	if s.hub != nil && len(targets) > 0 {
		s.hub.PublishTargets(targets)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"targets": targets})
}

// handleTargets returns the targets of the most recent completed cycle. The
// persisted run is preferred (it survives restarts); the in-memory state is
// the fallback.
func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	if s.runs != nil {
		run, err := s.runs.LatestRun()
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to load latest run")
			s.writeError(w, http.StatusInternalServerError, "failed to load latest run")
			return
		}
		if run != nil {
			s.writeJSON(w, http.StatusOK, run)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"targets": s.service.Targets(),
	})
}
