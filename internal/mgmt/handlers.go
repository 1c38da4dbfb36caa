package mgmt

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/blueherald/blueherald/internal/agent"
	"github.com/blueherald/blueherald/internal/alerts"
	"github.com/blueherald/blueherald/internal/metrics"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "blueherald management API",
		"endpoints": []string{
			"/health", "/health/detailed", "/status", "/metrics",
			"/activity", "/config", "/overrides",
			"/control/skip-next-post", "/control/force-approve-content",
			"/alerts", "/tests", "/optimize/cycle", "/archive/posts",
			"/ws/activity",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": time.Since(s.started).Seconds(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{}
	status := "healthy"

	schedStatus := s.deps.Scheduler.Status()
	components["scheduler"] = map[string]interface{}{
		"running":         schedStatus.Running,
		"execution_count": schedStatus.ExecutionCount,
		"failure_count":   schedStatus.FailureCount,
	}
	if !schedStatus.Running {
		status = "degraded"
	}

	archiveHealth := map[string]interface{}{"enabled": s.deps.Archive.Enabled()}
	if s.deps.Archive.Enabled() {
		if err := s.deps.Archive.Ping(r.Context()); err != nil {
			archiveHealth["error"] = err.Error()
			status = "degraded"
		}
	}
	components["archive"] = archiveHealth

	summary := s.deps.Alerts.Summarize(24)
	components["alerts"] = summary
	if summary.SeverityBreakdown[alerts.SeverityCritical] > 0 {
		status = "unhealthy"
	}

	stats := s.deps.Agent.WorkflowStats()
	components["agent"] = stats

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	families, err := s.deps.Metrics.Snapshot()
	counters := map[string]float64{}
	if err == nil {
		for _, name := range []string{
			"blueherald_posts_attempted_total",
			"blueherald_posts_published_total",
			"blueherald_posts_rejected_total",
			"blueherald_cycle_runs_total",
		} {
			counters[name] = metrics.CounterValue(families, name)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflow":     s.deps.Agent.WorkflowStats(),
		"scheduler":    s.deps.Scheduler.Status(),
		"optimization": s.deps.Optimizer.OptimizationStatus(),
		"overrides":    s.deps.Agent.Overrides().Active(),
		"counters":     counters,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	events := s.deps.Agent.Activity().Recent(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	view := s.deps.ConfigView
	if view == nil {
		view = map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetOverrides(w http.ResponseWriter, r *http.Request) {
	active := s.deps.Agent.Overrides().Active()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"overrides": active,
		"count":     len(active),
	})
}

type overrideRequest struct {
	Type            string `json:"type"`
	Value           string `json:"value"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type != agent.OverrideSkipPosting && req.Type != agent.OverrideForceApproval {
		writeError(w, http.StatusBadRequest, "unknown override type")
		return
	}
	value := req.Value
	if value == "" {
		value = "true"
	}
	duration := time.Duration(req.DurationMinutes) * time.Minute
	ov := s.deps.Agent.Overrides().Set(req.Type, value, duration)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "override set",
		"override": ov,
	})
}

func (s *Server) handleRemoveOverride(w http.ResponseWriter, r *http.Request) {
	overrideType := mux.Vars(r)["type"]
	if !s.deps.Agent.Overrides().Remove(overrideType) {
		writeError(w, http.StatusNotFound, "override not active")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "override removed",
		"type":    overrideType,
	})
}

type controlRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

func (s *Server) handleSkipNextPost(w http.ResponseWriter, r *http.Request) {
	duration := 30 * time.Minute
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}
	ov := s.deps.Agent.Overrides().Set(agent.OverrideSkipPosting, "true", duration)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "posting will be skipped",
		"override": ov,
	})
}

func (s *Server) handleForceApprove(w http.ResponseWriter, r *http.Request) {
	duration := 60 * time.Minute
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}
	ov := s.deps.Agent.Overrides().Set(agent.OverrideForceApproval, "true", duration)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "content filtering bypassed",
		"override": ov,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	severity := alerts.Severity(r.URL.Query().Get("severity"))
	active := s.deps.Alerts.Active(severity)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":  active,
		"count":   len(active),
		"summary": s.deps.Alerts.Summarize(24),
	})
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.deps.Alerts.Acknowledge(id) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "alert acknowledged", "id": id})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.deps.Alerts.Resolve(id) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "alert resolved", "id": id})
}

func (s *Server) handleTests(w http.ResponseWriter, r *http.Request) {
	tests := s.deps.Optimizer.Framework().ActiveTests()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tests": tests,
		"count": len(tests),
	})
}

func (s *Server) handleTestAnalysis(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	analysis := s.deps.Optimizer.Framework().AnalyzeTest(id)
	if analysis == nil {
		writeError(w, http.StatusNotFound, "test not found")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleTestExport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	export := s.deps.Optimizer.Framework().ExportTest(id)
	if export == nil {
		writeError(w, http.StatusNotFound, "test not found")
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleOptimizationCycle(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Optimizer.RunOptimizationCycle()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "optimization cycle completed",
		"result":  result,
	})
}

func (s *Server) handleArchivedPosts(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Archive.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "archive is not enabled")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	records, err := s.deps.Archive.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"posts": records,
		"count": len(records),
	})
}
