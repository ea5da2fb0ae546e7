package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/lockstep/internal/batch"
)

const maxExecutionsLimit = 200

// handleHealthz handles GET /healthz (no auth). The status is "degraded"
// while any recorded lock reads expired.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		Owner:         s.deps.Locks.Owner(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		AssignedJobs:  s.deps.Assigned(),
	}
	for _, l := range s.deps.Locks.Snapshot() {
		if l.Valid {
			resp.LocksValid++
		} else {
			resp.LocksExpired++
		}
	}
	if resp.LocksExpired > 0 {
		resp.Status = "degraded"
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, LocksResponse{
		Owner: s.deps.Locks.Owner(),
		Locks: s.deps.Locks.Snapshot(),
	})
}

// handleJobExecutions handles GET /jobs/{job}/executions?limit=N.
func (s *Server) handleJobExecutions(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxExecutionsLimit)
	}

	execs, err := s.deps.Executions.ListExecutions(r.Context(), job, limit)
	if err != nil {
		s.logger.Error("failed to list executions", "job", job, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []*batch.JobExecution{}
	}
	respondJSON(w, http.StatusOK, ExecutionsResponse{Job: job, Executions: execs})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid execution id")
		return
	}

	exec, err := s.deps.Executions.GetExecution(r.Context(), id)
	if errors.Is(err, batch.ErrExecutionNotFound) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get execution", "execution_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	respondJSON(w, http.StatusOK, exec)
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
