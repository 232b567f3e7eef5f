package server

import (
	"errors"
	"net/http"

	"github.com/rendis/harvest/pkg/schema"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Snapshot.Get())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	runID, err := s.deps.Coordinator.Start(r.Context())
	if err != nil {
		var herr *schema.HarvestError
		if errors.As(err, &herr) && herr.Code == schema.ErrCodeConflict {
			writeError(w, http.StatusConflict, herr.Message)
			return
		}
		s.deps.Logger.Error("start failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": string(schema.RunStatusRunning),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	stopped := s.deps.Coordinator.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"stopping": stopped,
		"status":   string(s.deps.Snapshot.Status()),
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if s.deps.Portfolio == nil {
		writeError(w, http.StatusServiceUnavailable, "portfolio summary not available")
		return
	}
	summary, err := s.deps.Portfolio.Summarize(r.Context())
	if err != nil {
		s.deps.Logger.Error("portfolio summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "run archive not available")
		return
	}
	runs, err := s.deps.Store.ListRuns(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.deps.Logger.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "run archive not available")
		return
	}
	run, err := s.deps.Store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		var herr *schema.HarvestError
		if errors.As(err, &herr) && herr.Code == schema.ErrCodeNotFound {
			writeError(w, http.StatusNotFound, herr.Message)
			return
		}
		s.deps.Logger.Error("get run failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"agent":  string(s.deps.Snapshot.Status()),
	})
}
