package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mhalford/revcast/internal/runner"
)

type runEntryRow struct {
	RunID      string  `json:"run_id"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	Violations int     `json:"violations"`
}

// handleListRuns returns the run history, newest first. ?limit= caps the
// number of rows.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.runLogRepo.List(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load run log")
		s.writeError(w, http.StatusInternalServerError, "failed to load run log")
		return
	}

	out := make([]runEntryRow, 0, len(entries))
	for _, e := range entries {
		row := runEntryRow{
			RunID:      e.RunID,
			StartedAt:  e.StartedAt.UTC().Format(time.RFC3339),
			Status:     e.Status,
			Error:      e.Error,
			Violations: e.Violations,
		}
		if e.FinishedAt != nil {
			finished := e.FinishedAt.UTC().Format(time.RFC3339)
			row.FinishedAt = &finished
		}
		out = append(out, row)
	}

	s.writeJSON(w, http.StatusOK, out)
}

type runResultRow struct {
	RunID        string `json:"run_id"`
	Horizon      string `json:"horizon"`
	ForecastRows int    `json:"forecast_rows"`
	Violations   int    `json:"violations"`
	DurationMS   int64  `json:"duration_ms"`
}

// handleTriggerRun executes a pipeline run synchronously. A concurrent run
// yields 409; a run blocked by hard data-quality violations yields 422.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.Run(r.Context(), "api")
	if err != nil {
		switch {
		case errors.Is(err, runner.ErrRunInProgress):
			s.writeError(w, http.StatusConflict, "a run is already in progress")
		case errors.Is(err, runner.ErrQualityGate):
			s.writeError(w, http.StatusUnprocessableEntity, "hard data-quality violations found")
		default:
			s.log.Error().Err(err).Msg("Pipeline run failed")
			s.writeError(w, http.StatusInternalServerError, "pipeline run failed")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, runResultRow{
		RunID:        result.RunID,
		Horizon:      result.Horizon.String(),
		ForecastRows: result.ForecastRows,
		Violations:   result.Violations,
		DurationMS:   result.Duration.Milliseconds(),
	})
}
