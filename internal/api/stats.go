package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByAgent  map[string]int `json:"by_agent"`
	AvgRunMS float64        `json:"avg_run_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("get stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:    stats.Total,
		ByStatus: stats.CountByStatus,
		ByAgent:  stats.CountByAgent,
		AvgRunMS: stats.AvgRunMS,
	})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sched.Status())
}
