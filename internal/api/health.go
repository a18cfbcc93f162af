package api

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status    string `json:"status"`
	Scheduler string `json:"scheduler"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	sched := "stopped"
	if s.sched.Status().Running {
		sched = "running"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Scheduler: sched}); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}
