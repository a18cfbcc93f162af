package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleStreamEvents streams scheduling events over SSE. An optional
// "task_id" query parameter narrows the stream to one task.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	taskFilter := r.URL.Query().Get("task_id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	ch, unsub := s.bus.Subscribe()
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				// Bus closed; the process is shutting down.
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if taskFilter != "" && e.TaskID != taskFilter {
				continue
			}
			payload, err := json.Marshal(e)
			if err != nil {
				s.logger.Error("marshal event for SSE", "error", err)
				continue
			}
			if err := writeSSEEvent(w, e.Type, string(payload)); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
