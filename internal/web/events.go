package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
)

// handleJobEvents streams a job's status view as server-sent events.
//
// The job is re-read every eventInterval and a status event is written
// whenever status or progress changed. The stream ends after the terminal
// view has been sent, or when the client goes away.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	ctx := r.Context()

	view, err := s.service.JobStatus(ctx, jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := logging.WithFields(ctx, "job_id", jobID)
	ticker := time.NewTicker(s.eventInterval)
	defer ticker.Stop()

	var (
		eventID int
		last    *core.JobStatusView
	)
	for {
		if last == nil || changed(*last, view) {
			eventID++
			if err := writeEvent(w, eventID, view); err != nil {
				logger.Debug("event stream write failed", "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				logger.Warn("event stream cannot flush", "error", err)
				return
			}
			v := view
			last = &v
		}
		if view.Status.IsTerminal() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := s.service.JobStatus(ctx, jobID)
		if err != nil {
			logger.Warn("event stream read failed", "error", err)
			return
		}
		view = next
	}
}

func changed(prev, next core.JobStatusView) bool {
	return prev.Status != next.Status || prev.Progress != next.Progress
}

func writeEvent(w http.ResponseWriter, id int, view core.JobStatusView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: status\ndata: %s\n\n", id, data)
	return err
}
