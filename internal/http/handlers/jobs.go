package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lumenworks/internal/drawing"
	"lumenworks/internal/progress"
)

type drawingJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// DrawingsCreate registers a generation job and kicks off the pipeline in
// the background. The job id is returned immediately; progress streams from
// the events endpoint.
func (a *App) DrawingsCreate(w http.ResponseWriter, r *http.Request) {
	var req drawing.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Name == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "name required")
		return
	}
	if len(req.Spec) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "spec required")
		return
	}

	jobID := newJobID()
	a.Progress.Create(jobID, req.Name)

	// The job outlives this request; detach it from the request context.
	go a.Pipeline.Run(context.Background(), jobID, req)

	a.json(w, http.StatusAccepted, drawingJobResponse{JobID: jobID, Status: string(progress.StatusRunning)})
}

// JobEvents streams a job's progress as server-sent events: accumulated
// history first, then live events until a terminal phase closes the stream.
func (a *App) JobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	// Replay history and register for live events atomically: an event
	// published while this handler sets up lands either in the history or on
	// the channel, never in between.
	done := make(chan struct{})
	events := make(chan progress.Event, 64)
	history, unsubscribe, ok := a.Progress.SubscribeWithReplay(jobID, func(e progress.Event) {
		select {
		case events <- e:
		case <-done:
		}
	})
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	defer close(done)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, event := range history {
		writeSSE(w, flusher, event)
		if isTerminal(event.Phase) {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			writeSSE(w, flusher, event)
			if isTerminal(event.Phase) {
				return
			}
		}
	}
}

// JobDownload serves the raw design binary stored with a completed job.
func (a *App) JobDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, ok := a.Progress.Snapshot(jobID)
	if !ok || job.Result == nil || len(job.Result.Raw) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no downloadable payload for job")
		return
	}
	filename := job.Result.Filename
	if filename == "" {
		filename = jobID + ".bin"
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(job.Result.Raw)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(job.Result.Raw)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event progress.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func isTerminal(phase progress.Phase) bool {
	return phase == progress.PhaseComplete || phase == progress.PhaseError
}

// newJobID derives an id from the current time plus a random suffix.
func newJobID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
