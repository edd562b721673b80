package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// StreamJob handles GET /api/v1/bulk-add-jobs/{id}/sse.
// It streams progress snapshots for the job until it reaches a terminal
// state or the client disconnects.
func (h *Handler) StreamJob(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	j, err := h.jobs.Job(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// If already terminal, send the result event and close immediately.
	if j.Status.IsTerminal() {
		writeSSEEvent(w, flusher, "result", j)
		return
	}

	ch := h.runner.Subscribe(id)
	defer h.runner.Unsubscribe(id, ch)

	// Send the current snapshot so the client has an initial state.
	writeSSEEvent(w, flusher, "progress", j)

	for {
		select {
		case snap, open := <-ch:
			if !open {
				return
			}
			event := "progress"
			if snap.Status.IsTerminal() {
				event = "result"
			}
			writeSSEEvent(w, flusher, event, snap)
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent serialises data as JSON and writes a single SSE event frame.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
