package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jamhq/jam/internal/bulkadd"
	"github.com/jamhq/jam/internal/job"
	"github.com/jamhq/jam/internal/store"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	catalog store.Catalog
	jobs    *bulkadd.Service
	runner  *bulkadd.Runner
}

// NewHandler constructs a Handler with the given dependencies.
func NewHandler(catalog store.Catalog, jobs *bulkadd.Service, runner *bulkadd.Runner) *Handler {
	return &Handler{catalog: catalog, jobs: jobs, runner: runner}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/collections", h.ListCollections)
	mux.HandleFunc("GET /api/v1/collections/{id}", h.GetCollection)
	mux.HandleFunc("POST /api/v1/collections/{id}/companies", h.AddCompanies)
	mux.HandleFunc("GET /api/v1/bulk-add-jobs", h.ListJobs)
	mux.HandleFunc("GET /api/v1/bulk-add-jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/v1/bulk-add-jobs/{id}/cancel", h.CancelJob)
	mux.HandleFunc("GET /api/v1/bulk-add-jobs/{id}/sse", h.StreamJob)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// ListCollections handles GET /api/v1/collections.
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := h.catalog.ListCollections(r.Context())
	if err != nil {
		slog.Error("list collections", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list collections")
		return
	}
	if collections == nil {
		collections = []store.Collection{}
	}
	writeJSON(w, http.StatusOK, collections)
}

// GetCollection handles GET /api/v1/collections/{id}.
// It responds with one page of member companies annotated with liked status.
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	offset := parseIntParam(r.URL.Query().Get("offset"), 0)
	limit := parseIntParam(r.URL.Query().Get("limit"), 10)

	collection, err := h.catalog.GetCollection(r.Context(), id)
	if err != nil {
		slog.Error("get collection", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get collection")
		return
	}
	if collection == nil {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}

	companies, total, err := h.catalog.CollectionPage(r.Context(), id, offset, limit)
	if err != nil {
		slog.Error("collection page", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get collection")
		return
	}
	if companies == nil {
		companies = []store.Company{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":              collection.ID,
		"collection_name": collection.Name,
		"companies":       companies,
		"total":           total,
	})
}

// AddCompanies handles POST /api/v1/collections/{id}/companies.
// A non-empty diff responds 202 with the created job id; an empty diff
// responds 200 with a null id and no job is created.
func (h *Handler) AddCompanies(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB max
	var req bulkadd.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	j, err := h.jobs.CreateJob(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if j == nil {
		writeJSON(w, http.StatusOK, map[string]any{"bulk_add_job_id": nil})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"bulk_add_job_id": j.ID})
}

// ListJobs handles GET /api/v1/bulk-add-jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.Jobs(r.Context())
	if err != nil {
		slog.Error("list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*job.BulkAddJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetJob handles GET /api/v1/bulk-add-jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}
	j, err := h.jobs.Job(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// CancelJob handles POST /api/v1/bulk-add-jobs/{id}/cancel.
// Only in-progress jobs are cancellable; the worker observes the new status
// before its next insert.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}
	j, err := h.jobs.Cancel(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps bulkadd/store errors onto HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bulkadd.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, bulkadd.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrJobNotCancellable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseJobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

// parseIntParam parses a query string integer, returning the fallback on empty or invalid input.
func parseIntParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
