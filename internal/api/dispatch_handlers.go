package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlasleads/sendguard/internal/pkg/httputil"
	"github.com/atlasleads/sendguard/internal/service/dispatch"
)

// CreateJob snapshots a campaign: account, template, recipient list.
// Bodies are rendered per recipient at creation time.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var input dispatch.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}

	job, err := h.Jobs.Create(r.Context(), input)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, job)
}

// ListJobs returns the newest jobs with progress summaries.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := httputil.QueryInt(r, "limit", 50)
	views, err := h.Jobs.List(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"jobs": views, "total": len(views)})
}

// GetJob returns one job with progress.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	v, err := h.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, v)
}

// JobItems returns a job's items in send order.
func (h *Handlers) JobItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Jobs.Items(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"items": items, "total": len(items)})
}

// JobProgress returns the per-status item counts.
func (h *Handlers) JobProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.Jobs.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, p)
}

// PreviewJob moves a configured job to previewing for operator review.
func (h *Handlers) PreviewJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, job)
}

// StartJob begins (or resumes) sending through the dispatcher.
func (h *Handlers) StartJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Dispatcher.Run(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	job, err := h.Jobs.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, job)
}

type pauseJobRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PauseJob halts a running job at the next safe boundary.
func (h *Handlers) PauseJob(w http.ResponseWriter, r *http.Request) {
	var req pauseJobRequest
	if r.ContentLength > 0 && !httputil.Decode(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "paused by operator"
	}

	id := chi.URLParam(r, "id")
	if err := h.Dispatcher.Pause(r.Context(), id, req.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	job, err := h.Jobs.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, job)
}

// CancelJob skips remaining items and finalizes the job.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Dispatcher.Cancel(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	job, err := h.Jobs.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, job)
}

// RetryJobFailed requeues failed items. A finished job reopens paused so
// the operator explicitly restarts it.
func (h *Handlers) RetryJobFailed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.Jobs.RetryFailed(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"requeued": n})
}
