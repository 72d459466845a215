package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlasleads/sendguard/internal/domain"
	"github.com/atlasleads/sendguard/internal/pkg/httputil"
)

type connectAccountRequest struct {
	Label       string `json:"label"`
	PhoneNumber string `json:"phone_number"`
}

// ConnectAccount registers a newly connected channel account.
func (h *Handlers) ConnectAccount(w http.ResponseWriter, r *http.Request) {
	var req connectAccountRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Label == "" {
		httputil.BadRequest(w, "label is required")
		return
	}

	v, err := h.Accounts.Connect(r.Context(), req.Label, req.PhoneNumber)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, v)
}

// ListAccounts returns the pool ordered worst health first.
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	views, err := h.Accounts.List(r.Context(), includeArchived)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"accounts": views, "total": len(views)})
}

// GetAccount returns one account with its derived health status.
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	v, err := h.Accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, v)
}

type updateQuotaRequest struct {
	MaxDailyMessages   int `json:"max_daily_messages"`
	MinIntervalSeconds int `json:"min_interval_seconds"`
}

// UpdateAccountQuota sets the operator-tunable quota fields.
func (h *Handlers) UpdateAccountQuota(w http.ResponseWriter, r *http.Request) {
	var req updateQuotaRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.Accounts.UpdateQuota(r.Context(), id, req.MaxDailyMessages, req.MinIntervalSeconds); err != nil {
		respondServiceError(w, err)
		return
	}
	v, err := h.Accounts.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, v)
}

// ArchiveAccount soft-deletes an account; its history stays queryable.
func (h *Handlers) ArchiveAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.Archive(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "archived"})
}

// CanSend exposes the gate's advisory check for the dashboard.
func (h *Handlers) CanSend(w http.ResponseWriter, r *http.Request) {
	d, err := h.Gate.CanSendNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"allowed":             d.Allowed,
		"reason":              d.Reason,
		"retry_after_seconds": int(d.RetryAfter.Seconds()),
	})
}

type reportIncidentRequest struct {
	EventType   string `json:"event_type"`
	Description string `json:"description"`
	Delta       int    `json:"delta,omitempty"` // manual_adjustment only
}

// ReportIncident records a report, block, no-reply, or manual adjustment
// against an account.
func (h *Handlers) ReportIncident(w http.ResponseWriter, r *http.Request) {
	var req reportIncidentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	e, err := h.Health.RecordEvent(r.Context(), chi.URLParam(r, "id"),
		domain.HealthEventType(req.EventType), req.Description, req.Delta)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, e)
}

// RecordReply notes an inbound reply, clearing the no-reply streak.
func (h *Handlers) RecordReply(w http.ResponseWriter, r *http.Request) {
	if err := h.Health.RecordReply(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "recorded"})
}

// AccountEvents returns an account's health event history, newest first.
func (h *Handlers) AccountEvents(w http.ResponseWriter, r *http.Request) {
	limit := httputil.QueryInt(r, "limit", 50)
	events, err := h.Health.Events(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"events": events, "total": len(events)})
}
