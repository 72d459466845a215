package api

import (
	"net/http"

	"github.com/atlasleads/sendguard/internal/domain"
	"github.com/atlasleads/sendguard/internal/pkg/httputil"
)

// GetActivationConfig returns the current filler-traffic configuration.
func (h *Handlers) GetActivationConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Activation.Config(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, cfg)
}

// UpdateActivationConfig validates and persists a config change. The
// running loop picks it up on its next tick.
func (h *Handlers) UpdateActivationConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ActivationConfig
	if !httputil.Decode(w, r, &cfg) {
		return
	}

	saved, err := h.Activation.UpdateConfig(r.Context(), &cfg)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, saved)
}

// ActivationSendNow runs one activation cycle immediately, outside the
// jittered schedule.
func (h *Handlers) ActivationSendNow(w http.ResponseWriter, r *http.Request) {
	if err := h.Activation.Tick(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "ticked"})
}

// ActivationLogPage returns the newest log entries.
func (h *Handlers) ActivationLogPage(w http.ResponseWriter, r *http.Request) {
	limit := httputil.QueryInt(r, "limit", 100)
	entries, err := h.ActLog.Log(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"entries": entries, "total": len(entries)})
}

// ClearActivationLog truncates the activation log.
func (h *Handlers) ClearActivationLog(w http.ResponseWriter, r *http.Request) {
	n, err := h.ActLog.ClearLog(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"cleared": n})
}

// ActivationStats summarizes the log plus the runner's live state.
func (h *Handlers) ActivationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ActLog.Stats(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	stats.IsRunning = h.Activation.IsRunning()
	httputil.OK(w, stats)
}
