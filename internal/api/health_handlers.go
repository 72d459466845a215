package api

import (
	"net/http"

	"github.com/atlasleads/sendguard/internal/pkg/httputil"
)

// HealthSummary returns pool-wide status counts for the dashboard.
func (h *Handlers) HealthSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Health.Summarize(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, s)
}

// RecomputeScores rebuilds every account's score from decayed event
// history, on demand. The same pass also runs on a schedule.
func (h *Handlers) RecomputeScores(w http.ResponseWriter, r *http.Request) {
	results, err := h.Health.RecomputeAll(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"results": results, "total": len(results)})
}
