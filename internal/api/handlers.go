package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/atlasleads/sendguard/internal/domain"
	"github.com/atlasleads/sendguard/internal/gate"
	"github.com/atlasleads/sendguard/internal/pkg/httputil"
	"github.com/atlasleads/sendguard/internal/service/account"
	"github.com/atlasleads/sendguard/internal/service/dispatch"
	"github.com/atlasleads/sendguard/internal/service/health"
	"github.com/atlasleads/sendguard/internal/worker"
)

// ActivationLog is the slice of the activation repository the API reads.
type ActivationLog interface {
	Log(ctx context.Context, limit int) ([]domain.ActivationLogEntry, error)
	ClearLog(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*domain.ActivationStats, error)
}

// Handlers holds the API's dependencies.
type Handlers struct {
	Accounts   *account.Service
	Health     *health.Service
	Jobs       *dispatch.Service
	Dispatcher *worker.Dispatcher
	Activation *worker.ActivationRunner
	ActLog     ActivationLog
	Gate       *gate.Gate
}

// HealthCheck is the liveness probe.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// respondServiceError maps service sentinels onto HTTP statuses. Unknown
// errors become opaque 500s so internals never leak to clients.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrNotFound), errors.Is(err, dispatch.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, account.ErrInvalidQuota),
		errors.Is(err, health.ErrUnknownEventType),
		errors.Is(err, health.ErrInvalidDelta),
		errors.Is(err, dispatch.ErrNoItems),
		errors.Is(err, worker.ErrInvalidActivationConfig):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, account.ErrArchived),
		errors.Is(err, dispatch.ErrInvalidTransition),
		errors.Is(err, dispatch.ErrJobDone):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, worker.ErrNotEnoughAccounts):
		httputil.Error(w, http.StatusPreconditionFailed, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
