package coordinator

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"jobmesh/internal/coordinator/events"
	"jobmesh/internal/coordinator/scheduler"
	"jobmesh/internal/rpc"
	"jobmesh/pkg/model"
)

// Handler returns the coordinator's HTTP surface.
func (c *Coordinator) Handler() http.Handler {
	r := rpc.NewRouter(c.logger)

	r.Get(rpc.PathHealth, c.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", c.handleSubmit)
		r.Get("/status", c.handleStatus)

		r.Post("/workers", c.handleRegisterWorker)
		r.Get("/workers", c.handleListWorkers)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", c.handleSubscribe)
			r.Put("/{id}", c.handleRenew)
			r.Delete("/{id}", c.handleUnsubscribe)
		})
	})
	return r
}

// handleSubmit is submitAndRun. The request stays open until the job is done.
// POST /api/v1/jobs
func (c *Coordinator) handleSubmit(w http.ResponseWriter, r *http.Request) {
	reqID := rpc.RequestIDFromContext(r.Context())

	var req rpc.SubmitRequest
	if err := rpc.DecodeJSON(w, r, &req); err != nil {
		respondErr(w, reqID, err)
		return
	}
	if req.Job == nil {
		rpc.RespondError(w, reqID, http.StatusBadRequest, rpc.CodeMalformedInput, "job is required")
		return
	}

	done, err := c.SubmitAndRun(r.Context(), req.Job, req.Retry)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	rpc.RespondOK(w, reqID, done)
}

// POST /api/v1/workers
func (c *Coordinator) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	reqID := rpc.RequestIDFromContext(r.Context())

	var info model.WorkerInfo
	if err := rpc.DecodeJSON(w, r, &info); err != nil {
		respondErr(w, reqID, err)
		return
	}
	info.RegisteredAt = time.Now().UTC()
	reg, err := c.RegisterWorker(info)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	deferred := reg == scheduler.RegistrationDeferred
	rpc.RespondOK(w, reqID, rpc.RegisterReply{Registered: !deferred, Deferred: deferred, Name: info.Name})
}

// GET /api/v1/workers
func (c *Coordinator) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	rpc.RespondOK(w, rpc.RequestIDFromContext(r.Context()), c.sched.Pool().Snapshot())
}

// GET /api/v1/status
func (c *Coordinator) handleStatus(w http.ResponseWriter, r *http.Request) {
	rpc.RespondOK(w, rpc.RequestIDFromContext(r.Context()), c.Status())
}

// POST /api/v1/subscriptions
func (c *Coordinator) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	reqID := rpc.RequestIDFromContext(r.Context())

	var req rpc.SubscribeRequest
	if err := rpc.DecodeJSON(w, r, &req); err != nil {
		respondErr(w, reqID, err)
		return
	}
	ttl, err := parseTTL(req.TTL)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	lease, err := c.Subscribe(req.CallbackURL, ttl)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	rpc.RespondCreated(w, reqID, lease)
}

// PUT /api/v1/subscriptions/{id}
func (c *Coordinator) handleRenew(w http.ResponseWriter, r *http.Request) {
	reqID := rpc.RequestIDFromContext(r.Context())

	var req rpc.RenewRequest
	if err := rpc.DecodeJSON(w, r, &req); err != nil {
		respondErr(w, reqID, err)
		return
	}
	ttl, err := parseTTL(req.TTL)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	lease, err := c.Renew(chi.URLParam(r, "id"), ttl)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	rpc.RespondOK(w, reqID, lease)
}

// DELETE /api/v1/subscriptions/{id}
func (c *Coordinator) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	reqID := rpc.RequestIDFromContext(r.Context())
	if err := c.Unsubscribe(chi.URLParam(r, "id")); err != nil {
		respondErr(w, reqID, err)
		return
	}
	rpc.RespondOK(w, reqID, map[string]bool{"cancelled": true})
}

type healthResponse struct {
	Status    string `json:"status"`
	Name      string `json:"name"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GET /healthz
func (c *Coordinator) handleHealth(w http.ResponseWriter, r *http.Request) {
	rpc.RespondOK(w, rpc.RequestIDFromContext(r.Context()), healthResponse{
		Status:    "healthy",
		Name:      c.cfg.Name,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
	})
}

// respondErr maps domain errors onto status codes.
func respondErr(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, model.ErrMalformedInput):
		rpc.RespondError(w, reqID, http.StatusBadRequest, rpc.CodeMalformedInput, err.Error())
	case errors.Is(err, events.ErrLeaseNotFound):
		rpc.RespondError(w, reqID, http.StatusNotFound, rpc.CodeNotFound, err.Error())
	case errors.Is(err, model.ErrRetriesExhausted):
		rpc.RespondError(w, reqID, http.StatusServiceUnavailable, rpc.CodeRetriesExhausted, err.Error())
	default:
		rpc.RespondError(w, reqID, http.StatusInternalServerError, rpc.CodeInternal, err.Error())
	}
}

func parseTTL(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: ttl %q must be a non-negative duration such as 30s", model.ErrMalformedInput, s)
	}
	return d, nil
}
