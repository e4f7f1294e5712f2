package worker

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"jobmesh/internal/rpc"
	"jobmesh/pkg/model"
)

// Handler returns the worker's RPC surface.
func (a *Agent) Handler() http.Handler {
	r := rpc.NewRouter(a.logger)
	r.Get(rpc.PathIdentify, a.handleIdentify)
	r.Post(rpc.PathExecute, a.handleExecute)
	r.Get(rpc.PathHealth, a.handleHealth)
	return r
}

// GET /rpc/identify
func (a *Agent) handleIdentify(w http.ResponseWriter, r *http.Request) {
	rpc.RespondOK(w, rpc.RequestIDFromContext(r.Context()), rpc.IdentifyReply{Name: a.cfg.Name})
}

// POST /rpc/execute
func (a *Agent) handleExecute(w http.ResponseWriter, r *http.Request) {
	reqID := rpc.RequestIDFromContext(r.Context())

	var job model.Job
	if err := rpc.DecodeJSON(w, r, &job); err != nil {
		rpc.RespondError(w, reqID, http.StatusBadRequest, rpc.CodeMalformedInput, err.Error())
		return
	}

	a.logger.Info("executing job", zap.String("job", job.Name), zap.String("id", job.ID))
	done, err := a.exec.Run(r.Context(), &job)
	if err != nil {
		if errors.Is(err, model.ErrMalformedInput) {
			rpc.RespondError(w, reqID, http.StatusBadRequest, rpc.CodeMalformedInput, err.Error())
			return
		}
		rpc.RespondError(w, reqID, http.StatusInternalServerError, rpc.CodeInternal, err.Error())
		return
	}
	done.Status.Worker = a.cfg.Name
	a.executed.Add(1)
	rpc.RespondOK(w, reqID, done)
}

type healthResponse struct {
	Status    string `json:"status"`
	Name      string `json:"name"`
	Executed  int64  `json:"executed"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GET /healthz
func (a *Agent) handleHealth(w http.ResponseWriter, r *http.Request) {
	rpc.RespondOK(w, rpc.RequestIDFromContext(r.Context()), healthResponse{
		Status:    "healthy",
		Name:      a.cfg.Name,
		Executed:  a.executed.Load(),
		GoVersion: runtime.Version(),
		Uptime:    time.Since(a.startTime).Round(time.Second).String(),
	})
}
