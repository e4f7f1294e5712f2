package rpc

import (
	"context"
	"fmt"
	"net/http"

	"jobmesh/pkg/model"
)

// Worker RPC paths.
const (
	PathIdentify = "/rpc/identify"
	PathExecute  = "/rpc/execute"
)

// IdentifyReply is the body of an identify answer.
type IdentifyReply struct {
	Name string `json:"name"`
}

// RemoteWorker is the coordinator's handle on a worker process. Every failure
// it returns wraps model.ErrWorkerUnreachable.
type RemoteWorker struct {
	name string
	c    caller
}

func NewRemoteWorker(info model.WorkerInfo, hc *http.Client) *RemoteWorker {
	return &RemoteWorker{name: info.Name, c: newCaller(info.Address, hc)}
}

func (w *RemoteWorker) Name() string { return w.name }

// Addr is the base URL the worker was registered with.
func (w *RemoteWorker) Addr() string { return w.c.baseURL }

func (w *RemoteWorker) Identify(ctx context.Context) (string, error) {
	var reply IdentifyReply
	if err := w.c.do(ctx, http.MethodGet, PathIdentify, nil, &reply); err != nil {
		return "", w.unreachable(err)
	}
	return reply.Name, nil
}

func (w *RemoteWorker) Execute(ctx context.Context, job *model.Job) (*model.Job, error) {
	var done model.Job
	if err := w.c.do(ctx, http.MethodPost, PathExecute, job, &done); err != nil {
		return nil, w.unreachable(err)
	}
	return &done, nil
}

func (w *RemoteWorker) unreachable(err error) error {
	return fmt.Errorf("%w: %s at %s: %v", model.ErrWorkerUnreachable, w.name, w.c.baseURL, err)
}
