package rpc

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"jobmesh/pkg/model"
)

// Coordinator RPC paths.
const (
	PathJobs          = "/api/v1/jobs"
	PathWorkers       = "/api/v1/workers"
	PathSubscriptions = "/api/v1/subscriptions"
	PathStatus        = "/api/v1/status"
	PathHealth        = "/healthz"
)

// SubmitRequest is the body of a submitAndRun call.
type SubmitRequest struct {
	Job   *model.Job `json:"job"`
	Retry bool       `json:"retry,omitempty"`
}

// SubscribeRequest asks for events to be POSTed to CallbackURL.
type SubscribeRequest struct {
	CallbackURL string `json:"callback_url"`
	TTL         string `json:"ttl,omitempty"` // Go duration, empty for the default
}

// RenewRequest extends a lease.
type RenewRequest struct {
	TTL string `json:"ttl,omitempty"`
}

// RegisterReply acknowledges a worker registration. Deferred means the worker
// is running a job under its old registration; the new one takes effect when
// that job ends.
type RegisterReply struct {
	Registered bool   `json:"registered"`
	Deferred   bool   `json:"deferred,omitempty"`
	Name       string `json:"name"`
}

// Status is the coordinator's queue and pool snapshot.
type Status struct {
	Queued      int                    `json:"queued"`
	Waiting     []string               `json:"waiting"` // job names, head first
	Workers     []model.WorkerSnapshot `json:"workers"`
	Subscribers int                    `json:"subscribers"`
}

// CoordinatorClient calls the coordinator on behalf of clients, workers and
// observers.
type CoordinatorClient struct {
	c caller
}

func NewCoordinatorClient(baseURL string, hc *http.Client) *CoordinatorClient {
	return &CoordinatorClient{c: newCaller(baseURL, hc)}
}

func (c *CoordinatorClient) BaseURL() string { return c.c.baseURL }

// SubmitAndRun blocks until job has been computed.
func (c *CoordinatorClient) SubmitAndRun(ctx context.Context, job *model.Job, retry bool) (*model.Job, error) {
	var done model.Job
	if err := c.c.do(ctx, http.MethodPost, PathJobs, SubmitRequest{Job: job, Retry: retry}, &done); err != nil {
		return nil, err
	}
	return &done, nil
}

func (c *CoordinatorClient) Register(ctx context.Context, info model.WorkerInfo) (RegisterReply, error) {
	var reply RegisterReply
	err := c.c.do(ctx, http.MethodPost, PathWorkers, info, &reply)
	return reply, err
}

func (c *CoordinatorClient) Subscribe(ctx context.Context, callbackURL string, ttl time.Duration) (model.Lease, error) {
	var lease model.Lease
	req := SubscribeRequest{CallbackURL: callbackURL}
	if ttl > 0 {
		req.TTL = ttl.String()
	}
	err := c.c.do(ctx, http.MethodPost, PathSubscriptions, req, &lease)
	return lease, err
}

func (c *CoordinatorClient) Renew(ctx context.Context, leaseID string, ttl time.Duration) (model.Lease, error) {
	var lease model.Lease
	req := RenewRequest{}
	if ttl > 0 {
		req.TTL = ttl.String()
	}
	err := c.c.do(ctx, http.MethodPut, PathSubscriptions+"/"+url.PathEscape(leaseID), req, &lease)
	return lease, err
}

func (c *CoordinatorClient) Unsubscribe(ctx context.Context, leaseID string) error {
	return c.c.do(ctx, http.MethodDelete, PathSubscriptions+"/"+url.PathEscape(leaseID), nil, nil)
}

func (c *CoordinatorClient) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.c.do(ctx, http.MethodGet, PathStatus, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
