package rpc

import (
	"context"
	"net/http"

	"jobmesh/pkg/model"
)

// PathDeliver is the observer callback path.
const PathDeliver = "/deliver"

// RemoteObserver forwards bus events to an observer's callback URL.
type RemoteObserver struct {
	c caller
}

func NewRemoteObserver(callbackURL string, hc *http.Client) *RemoteObserver {
	return &RemoteObserver{c: newCaller(callbackURL, hc)}
}

func (o *RemoteObserver) Deliver(ctx context.Context, evt model.Event) error {
	return o.c.do(ctx, http.MethodPost, PathDeliver, evt, nil)
}
