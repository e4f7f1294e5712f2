package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// NameKeyPrefix is the etcd key space for name bindings.
const NameKeyPrefix = "/jobmesh/names/"

// defaultLeaseTTL bounds how long a binding survives its owner crashing.
const defaultLeaseTTL = 10 // seconds

// EtcdConfig configures NewEtcdRegistry.
type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	LeaseTTL    int64 // seconds; bindings vanish this long after the owner dies
}

// EtcdRegistry stores bindings in etcd. Bindings made by Bind and Rebind are
// attached to one lease that is kept alive until Close.
type EtcdRegistry struct {
	client *clientv3.Client
	logger *zap.Logger
	ttl    int64

	mu            sync.Mutex
	leaseID       clientv3.LeaseID
	stopKeepAlive context.CancelFunc
}

// NewEtcdRegistry connects to etcd and checks that it answers.
func NewEtcdRegistry(ctx context.Context, cfg EtcdConfig, logger *zap.Logger) (*EtcdRegistry, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if _, err := cli.Get(pingCtx, NameKeyPrefix, clientv3.WithPrefix(), clientv3.WithCountOnly()); err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd %v unreachable: %w", cfg.Endpoints, err)
	}

	return &EtcdRegistry{client: cli, logger: logger.Named("registry"), ttl: cfg.LeaseTTL}, nil
}

func (e *EtcdRegistry) Bind(ctx context.Context, name, endpoint string) error {
	lease, err := e.sessionLease(ctx)
	if err != nil {
		return err
	}
	val, err := encodeBinding(name, endpoint)
	if err != nil {
		return err
	}

	key := NameKeyPrefix + name
	resp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, val, clientv3.WithLease(lease))).
		Commit()
	if err != nil {
		return err
	}
	if !resp.Succeeded {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, name)
	}
	e.logger.Info("bound name", zap.String("name", name), zap.String("endpoint", endpoint))
	return nil
}

func (e *EtcdRegistry) Rebind(ctx context.Context, name, endpoint string) error {
	lease, err := e.sessionLease(ctx)
	if err != nil {
		return err
	}
	val, err := encodeBinding(name, endpoint)
	if err != nil {
		return err
	}
	_, err = e.client.Put(ctx, NameKeyPrefix+name, val, clientv3.WithLease(lease))
	return err
}

func (e *EtcdRegistry) Lookup(ctx context.Context, name string) (string, error) {
	resp, err := e.client.Get(ctx, NameKeyPrefix+name)
	if err != nil {
		return "", err
	}
	if len(resp.Kvs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotBound, name)
	}
	var b Binding
	if err := json.Unmarshal(resp.Kvs[0].Value, &b); err != nil {
		return "", fmt.Errorf("decode binding %s: %w", name, err)
	}
	return b.Endpoint, nil
}

func (e *EtcdRegistry) List(ctx context.Context) ([]string, error) {
	resp, err := e.client.Get(ctx, NameKeyPrefix,
		clientv3.WithPrefix(), clientv3.WithKeysOnly(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		names = append(names, strings.TrimPrefix(string(kv.Key), NameKeyPrefix))
	}
	return names, nil
}

func (e *EtcdRegistry) Unbind(ctx context.Context, name string) error {
	resp, err := e.client.Delete(ctx, NameKeyPrefix+name)
	if err != nil {
		return err
	}
	if resp.Deleted == 0 {
		return fmt.Errorf("%w: %s", ErrNotBound, name)
	}
	return nil
}

// Watch turns an etcd watch on one key into a channel of binding events.
func (e *EtcdRegistry) Watch(ctx context.Context, name string) <-chan BindingEvent {
	out := make(chan BindingEvent)

	go func() {
		defer close(out)
		watchChan := e.client.Watch(ctx, NameKeyPrefix+name)

		for watchResp := range watchChan {
			for _, ev := range watchResp.Events {
				evt := BindingEvent{Binding: Binding{Name: name}}
				switch ev.Type {
				case clientv3.EventTypePut:
					evt.Type = BindingPut
					if err := json.Unmarshal(ev.Kv.Value, &evt.Binding); err != nil {
						e.logger.Warn("failed to decode binding", zap.String("name", name), zap.Error(err))
						continue
					}
				case clientv3.EventTypeDelete:
					evt.Type = BindingDelete
				}

				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Close revokes the session lease, dropping every binding this registry made.
func (e *EtcdRegistry) Close() error {
	var err error

	e.mu.Lock()
	if e.stopKeepAlive != nil {
		e.stopKeepAlive()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, revokeErr := e.client.Revoke(ctx, e.leaseID)
		cancel()
		err = multierr.Append(err, revokeErr)
		e.stopKeepAlive = nil
	}
	e.mu.Unlock()

	return multierr.Append(err, e.client.Close())
}

// sessionLease grants the shared lease on first use and keeps it alive.
func (e *EtcdRegistry) sessionLease(ctx context.Context) (clientv3.LeaseID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopKeepAlive != nil {
		return e.leaseID, nil
	}

	grant, err := e.client.Grant(ctx, e.ttl)
	if err != nil {
		return 0, fmt.Errorf("grant lease: %w", err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := e.client.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return 0, fmt.Errorf("keep lease alive: %w", err)
	}
	go func() {
		for range ch {
		}
		if kaCtx.Err() == nil {
			e.logger.Warn("lease keepalive stopped; bindings will expire", zap.Int64("lease", int64(grant.ID)))
		}
	}()

	e.leaseID = grant.ID
	e.stopKeepAlive = cancel
	return e.leaseID, nil
}

func encodeBinding(name, endpoint string) (string, error) {
	b, err := json.Marshal(Binding{Name: name, Endpoint: endpoint, BoundAt: time.Now().UTC()})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
