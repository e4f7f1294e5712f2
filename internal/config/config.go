// Package config holds the settings of the coordinator, worker and client
// processes. Values come from defaults, an optional YAML file, then flags.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"jobmesh/pkg/model"
	"jobmesh/pkg/registry"
)

// DefaultCoordinatorName is the registry name the coordinator binds by default.
const DefaultCoordinatorName = "jobmesh"

// LogConfig selects zap level and encoder.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// RegistryConfig points at the etcd cluster used for naming.
type RegistryConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	LeaseTTL    int64         `yaml:"lease_ttl"` // seconds
}

// SchedulerConfig tunes queueing, worker acquisition and retry.
type SchedulerConfig struct {
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`   // per Identify call
	PoolBackoff    time.Duration `yaml:"pool_backoff"`    // wait after a scan finds no live worker
	MaxAttempts    int           `yaml:"max_attempts"`    // 0 retries forever
	RetryBackoff   time.Duration `yaml:"retry_backoff"`   // pause before re-enqueueing a failed job
	ExecuteTimeout time.Duration `yaml:"execute_timeout"` // 0 means no limit
}

// EventsConfig tunes the event bus.
type EventsConfig struct {
	DefaultLeaseTTL time.Duration `yaml:"default_lease_ttl"`
	MaxLeaseTTL     time.Duration `yaml:"max_lease_ttl"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// CoordinatorConfig configures jobmesh-coordinator.
type CoordinatorConfig struct {
	Name      string          `yaml:"name"`      // registry name to bind
	Listen    string          `yaml:"listen"`    // HTTP listen address
	Advertise string          `yaml:"advertise"` // URL bound in the registry
	Registry  RegistryConfig  `yaml:"registry"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Events    EventsConfig    `yaml:"events"`
	Log       LogConfig       `yaml:"log"`
}

// WorkerConfig configures jobmesh-worker.
type WorkerConfig struct {
	Name           string         `yaml:"name"`
	Listen         string         `yaml:"listen"`
	Advertise      string         `yaml:"advertise"`
	Coordinator    string         `yaml:"coordinator"`     // registry name to look up
	CoordinatorURL string         `yaml:"coordinator_url"` // skips the registry when set
	Heartbeat      time.Duration  `yaml:"heartbeat"`       // re-registration interval, 0 registers once
	SimulatedWork  time.Duration  `yaml:"simulated_work"`
	Registry       RegistryConfig `yaml:"registry"`
	Log            LogConfig      `yaml:"log"`
}

// ClientConfig configures the jobmesh command line client.
type ClientConfig struct {
	Coordinator    string         `yaml:"coordinator"`
	CoordinatorURL string         `yaml:"coordinator_url"`
	Registry       RegistryConfig `yaml:"registry"`
	Log            LogConfig      `yaml:"log"`
}

func defaultRegistry() RegistryConfig {
	return RegistryConfig{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
		LeaseTTL:    10,
	}
}

func defaultLog() LogConfig {
	return LogConfig{Level: "info", Format: "console"}
}

// DefaultSchedulerConfig keeps the historical 5s pool backoff and unbounded
// retry.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ProbeTimeout: 2 * time.Second,
		PoolBackoff:  5 * time.Second,
	}
}

func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		DefaultLeaseTTL: time.Minute,
		MaxLeaseTTL:     10 * time.Minute,
		DeliveryTimeout: 5 * time.Second,
	}
}

func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Name:      DefaultCoordinatorName,
		Listen:    ":7070",
		Advertise: "http://localhost:7070",
		Registry:  defaultRegistry(),
		Scheduler: DefaultSchedulerConfig(),
		Events:    DefaultEventsConfig(),
		Log:       defaultLog(),
	}
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Listen:      ":7071",
		Advertise:   "http://localhost:7071",
		Coordinator: DefaultCoordinatorName,
		Heartbeat:   10 * time.Second,
		Registry:    defaultRegistry(),
		Log:         defaultLog(),
	}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Coordinator: DefaultCoordinatorName,
		Registry:    defaultRegistry(),
		Log:         defaultLog(),
	}
}

// Load overlays the YAML file at path onto dst. An empty path is a no-op.
func Load(path string, dst any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.NewStartupError("config", fmt.Errorf("read %s: %w", path, err))
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return model.NewStartupError("config", fmt.Errorf("parse %s: %w", path, err))
	}
	return nil
}

func (c CoordinatorConfig) Validate() error {
	var err error
	if c.Name == "" {
		err = multierr.Append(err, errors.New("name is required"))
	}
	if c.Listen == "" {
		err = multierr.Append(err, errors.New("listen address is required"))
	}
	err = multierr.Append(err, validateURL("advertise", c.Advertise))
	err = multierr.Append(err, c.Registry.validate())
	err = multierr.Append(err, c.Scheduler.validate())
	if c.Events.DefaultLeaseTTL <= 0 {
		err = multierr.Append(err, errors.New("events.default_lease_ttl must be positive"))
	}
	if c.Events.MaxLeaseTTL < c.Events.DefaultLeaseTTL {
		err = multierr.Append(err, errors.New("events.max_lease_ttl must be at least default_lease_ttl"))
	}
	return wrap("coordinator config", err)
}

func (c WorkerConfig) Validate() error {
	var err error
	if c.Name == "" {
		err = multierr.Append(err, errors.New("name is required"))
	}
	if c.Listen == "" {
		err = multierr.Append(err, errors.New("listen address is required"))
	}
	err = multierr.Append(err, validateURL("advertise", c.Advertise))
	err = multierr.Append(err, c.locate())
	if c.Heartbeat < 0 || c.SimulatedWork < 0 {
		err = multierr.Append(err, errors.New("durations must not be negative"))
	}
	return wrap("worker config", err)
}

func (c ClientConfig) Validate() error {
	return wrap("client config", locate(c.Coordinator, c.CoordinatorURL, c.Registry))
}

func (c WorkerConfig) locate() error {
	return locate(c.Coordinator, c.CoordinatorURL, c.Registry)
}

// locate checks that the coordinator can be found either directly or through
// the registry.
func locate(name, directURL string, reg RegistryConfig) error {
	if directURL != "" {
		return validateURL("coordinator_url", directURL)
	}
	if name == "" {
		return errors.New("coordinator name or coordinator_url is required")
	}
	return reg.validate()
}

// OpenRegistry connects to the etcd cluster. Failure is a startup error.
func (r RegistryConfig) OpenRegistry(ctx context.Context, logger *zap.Logger) (registry.Registry, error) {
	reg, err := registry.NewEtcdRegistry(ctx, registry.EtcdConfig{
		Endpoints:   r.Endpoints,
		DialTimeout: r.DialTimeout,
		LeaseTTL:    r.LeaseTTL,
	}, logger)
	if err != nil {
		return nil, model.NewStartupError("registry", err)
	}
	return reg, nil
}

func (r RegistryConfig) validate() error {
	if len(r.Endpoints) == 0 {
		return errors.New("registry.endpoints must not be empty")
	}
	return nil
}

func (s SchedulerConfig) validate() error {
	var err error
	if s.ProbeTimeout <= 0 {
		err = multierr.Append(err, errors.New("scheduler.probe_timeout must be positive"))
	}
	if s.PoolBackoff <= 0 {
		err = multierr.Append(err, errors.New("scheduler.pool_backoff must be positive"))
	}
	if s.MaxAttempts < 0 {
		err = multierr.Append(err, errors.New("scheduler.max_attempts must not be negative"))
	}
	if s.RetryBackoff < 0 || s.ExecuteTimeout < 0 {
		err = multierr.Append(err, errors.New("scheduler durations must not be negative"))
	}
	return err
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	return nil
}

func wrap(component string, err error) error {
	if err == nil {
		return nil
	}
	return model.NewStartupError(component, err)
}
