package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"

	"jobmesh/pkg/model"
)

func TestDefaultsValidate(t *testing.T) {
	if err := DefaultCoordinatorConfig().Validate(); err != nil {
		t.Errorf("coordinator defaults: %v", err)
	}
	w := DefaultWorkerConfig()
	w.Name = "w1"
	if err := w.Validate(); err != nil {
		t.Errorf("worker defaults: %v", err)
	}
	if err := DefaultClientConfig().Validate(); err != nil {
		t.Errorf("client defaults: %v", err)
	}
}

func TestDefaultSchedulerKeepsHistoricalBehaviour(t *testing.T) {
	s := DefaultSchedulerConfig()
	if s.PoolBackoff != 5*time.Second {
		t.Errorf("PoolBackoff = %v, want 5s", s.PoolBackoff)
	}
	if s.MaxAttempts != 0 {
		t.Errorf("MaxAttempts = %d, want 0 (unbounded)", s.MaxAttempts)
	}
}

func TestCoordinatorValidateCollectsAllProblems(t *testing.T) {
	c := DefaultCoordinatorConfig()
	c.Name = ""
	c.Advertise = "localhost:7070"
	c.Registry.Endpoints = nil
	c.Scheduler.MaxAttempts = -1

	err := c.Validate()
	if !errors.Is(err, model.ErrStartupConfig) {
		t.Fatalf("Validate() = %v, want startup error", err)
	}
	var se *model.StartupError
	if !errors.As(err, &se) {
		t.Fatalf("Validate() = %T, want *StartupError", err)
	}
	if n := len(multierr.Errors(se.Err)); n != 4 {
		t.Errorf("got %d problems, want 4: %v", n, se.Err)
	}
}

func TestWorkerDirectURLSkipsRegistry(t *testing.T) {
	w := DefaultWorkerConfig()
	w.Name = "w1"
	w.Registry.Endpoints = nil
	w.CoordinatorURL = "http://coord:7070"
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	w.CoordinatorURL = "coord:7070"
	if err := w.Validate(); err == nil {
		t.Fatal("Validate accepted a URL without scheme")
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coord.yaml")
	yml := `
name: sched-a
registry:
  endpoints: ["etcd-1:2379", "etcd-2:2379"]
scheduler:
  pool_backoff: 750ms
  max_attempts: 3
log:
  format: json
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultCoordinatorConfig()
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "sched-a" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if len(cfg.Registry.Endpoints) != 2 {
		t.Errorf("Endpoints = %v", cfg.Registry.Endpoints)
	}
	if cfg.Scheduler.PoolBackoff != 750*time.Millisecond {
		t.Errorf("PoolBackoff = %v", cfg.Scheduler.PoolBackoff)
	}
	if cfg.Scheduler.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d", cfg.Scheduler.MaxAttempts)
	}
	// untouched keys keep their defaults
	if cfg.Scheduler.ProbeTimeout != 2*time.Second {
		t.Errorf("ProbeTimeout = %v", cfg.Scheduler.ProbeTimeout)
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "info" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoadErrors(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	if err := Load("", &cfg); err != nil {
		t.Errorf("Load(\"\") = %v", err)
	}
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	if !errors.Is(err, model.ErrStartupConfig) {
		t.Errorf("missing file error = %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("scheduler: [unclosed"), 0o644)
	err = Load(bad, &cfg)
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("bad yaml error = %v", err)
	}
}
