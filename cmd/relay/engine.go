package main

import (
	"fmt"
	"os"
	"time"

	"github.com/chriseon/relay/internal/config"
	"github.com/chriseon/relay/internal/credentials"
	"github.com/chriseon/relay/internal/events"
	"github.com/chriseon/relay/internal/orchestration"
	"github.com/chriseon/relay/internal/sandbox"
	"github.com/chriseon/relay/internal/store"
)

// engine bundles the wired-up components shared by the run and serve
// commands.
type engine struct {
	cfg   *config.Config
	store store.Store
	bus   *events.Bus
	orch  *orchestration.Orchestrator
	queue *orchestration.Queue
}

func (e *engine) close() {
	if err := e.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing store: %v\n", err)
	}
}

// buildEngine loads configuration and assembles the pipeline engine.
func buildEngine(configDir string) (*engine, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}

	var st store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
	} else {
		st = store.NewMemoryStore()
	}

	bus := events.NewBus(nil)
	resolver := credentials.NewResolver(st, cfg.ManagedSecrets())

	runnerOpts := []sandbox.Option{
		sandbox.WithTimeout(time.Duration(cfg.Sandbox.TimeoutSeconds) * time.Second),
	}
	if cfg.Sandbox.Inline {
		registry, err := config.BuildRegistry(cfg)
		if err != nil {
			return nil, err
		}
		runnerOpts = append(runnerOpts, sandbox.WithInline(registry))
	} else {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating own binary for worker spawn: %w", err)
		}
		runnerOpts = append(runnerOpts, sandbox.WithCommand(self, "invoke-worker"))
	}
	runner := sandbox.NewRunner(runnerOpts...)

	orch := orchestration.New(st, bus, runner, resolver,
		orchestration.WithCredentialMode(credentials.Mode(cfg.Credentials.Mode)))
	queue := orchestration.NewQueue(orch, cfg.Server.MaxConcurrentRuns)

	return &engine{cfg: cfg, store: st, bus: bus, orch: orch, queue: queue}, nil
}
