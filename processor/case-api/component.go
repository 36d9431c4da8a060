// Package caseapi exposes the dispute workflow over HTTP: filing cases,
// collecting statements, running analysis, recording selections and
// reading combined case status.
package caseapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/accordhq/accord/dispute"
	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/notify"
)

// Component implements the case-api component.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Wired lazily: KV buckets may not be reachable until Start.
	machine *dispute.Machine
	engine  *negotiation.Engine
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// NewComponent creates a new case-api component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply defaults
	defaults := DefaultConfig()
	if config.MaxCompromiseRounds == 0 {
		config.MaxCompromiseRounds = defaults.MaxCompromiseRounds
	}
	if config.DeadlinePolicy == "" {
		config.DeadlinePolicy = defaults.DeadlinePolicy
	}
	if config.NearAgreementSpread == 0 {
		config.NearAgreementSpread = defaults.NearAgreementSpread
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "case-api",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized case-api",
		"max_compromise_rounds", c.config.MaxCompromiseRounds,
		"deadline_policy", c.config.DeadlinePolicy)
	return nil
}

// Start begins the component.
func (c *Component) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		currentState := c.state.Load()
		if currentState == stateRunning || currentState == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", currentState)
	}

	defer func() {
		if c.state.Load() == stateStarting {
			c.state.Store(stateStopped)
		}
	}()

	if c.natsClient == nil {
		return fmt.Errorf("NATS client required")
	}

	// Wire the engine eagerly; handlers fall back to lazy wiring if the
	// KV buckets are not provisioned yet.
	if _, err := c.getEngine(ctx); err != nil {
		c.logger.Warn("Engine not ready at startup, will retry on requests",
			"error", err)
	}

	_, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.startTime = time.Now()
	c.mu.Unlock()

	c.state.Store(stateRunning)

	c.logger.Info("case-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		currentState := c.state.Load()
		if currentState == stateStopped || currentState == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", currentState)
	}

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.state.Store(stateStopped)

	c.logger.Info("case-api stopped")
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "case-api",
		Type:        "processor",
		Description: "HTTP endpoints for filing, negotiating and settling dispute cases",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return caseAPISchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	state := c.state.Load()
	running := state == stateRunning

	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    time.Since(startTime),
		Status:    status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}

// getEngine wires the machine and engine on first use. Uses double-checked
// locking: the KV buckets may only become reachable after startup.
func (c *Component) getEngine(ctx context.Context) (*negotiation.Engine, error) {
	c.mu.RLock()
	engine := c.engine
	c.mu.RUnlock()

	if engine != nil {
		return engine, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine != nil {
		return c.engine, nil
	}

	cases, err := dispute.NewKVCaseStore(ctx, c.natsClient)
	if err != nil {
		return nil, fmt.Errorf("case store: %w", err)
	}
	rounds, err := negotiation.NewKVRoundStore(ctx, c.natsClient)
	if err != nil {
		return nil, fmt.Errorf("round store: %w", err)
	}

	notifier := notify.NewDispatcher(c.natsClient, c.name, c.logger)
	machine := dispute.NewMachine(cases, notifier, c.logger)
	gen := c.config.generator(c.logger)

	c.machine = machine
	c.engine = negotiation.NewEngine(machine, cases, rounds, gen, notifier, c.logger, c.config.engineConfig())
	return c.engine, nil
}

// getMachine returns the wired state machine, wiring on first use.
func (c *Component) getMachine(ctx context.Context) (*dispute.Machine, error) {
	if _, err := c.getEngine(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.machine, nil
}
