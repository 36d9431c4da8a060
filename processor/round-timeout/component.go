// Package roundtimeout provides a processor that watches negotiation round
// deadlines and resolves rounds whose selection window has passed.
package roundtimeout

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

// Component implements the round-timeout processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Wired lazily: KV buckets may not be reachable until Start.
	rounds negotiation.RoundStore
	engine *negotiation.Engine

	// Metrics
	checksPerformed atomic.Int64
	roundsExpired   atomic.Int64
	lastCheckMu     sync.RWMutex
	lastCheck       time.Time
}

// NewComponent creates a new round-timeout processor.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply defaults
	defaults := DefaultConfig()
	if config.CheckIntervalSeconds == 0 {
		config.CheckIntervalSeconds = defaults.CheckIntervalSeconds
	}
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
		name:       "round-timeout",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized round-timeout",
		"check_interval", c.config.checkInterval(),
		"deadline_policy", c.config.DeadlinePolicy)
	return nil
}

// Start begins watching round deadlines.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil && c.engine == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.checkLoop(subCtx)

	c.logger.Info("round-timeout started",
		"check_interval", c.config.checkInterval(),
		"deadline_policy", c.config.DeadlinePolicy)

	return nil
}

// checkLoop periodically scans for expired rounds.
func (c *Component) checkLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.checkInterval())
	defer ticker.Stop()

	// Run immediately on start
	c.checkDeadlines(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkDeadlines(ctx)
		}
	}
}

// checkDeadlines finds rounds past their deadline and resolves them.
func (c *Component) checkDeadlines(ctx context.Context) {
	c.checksPerformed.Add(1)
	c.updateLastCheck()

	engine, rounds, err := c.getEngine(ctx)
	if err != nil {
		c.logger.Warn("Round storage not available, skipping scan", "error", err)
		return
	}

	open, err := rounds.ListOpen(ctx)
	if err != nil {
		c.logger.Error("Failed to list open rounds", "error", err)
		return
	}

	c.logger.Debug("Checking round deadlines", "open_rounds", len(open))

	now := time.Now().UTC()
	for _, r := range open {
		if !r.Expired(now) {
			continue
		}

		c.logger.Info("Round deadline passed",
			"round_id", r.ID,
			"case_id", r.CaseID,
			"deadline", r.Deadline)

		// ExpireRound is idempotent, so a round resolved by a concurrent
		// scan or a selection that just closed it is a harmless no-op.
		if err := engine.ExpireRound(ctx, r.ID); err != nil {
			c.logger.Warn("Failed to expire round",
				"round_id", r.ID,
				"error", err)
			continue
		}
		c.roundsExpired.Add(1)
	}
}

// getEngine wires the engine on first use. Uses double-checked locking: the
// KV buckets may only become reachable after startup.
func (c *Component) getEngine(ctx context.Context) (*negotiation.Engine, negotiation.RoundStore, error) {
	c.mu.RLock()
	engine, rounds := c.engine, c.rounds
	c.mu.RUnlock()

	if engine != nil {
		return engine, rounds, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine != nil {
		return c.engine, c.rounds, nil
	}

	cases, err := dispute.NewKVCaseStore(ctx, c.natsClient)
	if err != nil {
		return nil, nil, fmt.Errorf("case store: %w", err)
	}
	roundStore, err := negotiation.NewKVRoundStore(ctx, c.natsClient)
	if err != nil {
		return nil, nil, fmt.Errorf("round store: %w", err)
	}

	notifier := notify.NewDispatcher(c.natsClient, c.name, c.logger)
	machine := dispute.NewMachine(cases, notifier, c.logger)
	gen := c.config.generator(c.logger)

	c.rounds = roundStore
	c.engine = negotiation.NewEngine(machine, cases, roundStore, gen, notifier, c.logger, c.config.engineConfig())
	return c.engine, c.rounds, nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.running = false
	c.logger.Info("round-timeout stopped",
		"checks_performed", c.checksPerformed.Load(),
		"rounds_expired", c.roundsExpired.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "round-timeout",
		Type:        "processor",
		Description: "Resolves negotiation rounds whose selection window has passed",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "expired-events",
			Direction:   component.DirectionOutput,
			Required:    false,
			Description: "Round expiry and resolution events",
			Config: component.NATSPort{
				Subject: "negotiation.expired.>",
			},
		},
	}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return timeoutSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
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
	return component.FlowMetrics{
		LastActivity: c.getLastCheck(),
	}
}

func (c *Component) updateLastCheck() {
	c.lastCheckMu.Lock()
	c.lastCheck = time.Now()
	c.lastCheckMu.Unlock()
}

func (c *Component) getLastCheck() time.Time {
	c.lastCheckMu.RLock()
	defer c.lastCheckMu.RUnlock()
	return c.lastCheck
}
