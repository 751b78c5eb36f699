// Package pilot drives a payment node through its lifecycle: it starts the
// node, reacts to node events until a shutdown trigger fires and stops the
// node exactly once.
package pilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"nodepilot/config"
	"nodepilot/node"
	"nodepilot/observability"
)

// Option customises a Controller.
type Option func(*Controller)

// WithReporter sets the report destination. Defaults to standard output.
func WithReporter(r *Reporter) Option {
	return func(c *Controller) {
		if r != nil {
			c.reporter = r
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithJournal records every dispatched event.
func WithJournal(j Journal) Option {
	return func(c *Controller) {
		c.journal = j
	}
}

// WithTriggers replaces the default shutdown triggers.
func WithTriggers(triggers ...Trigger) Option {
	return func(c *Controller) {
		c.triggers = triggers
		c.customTriggers = true
	}
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithStrategy overrides the strategy named in settings.
func WithStrategy(s Strategy) Option {
	return func(c *Controller) {
		if s != nil {
			c.strategy = s
		}
	}
}

// Controller composes the event loop, dispatcher and shutdown coordinator
// around a node handle.
type Controller struct {
	handle   node.Handle
	cfg      config.Config
	settings config.Settings

	strategy       Strategy
	reporter       *Reporter
	logger         *slog.Logger
	metrics        *observability.PilotMetrics
	journal        Journal
	tracer         trace.Tracer
	triggers       []Trigger
	customTriggers bool

	loop *EventLoop

	stopOnce sync.Once
	stopErr  error

	mu        sync.Mutex
	running   bool
	startedAt time.Time
}

// New validates the composition and returns a controller ready to Run.
func New(handle node.Handle, cfg config.Config, settings config.Settings, opts ...Option) (*Controller, error) {
	if handle == nil {
		return nil, errors.New("pilot: node handle required")
	}
	c := &Controller{
		handle:   handle,
		cfg:      cfg,
		settings: settings,
		reporter: NewReporter(os.Stdout),
		logger:   slog.Default(),
		metrics:  observability.Pilot(),
		tracer:   otel.Tracer("nodepilot/pilot"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.strategy == nil {
		strategy, err := StrategyFor(settings.Strategy)
		if err != nil {
			return nil, err
		}
		c.strategy = strategy
	}
	if !c.customTriggers {
		c.triggers = []Trigger{
			KeypressTrigger{In: os.Stdin, Reporter: c.reporter},
			InterruptTrigger(),
			TerminateTrigger(),
		}
	}
	dispatcher := &Dispatcher{
		handle:   handle,
		reporter: c.reporter,
		offers: OfferPolicy{
			AmountMsat:          cfg.OfferAmountMsat,
			FixedDescription:    settings.Offers.FixedDescription,
			VariableDescription: settings.Offers.VariableDescription,
		},
		channels: ChannelPolicy{
			Reconfigure:         settings.Reconfigure(),
			MaxDustExposureMsat: settings.Channel.MaxDustExposureMsat,
		},
		logger:  c.logger,
		metrics: c.metrics,
		journal: c.journal,
		tracer:  c.tracer,
	}
	c.loop = NewEventLoop(c.strategy.Retriever(handle), dispatcher, handle, c.logger)
	return c, nil
}

// Run starts the node, processes events until a trigger fires or ctx is
// cancelled, then stops the node. A loop failure still stops the node; the
// returned error joins the loop and stop errors.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.handle.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	id := c.handle.NodeID()
	c.reporter.NodeID(id)
	if _, ok := c.strategy.(Cooperative); ok {
		if addrs := c.handle.ListeningAddresses(); len(addrs) > 0 {
			c.reporter.ConnectionString(id, addrs[0])
		}
	}
	c.setRunning(true)
	c.metrics.SetNodeUp(true)
	c.logger.Info("node started",
		slog.String("node_id", id.String()),
		slog.String("strategy", c.strategy.Name()),
		slog.String("network", c.cfg.Network.String()))

	shutdownCtx, cancel := NewCoordinator(c.logger, c.metrics, c.triggers...).Watch(ctx)
	defer cancel()

	loopErr := c.strategy.Run(shutdownCtx, c.loop)
	if loopErr != nil {
		c.logger.Error("event loop failed", slog.Any("error", loopErr))
	} else if trigger, ok := FiredTrigger(shutdownCtx); ok {
		c.reporter.ShutdownRequested(trigger)
	} else {
		c.reporter.ShutdownRequested("cancel")
	}

	stopErr := c.stop()
	c.setRunning(false)
	c.metrics.SetNodeUp(false)
	if stopErr == nil {
		c.reporter.Stopped()
		c.logger.Info("node stopped")
	} else {
		c.logger.Error("node stop failed", slog.Any("error", stopErr))
	}
	return errors.Join(loopErr, stopErr)
}

// stop calls Stop on its own goroutine exactly once and waits for it.
func (c *Controller) stop() error {
	c.stopOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			done <- c.handle.Stop()
		}()
		if err := <-done; err != nil {
			c.stopErr = fmt.Errorf("stop node: %w", err)
		}
	})
	return c.stopErr
}

func (c *Controller) setRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = running
	if running {
		c.startedAt = time.Now().UTC()
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	Strategy      string    `json:"strategy"`
	NodeID        string    `json:"node_id"`
	Network       string    `json:"network"`
	Running       bool      `json:"running"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	EventsHandled uint64    `json:"events_handled"`
	LastEventKind string    `json:"last_event_kind,omitempty"`
	LastEventAt   time.Time `json:"last_event_at,omitempty"`
}

// Status reports the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	running, started := c.running, c.startedAt
	c.mu.Unlock()
	stats := c.loop.Stats()
	return Status{
		Strategy:      c.strategy.Name(),
		NodeID:        c.handle.NodeID().String(),
		Network:       c.cfg.Network.String(),
		Running:       running,
		StartedAt:     started,
		EventsHandled: stats.Handled,
		LastEventKind: stats.LastKind,
		LastEventAt:   stats.LastEventAt,
	}
}
