// Package devnode is a self-contained payment node for development and tests.
// It keeps its state in a bbolt file under the storage path, follows the chain
// tip through an Esplora endpoint and exposes a small HTTP control API that
// stands in for remote peers opening channels and paying offers.
package devnode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"nodepilot/config"
	"nodepilot/crypto"
	"nodepilot/node"
	"nodepilot/observability"
	"nodepilot/observability/logging"
)

const (
	keyFile      = "node.key"
	databaseFile = "devnode.db"
	logFile      = "logs/devnode.log"

	defaultSyncInterval = 10 * time.Second
	shutdownTimeout     = 5 * time.Second
)

var _ node.Handle = (*Node)(nil)

// Option customises a Node.
type Option func(*Node)

// WithLogger replaces the rotating log file under the storage path.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithHTTPClient sets the client used for Esplora requests.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Node) {
		if client != nil {
			n.httpClient = client
		}
	}
}

// WithSyncInterval sets how often the chain tip is polled. Zero disables
// periodic polling after the initial sync.
func WithSyncInterval(d time.Duration) Option {
	return func(n *Node) {
		if d >= 0 {
			n.syncInterval = d
		}
	}
}

// WithSyncRate caps Esplora requests per second.
func WithSyncRate(perSecond float64) Option {
	return func(n *Node) {
		if perSecond > 0 {
			n.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogRotation sets the size limits of the node log file.
func WithLogRotation(maxSizeMB, maxBackups int) Option {
	return func(n *Node) {
		if maxSizeMB > 0 {
			n.logMaxSizeMB = maxSizeMB
		}
		if maxBackups >= 0 {
			n.logMaxBackups = maxBackups
		}
	}
}

// Node implements node.Handle.
type Node struct {
	cfg      config.Config
	id       node.NodeID
	manifest manifest

	store   *store
	queue   *eventQueue
	metrics *observability.DevnodeMetrics

	logger        *slog.Logger
	logCloser     io.Closer
	logMaxSizeMB  int
	logMaxBackups int

	httpClient   *http.Client
	syncInterval time.Duration
	limiter      *rate.Limiter

	mu       sync.Mutex
	running  bool
	closed   bool
	stopped  chan struct{}
	listener net.Listener
	server   *http.Server
	cancel   context.CancelFunc
	workers  sync.WaitGroup
}

// New prepares the storage directory and opens the node. The node is not
// reachable until Start is called.
func New(cfg config.Config, opts ...Option) (*Node, error) {
	if cfg.StoragePath == "" {
		return nil, config.ErrStoragePathRequired
	}
	if !cfg.Network.Valid() {
		return nil, &config.NetworkParseError{Input: cfg.Network.String()}
	}
	if cfg.HasFixedOfferAmount() && *cfg.OfferAmountMsat == 0 {
		return nil, fmt.Errorf("%w: fixed offer amount must be positive", ErrInvalidAmount)
	}
	n := &Node{
		cfg:           cfg,
		metrics:       observability.Devnode(),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		syncInterval:  defaultSyncInterval,
		limiter:       rate.NewLimiter(rate.Limit(1), 1),
		logMaxSizeMB:  100,
		logMaxBackups: 5,
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := os.MkdirAll(cfg.StoragePath, 0o700); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}
	if n.logger == nil {
		file := logging.NewRotatingFile(filepath.Join(cfg.StoragePath, logFile), n.logMaxSizeMB, n.logMaxBackups)
		n.logCloser = file
		n.logger = logging.New("devnode", cfg.Network.String(),
			logging.WithOutput(file),
			logging.WithLevel(slogLevel(cfg.LogLevel)),
		)
	}

	key, created, err := crypto.LoadOrCreateKeyFile(filepath.Join(cfg.StoragePath, keyFile))
	if err != nil {
		n.closeLog()
		return nil, fmt.Errorf("node key: %w", err)
	}
	n.id = node.NodeID(key.PubKey().Compressed())
	if created {
		n.logger.Info("generated node key", slog.String("node_id", n.id.String()))
	}

	n.manifest, err = reconcileManifest(cfg.StoragePath, manifest{
		Network:       cfg.Network.String(),
		NodeID:        n.id.String(),
		ListenAddress: cfg.ListenAddress,
		EsploraURL:    cfg.EsploraURL,
	})
	if err != nil {
		n.closeLog()
		return nil, err
	}

	n.store, err = openStore(filepath.Join(cfg.StoragePath, databaseFile))
	if err != nil {
		n.closeLog()
		return nil, err
	}
	n.queue, err = newEventQueue(n.store, n.metrics)
	if err != nil {
		_ = n.store.close()
		n.closeLog()
		return nil, fmt.Errorf("load event queue: %w", err)
	}
	n.logger.Debug("devnode opened",
		slog.String("storage", cfg.StoragePath),
		slog.String("network", cfg.Network.String()),
		slog.Int("pending_events", n.queue.depth()))
	return n, nil
}

// Start binds the listen address, serves the control API and begins
// following the chain tip. The first tip lookup completes before Start
// returns so channels opened afterwards record the current height.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if n.running {
		n.mu.Unlock()
		return ErrAlreadyRunning
	}
	ln, err := net.Listen("tcp", n.cfg.ListenAddress)
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("listen %s: %w", n.cfg.ListenAddress, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.listener = ln
	n.server = &http.Server{
		Handler:           n.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	n.cancel = cancel
	n.stopped = make(chan struct{})
	n.running = true

	server := n.server
	n.workers.Add(2)
	n.mu.Unlock()
	go func() {
		defer n.workers.Done()
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("control api stopped", slog.Any("error", err))
		}
	}()
	n.syncOnce(ctx)
	go func() {
		defer n.workers.Done()
		n.syncLoop(ctx)
	}()

	n.logger.Info("devnode started",
		slog.String("node_id", n.id.String()),
		slog.String("listen", ln.Addr().String()))
	return nil
}

// Stop shuts down the control API and chain sync and wakes every pending
// NextEventAsync call with ErrNotRunning. Unacknowledged events survive and
// are delivered again after the next Start.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return ErrNotRunning
	}
	n.running = false
	close(n.stopped)
	n.cancel()
	server := n.server
	n.server = nil
	n.listener = nil
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := server.Shutdown(ctx)
	n.workers.Wait()
	if err != nil {
		return fmt.Errorf("shutdown control api: %w", err)
	}
	n.logger.Info("devnode stopped", slog.Int("pending_events", n.queue.depth()))
	return nil
}

// Close stops the node if it is running and releases the database and log
// file. The node cannot be restarted afterwards.
func (n *Node) Close() error {
	var errs []error
	if n.isRunning() {
		if err := n.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
			errs = append(errs, err)
		}
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return errors.Join(errs...)
	}
	n.closed = true
	n.mu.Unlock()
	if err := n.store.close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	n.closeLog()
	return errors.Join(errs...)
}

func (n *Node) closeLog() {
	if n.logCloser != nil {
		_ = n.logCloser.Close()
		n.logCloser = nil
	}
}

func (n *Node) isRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// NodeID returns the node's public key.
func (n *Node) NodeID() node.NodeID { return n.id }

// ListeningAddresses returns the bound control address while running and the
// configured address otherwise.
func (n *Node) ListeningAddresses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener != nil {
		return []string{n.listener.Addr().String()}
	}
	return []string{n.cfg.ListenAddress}
}

// WaitNextEvent blocks until an event is queued and returns it without
// consuming it.
func (n *Node) WaitNextEvent() node.Event {
	ev, _ := n.queue.wait(context.Background(), nil)
	return ev
}

// NextEventAsync returns the head event, or an error once ctx is done or the
// node stops.
func (n *Node) NextEventAsync(ctx context.Context) (node.Event, error) {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil, ErrNotRunning
	}
	stopped := n.stopped
	n.mu.Unlock()
	return n.queue.wait(ctx, stopped)
}

// EventHandled consumes the head event.
func (n *Node) EventHandled() error {
	return n.queue.ack()
}

// PendingEvents reports how many events await acknowledgement.
func (n *Node) PendingEvents() int {
	return n.queue.depth()
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogLevelTrace:
		return logging.LevelTrace
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
