package pilot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nodepilot/node"
)

// Retriever fetches the next event without consuming it.
type Retriever interface {
	Next(ctx context.Context) (node.Event, error)
}

// BlockingRetriever waits on the handle's blocking call. The context is
// ignored; a wait in progress cannot be interrupted.
type BlockingRetriever struct {
	Handle node.Handle
}

func (r BlockingRetriever) Next(context.Context) (node.Event, error) {
	return r.Handle.WaitNextEvent(), nil
}

// AsyncRetriever waits on the handle's cancellable call and returns early
// once ctx is done.
type AsyncRetriever struct {
	Handle node.Handle
}

func (r AsyncRetriever) Next(ctx context.Context) (node.Event, error) {
	return r.Handle.NextEventAsync(ctx)
}

// EventDispatcher handles one event. *Dispatcher satisfies it.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev node.Event) error
}

// EventLoop repeatedly retrieves, dispatches and acknowledges events. An
// event is acknowledged only after its dispatch succeeded and before the next
// retrieval.
type EventLoop struct {
	retriever  Retriever
	dispatcher EventDispatcher
	ack        func() error
	logger     *slog.Logger

	// gate is held across dispatch and acknowledgement.
	gate   sync.Mutex
	closed bool
	err    error

	statsMu   sync.Mutex
	handled   uint64
	lastKind  string
	lastEvent time.Time
}

// NewEventLoop builds a loop acknowledging through handle.
func NewEventLoop(retriever Retriever, dispatcher EventDispatcher, handle node.Handle, logger *slog.Logger) *EventLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLoop{
		retriever:  retriever,
		dispatcher: dispatcher,
		ack:        handle.EventHandled,
		logger:     logger,
	}
}

// Run processes events until ctx is done, the loop is quiesced or an event
// fails. Only the last case returns an error.
func (l *EventLoop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		ev, err := l.retriever.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("retrieve event: %w", err)
		}
		if ev == nil {
			continue
		}
		more, err := l.handle(ctx, ev)
		if err != nil || !more {
			return err
		}
	}
}

func (l *EventLoop) handle(ctx context.Context, ev node.Event) (bool, error) {
	l.gate.Lock()
	defer l.gate.Unlock()
	if l.closed {
		l.logger.Debug("dropping event retrieved after shutdown", slog.String("kind", ev.Kind()))
		return false, nil
	}
	// An event already retrieved is handled to completion even if shutdown
	// starts meanwhile.
	dctx := context.WithoutCancel(ctx)
	if err := l.dispatcher.Dispatch(dctx, ev); err != nil {
		l.err = fmt.Errorf("dispatch %s: %w", ev.Kind(), err)
		return false, l.err
	}
	if err := l.ack(); err != nil {
		l.err = fmt.Errorf("acknowledge %s: %w", ev.Kind(), err)
		return false, l.err
	}
	l.statsMu.Lock()
	l.handled++
	l.lastKind = ev.Kind()
	l.lastEvent = time.Now().UTC()
	l.statsMu.Unlock()
	return true, nil
}

// Quiesce waits for any in-flight event to finish and closes the loop so an
// event retrieved afterwards is neither dispatched nor acknowledged. It
// returns the fatal error the loop hit, if any.
func (l *EventLoop) Quiesce() error {
	l.gate.Lock()
	defer l.gate.Unlock()
	l.closed = true
	return l.err
}

// LoopStats is a snapshot of loop progress.
type LoopStats struct {
	Handled     uint64
	LastKind    string
	LastEventAt time.Time
}

// Stats returns a snapshot of loop progress.
func (l *EventLoop) Stats() LoopStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return LoopStats{Handled: l.handled, LastKind: l.lastKind, LastEventAt: l.lastEvent}
}
