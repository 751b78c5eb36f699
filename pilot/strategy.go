package pilot

import (
	"context"
	"fmt"

	"nodepilot/config"
	"nodepilot/node"
)

// Strategy schedules an EventLoop against the shutdown context.
type Strategy interface {
	Name() string
	// Retriever returns the retrieval primitive the strategy relies on.
	Retriever(h node.Handle) Retriever
	// Run returns once ctx is done or the loop fails.
	Run(ctx context.Context, loop *EventLoop) error
}

// StrategyFor maps a configured strategy name to its implementation.
func StrategyFor(name config.Strategy) (Strategy, error) {
	switch name {
	case config.StrategyBlocking:
		return Blocking{}, nil
	case config.StrategyCooperative, "":
		return Cooperative{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// Blocking runs the loop on its own goroutine over the blocking retrieval
// call and races it against the shutdown context. After shutdown the loop is
// quiesced; its abandoned wait may still return an event, which is dropped.
type Blocking struct{}

func (Blocking) Name() string { return string(config.StrategyBlocking) }

func (Blocking) Retriever(h node.Handle) Retriever { return BlockingRetriever{Handle: h} }

func (Blocking) Run(ctx context.Context, loop *EventLoop) error {
	errc := make(chan error, 1)
	go func() {
		errc <- loop.Run(ctx)
	}()
	select {
	case err := <-errc:
		if qerr := loop.Quiesce(); err == nil {
			err = qerr
		}
		return err
	case <-ctx.Done():
		return loop.Quiesce()
	}
}

// Cooperative runs the loop on the caller's goroutine over the cancellable
// retrieval call. Shutdown is observed before every retrieval and interrupts
// a retrieval in progress.
type Cooperative struct{}

func (Cooperative) Name() string { return string(config.StrategyCooperative) }

func (Cooperative) Retriever(h node.Handle) Retriever { return AsyncRetriever{Handle: h} }

func (Cooperative) Run(ctx context.Context, loop *EventLoop) error {
	err := loop.Run(ctx)
	if qerr := loop.Quiesce(); err == nil {
		err = qerr
	}
	return err
}
