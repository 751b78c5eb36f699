package devnode

import (
	"context"
	"sync"

	bolt "go.etcd.io/bbolt"

	"nodepilot/node"
	"nodepilot/observability"
)

// eventQueue is the persistent, in-order event stream. Retrieval peeks at the
// head; only ack removes it.
type eventQueue struct {
	store   *store
	metrics *observability.DevnodeMetrics

	mu      sync.Mutex
	items   []queuedEvent
	nextSeq uint64
	// ready is closed and replaced whenever an event is appended.
	ready chan struct{}
}

func newEventQueue(s *store, metrics *observability.DevnodeMetrics) (*eventQueue, error) {
	items, next, err := s.pendingEvents()
	if err != nil {
		return nil, err
	}
	q := &eventQueue{
		store:   s,
		metrics: metrics,
		items:   items,
		nextSeq: next,
		ready:   make(chan struct{}),
	}
	metrics.SetQueueDepth(len(items))
	return q, nil
}

// emit runs mutate and persists the event it returns in one transaction,
// then makes the event visible to consumers. A nil event from mutate commits
// the mutation without queueing anything.
func (q *eventQueue) emit(mutate func(tx *bolt.Tx) (node.Event, error)) (node.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ev node.Event
	seq := q.nextSeq
	err := q.store.db.Update(func(tx *bolt.Tx) error {
		var err error
		ev, err = mutate(tx)
		if err != nil || ev == nil {
			return err
		}
		return putEvent(tx, seq, ev)
	})
	if err != nil || ev == nil {
		return nil, err
	}
	q.nextSeq = seq + 1
	q.items = append(q.items, queuedEvent{seq: seq, ev: ev})
	q.metrics.SetQueueDepth(len(q.items))
	close(q.ready)
	q.ready = make(chan struct{})
	return ev, nil
}

// peek returns the head event, or a channel closed when one arrives.
func (q *eventQueue) peek() (node.Event, <-chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		return q.items[0].ev, nil
	}
	return nil, q.ready
}

// wait blocks until the queue has a head event, ctx is done or stop closes.
// A nil stop channel never fires.
func (q *eventQueue) wait(ctx context.Context, stop <-chan struct{}) (node.Event, error) {
	for {
		ev, ready := q.peek()
		if ev != nil {
			return ev, nil
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-stop:
			return nil, ErrNotRunning
		}
	}
}

func (q *eventQueue) ack() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return ErrNoEvent
	}
	head := q.items[0]
	if err := q.store.deleteEvent(head.seq); err != nil {
		return err
	}
	q.items[0] = queuedEvent{}
	q.items = q.items[1:]
	q.metrics.SetQueueDepth(len(q.items))
	return nil
}

func (q *eventQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
