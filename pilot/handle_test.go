package pilot

import (
	"context"
	"errors"
	"sync"

	"nodepilot/node"
)

var errNotRunning = errors.New("fake: not running")

type configUpdate struct {
	userChannelID node.UserChannelID
	counterparty  node.NodeID
	cfg           node.ChannelConfig
}

// fakeHandle is an in-memory node.Handle. log records dispatch-visible calls
// and acknowledgements in order.
type fakeHandle struct {
	mu      sync.Mutex
	events  []node.Event
	ready   chan struct{}
	stopped chan struct{}
	running bool

	log        []string
	acks       int
	retrievals int
	starts     int
	stops      int

	startErr  error
	stopErr   error
	updateErr error
	offerErr  error

	updates       []configUpdate
	fixedAmounts  []uint64
	fixedDescs    []string
	variableDescs []string
	offerEntered  chan struct{}
	offerRelease  chan struct{}
	onAck         func(n int)
	nodeID        node.NodeID
	listenAddrs   []string
	ackErr        error
}

// handleCalls is a copy of what a fakeHandle observed.
type handleCalls struct {
	log           []string
	acks          int
	retrievals    int
	starts        int
	stops         int
	updates       []configUpdate
	fixedAmounts  []uint64
	fixedDescs    []string
	variableDescs []string
}

func newFakeHandle(events ...node.Event) *fakeHandle {
	h := &fakeHandle{
		events:      events,
		ready:       make(chan struct{}),
		stopped:     make(chan struct{}),
		listenAddrs: []string{"127.0.0.1:9735"},
	}
	h.nodeID[0] = 0x02
	h.nodeID[32] = 0xaa
	return h
}

func (h *fakeHandle) push(ev node.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	close(h.ready)
	h.ready = make(chan struct{})
}

func (h *fakeHandle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	if h.startErr != nil {
		return h.startErr
	}
	h.running = true
	return nil
}

func (h *fakeHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	if h.running {
		h.running = false
		close(h.stopped)
	}
	return h.stopErr
}

func (h *fakeHandle) NodeID() node.NodeID { return h.nodeID }

func (h *fakeHandle) ListeningAddresses() []string { return h.listenAddrs }

func (h *fakeHandle) peek() (node.Event, <-chan struct{}, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) > 0 {
		h.retrievals++
		return h.events[0], nil, nil
	}
	return nil, h.ready, h.stopped
}

func (h *fakeHandle) WaitNextEvent() node.Event {
	for {
		ev, ready, _ := h.peek()
		if ev != nil {
			return ev
		}
		<-ready
	}
}

func (h *fakeHandle) NextEventAsync(ctx context.Context) (node.Event, error) {
	for {
		ev, ready, stopped := h.peek()
		if ev != nil {
			return ev, nil
		}
		select {
		case <-ready:
		case <-stopped:
			return nil, errNotRunning
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (h *fakeHandle) EventHandled() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ackErr != nil {
		return h.ackErr
	}
	if len(h.events) == 0 {
		return errors.New("fake: no event")
	}
	h.acks++
	h.log = append(h.log, "ack:"+h.events[0].Kind())
	h.events = h.events[1:]
	if h.onAck != nil {
		h.onAck(h.acks)
	}
	return nil
}

func (h *fakeHandle) UpdateChannelConfig(userChannelID node.UserChannelID, counterparty node.NodeID, cfg node.ChannelConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = append(h.log, "update_channel_config")
	if h.updateErr != nil {
		return h.updateErr
	}
	h.updates = append(h.updates, configUpdate{userChannelID: userChannelID, counterparty: counterparty, cfg: cfg})
	return nil
}

func (h *fakeHandle) CreateFixedOffer(amountMsat uint64, description string) (node.Offer, error) {
	h.mu.Lock()
	h.log = append(h.log, "create_fixed_offer")
	h.fixedAmounts = append(h.fixedAmounts, amountMsat)
	h.fixedDescs = append(h.fixedDescs, description)
	err := h.offerErr
	h.mu.Unlock()
	if err != nil {
		return "", err
	}
	return "lno1fixed", nil
}

func (h *fakeHandle) CreateVariableOffer(description string) (node.Offer, error) {
	h.mu.Lock()
	h.log = append(h.log, "create_variable_offer")
	h.variableDescs = append(h.variableDescs, description)
	err := h.offerErr
	entered, release := h.offerEntered, h.offerRelease
	h.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}
	if err != nil {
		return "", err
	}
	return "lno1variable", nil
}

func (h *fakeHandle) snapshot() handleCalls {
	h.mu.Lock()
	defer h.mu.Unlock()
	return handleCalls{
		log:           append([]string(nil), h.log...),
		acks:          h.acks,
		retrievals:    h.retrievals,
		starts:        h.starts,
		stops:         h.stops,
		updates:       append([]configUpdate(nil), h.updates...),
		fixedAmounts:  append([]uint64(nil), h.fixedAmounts...),
		fixedDescs:    append([]string(nil), h.fixedDescs...),
		variableDescs: append([]string(nil), h.variableDescs...),
	}
}

// manualTrigger fires when its channel is closed.
type manualTrigger struct {
	name string
	fire chan struct{}
}

func newManualTrigger(name string) *manualTrigger {
	return &manualTrigger{name: name, fire: make(chan struct{})}
}

func (m *manualTrigger) Name() string { return m.name }

func (m *manualTrigger) Wait(ctx context.Context) error {
	select {
	case <-m.fire:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *manualTrigger) Fire() { close(m.fire) }

func (h *fakeHandle) record(entry string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = append(h.log, entry)
}
