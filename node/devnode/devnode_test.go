package devnode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nodepilot/config"
	"nodepilot/crypto"
	"nodepilot/node"
)

type fakeEsplora struct {
	height atomic.Uint32
	server *httptest.Server
}

func newFakeEsplora(t *testing.T, height uint32) *fakeEsplora {
	t.Helper()
	f := &fakeEsplora{}
	f.height.Store(height)
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/blocks/tip/height" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "%d", f.height.Load())
	}))
	t.Cleanup(f.server.Close)
	return f
}

func testConfig(dir, esplora string) config.Config {
	return config.Config{
		StoragePath:   dir,
		ListenAddress: "127.0.0.1:0",
		Network:       config.NetworkRegtest,
		EsploraURL:    esplora,
		LogLevel:      config.LogLevelTrace,
	}
}

func openTestNode(t *testing.T, cfg config.Config) *Node {
	t.Helper()
	n, err := New(cfg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSyncInterval(0),
		WithSyncRate(1000),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func counterparty(t *testing.T, b byte) node.NodeID {
	t.Helper()
	var seed [32]byte
	seed[31] = b
	key, err := crypto.PrivateKeyFromBytes(seed[:])
	require.NoError(t, err)
	return node.NodeID(key.PubKey().Compressed())
}

func TestEventsSurviveRestartUntilHandled(t *testing.T) {
	dir := t.TempDir()
	esplora := newFakeEsplora(t, 10)
	cfg := testConfig(dir, esplora.server.URL)

	n := openTestNode(t, cfg)
	ch, err := n.OpenInbound(counterparty(t, 1), 50_000)
	require.NoError(t, err)
	require.NoError(t, n.Close())

	reopened := openTestNode(t, cfg)
	require.Equal(t, n.NodeID(), reopened.NodeID())
	require.Equal(t, 1, reopened.PendingEvents())

	ev := reopened.WaitNextEvent()
	pending, ok := ev.(node.ChannelPending)
	require.True(t, ok, "unexpected event %T", ev)
	require.Equal(t, ch.ChannelID, pending.ChannelID)
	require.Equal(t, ch.UserChannelID, pending.UserChannelID)

	// Peeking twice yields the same event.
	require.Equal(t, ev, reopened.WaitNextEvent())

	require.NoError(t, reopened.EventHandled())
	require.Zero(t, reopened.PendingEvents())
	require.ErrorIs(t, reopened.EventHandled(), ErrNoEvent)
}

func TestEventsDeliveredInOrder(t *testing.T) {
	esplora := newFakeEsplora(t, 10)
	n := openTestNode(t, testConfig(t.TempDir(), esplora.server.URL))

	ch, err := n.OpenInbound(counterparty(t, 2), 10_000)
	require.NoError(t, err)
	_, err = n.ConfirmChannel(ch.ChannelID)
	require.NoError(t, err)
	_, err = n.CloseChannel(ch.ChannelID, "cooperative")
	require.NoError(t, err)

	var kinds []string
	for n.PendingEvents() > 0 {
		kinds = append(kinds, n.WaitNextEvent().Kind())
		require.NoError(t, n.EventHandled())
	}
	require.Equal(t, []string{node.KindChannelPending, node.KindChannelReady, node.KindChannelClosed}, kinds)
}

func TestStartStopLifecycle(t *testing.T) {
	esplora := newFakeEsplora(t, 1)
	n := openTestNode(t, testConfig(t.TempDir(), esplora.server.URL))

	require.ErrorIs(t, n.Stop(), ErrNotRunning)
	require.NoError(t, n.Start())
	require.ErrorIs(t, n.Start(), ErrAlreadyRunning)
	addrs := n.ListeningAddresses()
	require.Len(t, addrs, 1)
	require.NotEqual(t, "127.0.0.1:0", addrs[0])

	require.NoError(t, n.Stop())
	require.ErrorIs(t, n.Stop(), ErrNotRunning)
	require.NoError(t, n.Start())
	require.NoError(t, n.Close())
	require.ErrorIs(t, n.Start(), ErrClosed)
}

func TestNextEventAsync(t *testing.T) {
	esplora := newFakeEsplora(t, 1)
	n := openTestNode(t, testConfig(t.TempDir(), esplora.server.URL))

	_, err := n.NextEventAsync(context.Background())
	require.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, n.Start())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = n.NextEventAsync(ctx)
	require.ErrorIs(t, err, context.Canceled)

	done := make(chan error, 1)
	go func() {
		_, err := n.NextEventAsync(context.Background())
		done <- err
	}()
	ch, err := n.OpenInbound(counterparty(t, 3), 1_000)
	require.NoError(t, err)
	require.EqualValues(t, 1, ch.OpenedAtHeight)
	require.NoError(t, <-done)

	require.NoError(t, n.EventHandled())
	require.Zero(t, n.PendingEvents())
	go func() {
		_, err := n.NextEventAsync(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, n.Stop())
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrNotRunning)
	case <-time.After(2 * time.Second):
		t.Fatal("NextEventAsync did not return after Stop")
	}
}

func TestOffers(t *testing.T) {
	esplora := newFakeEsplora(t, 1)
	n := openTestNode(t, testConfig(t.TempDir(), esplora.server.URL))

	_, err := n.CreateFixedOffer(0, "TEST OFFER")
	require.ErrorIs(t, err, ErrInvalidAmount)

	fixed, err := n.CreateFixedOffer(5_000, "TEST OFFER")
	require.NoError(t, err)
	require.Contains(t, string(fixed), "lno1")

	other, err := n.CreateFixedOffer(5_000, "TEST OFFER")
	require.NoError(t, err)
	require.NotEqual(t, fixed, other)

	_, err = n.PayOffer(fixed, 4_999)
	require.ErrorIs(t, err, ErrInsufficientAmount)

	paid, err := n.PayOffer(fixed, 0)
	require.NoError(t, err)
	require.EqualValues(t, 5_000, paid.AmountMsat)
	require.NotNil(t, paid.PaymentID)

	variable, err := n.CreateVariableOffer("VAR-AMT TEST OFFER")
	require.NoError(t, err)
	_, err = n.PayOffer(variable, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	paid, err = n.PayOffer(variable, 42)
	require.NoError(t, err)
	require.EqualValues(t, 42, paid.AmountMsat)

	_, err = n.PayOffer("lno1notanoffer", 1)
	require.ErrorIs(t, err, ErrOfferNotFound)

	require.Equal(t, 2, n.PendingEvents())
	ev := n.WaitNextEvent()
	require.Equal(t, node.KindPaymentReceived, ev.Kind())
}

func TestUpdateChannelConfig(t *testing.T) {
	esplora := newFakeEsplora(t, 1)
	n := openTestNode(t, testConfig(t.TempDir(), esplora.server.URL))

	peer := counterparty(t, 4)
	ch, err := n.OpenInbound(peer, 20_000)
	require.NoError(t, err)

	cfg := node.DefaultChannelConfig()
	cfg.MaxDustHTLCExposure = node.FixedDustLimit(config.DefaultMaxDustExposureMsat)

	err = n.UpdateChannelConfig(ch.UserChannelID, counterparty(t, 5), cfg)
	require.ErrorIs(t, err, ErrCounterpartyMismatch)

	err = n.UpdateChannelConfig(node.UserChannelIDFromUint64(7), peer, cfg)
	require.ErrorIs(t, err, ErrChannelNotFound)

	require.NoError(t, n.UpdateChannelConfig(ch.UserChannelID, peer, cfg))
	channels, err := n.Channels()
	require.NoError(t, err)
	require.Len(t, channels, 1)
	require.Equal(t, cfg.MaxDustHTLCExposure, channels[0].Config.MaxDustHTLCExposure)
}

func TestChainSyncConfirmsPendingChannels(t *testing.T) {
	esplora := newFakeEsplora(t, 100)
	n := openTestNode(t, testConfig(t.TempDir(), esplora.server.URL))
	ctx := context.Background()

	n.syncOnce(ctx)
	height, err := n.store.tipHeight()
	require.NoError(t, err)
	require.EqualValues(t, 100, height)

	ch, err := n.OpenInbound(counterparty(t, 6), 30_000)
	require.NoError(t, err)
	require.EqualValues(t, 100, ch.OpenedAtHeight)

	n.syncOnce(ctx)
	require.Equal(t, 1, n.PendingEvents())

	esplora.height.Store(101)
	n.syncOnce(ctx)
	require.Equal(t, 2, n.PendingEvents())

	require.NoError(t, n.EventHandled())
	ready, ok := n.WaitNextEvent().(node.ChannelReady)
	require.True(t, ok)
	require.NotNil(t, ready.CounterpartyNodeID)
	require.Equal(t, ch.Counterparty, *ready.CounterpartyNodeID)
}

func TestStartLooksUpTipBeforeReturning(t *testing.T) {
	esplora := newFakeEsplora(t, 5)
	n := openTestNode(t, testConfig(t.TempDir(), esplora.server.URL))

	require.NoError(t, n.Start())
	ch, err := n.OpenInbound(counterparty(t, 7), 10_000)
	require.NoError(t, err)
	require.EqualValues(t, 5, ch.OpenedAtHeight)
	require.Equal(t, 1, n.PendingEvents())

	esplora.height.Store(6)
	n.syncOnce(context.Background())
	require.Equal(t, 2, n.PendingEvents())
}

func TestFirstSyncOnlySetsBaseline(t *testing.T) {
	esplora := newFakeEsplora(t, 100)
	n := openTestNode(t, testConfig(t.TempDir(), esplora.server.URL))
	ctx := context.Background()

	ch, err := n.OpenInbound(counterparty(t, 8), 10_000)
	require.NoError(t, err)
	require.Zero(t, ch.OpenedAtHeight)

	n.syncOnce(ctx)
	require.Equal(t, 1, n.PendingEvents())

	esplora.height.Store(101)
	n.syncOnce(ctx)
	require.Equal(t, 2, n.PendingEvents())
}

func TestChainSyncToleratesEndpointFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(failing.Close)
	n := openTestNode(t, testConfig(t.TempDir(), failing.URL))

	_, err := n.fetchTipHeight(context.Background())
	require.Error(t, err)
	n.syncOnce(context.Background())
	height, err := n.store.tipHeight()
	require.NoError(t, err)
	require.Zero(t, height)
}

func TestNewRejectsUnusableConfig(t *testing.T) {
	esplora := newFakeEsplora(t, 1)
	logger := WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg := testConfig(t.TempDir(), esplora.server.URL)
	zero := uint64(0)
	cfg.OfferAmountMsat = &zero
	_, err := New(cfg, logger)
	require.ErrorIs(t, err, ErrInvalidAmount)

	cfg = testConfig(t.TempDir(), esplora.server.URL)
	cfg.Network = config.Network("mainnet")
	_, err = New(cfg, logger)
	var netErr *config.NetworkParseError
	require.ErrorAs(t, err, &netErr)
}

func TestOpenInboundRejectsInvalidCounterparty(t *testing.T) {
	esplora := newFakeEsplora(t, 1)
	n := openTestNode(t, testConfig(t.TempDir(), esplora.server.URL))

	var zero node.NodeID
	_, err := n.OpenInbound(zero, 1_000)
	require.ErrorIs(t, err, ErrInvalidCounterparty)

	offCurve := counterparty(t, 1)
	offCurve[0] = 0x05
	_, err = n.OpenInbound(offCurve, 1_000)
	require.ErrorIs(t, err, ErrInvalidCounterparty)
	require.Zero(t, n.PendingEvents())
}

func TestStorageRejectsOtherNetwork(t *testing.T) {
	dir := t.TempDir()
	esplora := newFakeEsplora(t, 1)
	cfg := testConfig(dir, esplora.server.URL)
	n := openTestNode(t, cfg)
	require.NoError(t, n.Close())

	cfg.Network = config.NetworkSignet
	_, err := New(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.True(t, errors.Is(err, ErrNetworkMismatch), "got %v", err)
}
