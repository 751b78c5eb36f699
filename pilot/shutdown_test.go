package pilot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"nodepilot/observability"
)

func TestCoordinatorFirstTriggerWins(t *testing.T) {
	first := newManualTrigger("terminate-first")
	second := newManualTrigger("interrupt-second")
	c := NewCoordinator(discardLogger(), observability.Pilot(), second, first)

	ctx, cancel := c.Watch(context.Background())
	defer cancel()
	first.Fire()
	<-ctx.Done()
	second.Fire()

	name, ok := FiredTrigger(ctx)
	require.True(t, ok)
	require.Equal(t, "terminate-first", name)
	var fired *Fired
	require.True(t, errors.As(context.Cause(ctx), &fired))
	require.Equal(t, "terminate-first received", fired.Error())
}

func TestCoordinatorCancelHasNoTrigger(t *testing.T) {
	c := NewCoordinator(discardLogger(), nil, newManualTrigger("idle"))
	ctx, cancel := c.Watch(context.Background())
	cancel()
	<-ctx.Done()
	_, ok := FiredTrigger(ctx)
	require.False(t, ok)
}

func TestKeypressTriggerFiresOnByte(t *testing.T) {
	var out bytes.Buffer
	k := KeypressTrigger{In: strings.NewReader("x"), Reporter: NewReporter(&out)}
	require.NoError(t, k.Wait(context.Background()))
	require.Equal(t, "Press any key to continue...", out.String())
	require.Equal(t, "keypress", k.Name())
}

func TestKeypressTriggerFiresOnEOF(t *testing.T) {
	k := KeypressTrigger{In: strings.NewReader("")}
	require.NoError(t, k.Wait(context.Background()))
}

func TestKeypressTriggerReportsCtrlCAsInterrupt(t *testing.T) {
	k := KeypressTrigger{In: strings.NewReader("\x03")}
	var fired *Fired
	require.True(t, errors.As(k.Wait(context.Background()), &fired))
	require.Equal(t, "interrupt", fired.Trigger)
}

func TestCoordinatorAttributesCtrlCToInterrupt(t *testing.T) {
	counter := observability.Pilot().ShutdownCounter().WithLabelValues("interrupt")
	before := testutil.ToFloat64(counter)
	c := NewCoordinator(discardLogger(), observability.Pilot(), KeypressTrigger{In: strings.NewReader("\x03")})

	ctx, cancel := c.Watch(context.Background())
	defer cancel()
	<-ctx.Done()

	name, ok := FiredTrigger(ctx)
	require.True(t, ok)
	require.Equal(t, "interrupt", name)
	require.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestTerminalWriterFollowsRawMode(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(io.Discard)
	w := r.TerminalWriter(&out)

	_, err := w.Write([]byte("a\n"))
	require.NoError(t, err)
	r.setRawTerminal(true)
	n, err := w.Write([]byte("b\nc\n"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	r.setRawTerminal(false)
	_, err = w.Write([]byte("d\n"))
	require.NoError(t, err)

	require.Equal(t, "a\nb\r\nc\r\nd\n", out.String())
}

func TestKeypressTriggerHonoursContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	k := KeypressTrigger{In: r}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, k.Wait(ctx), context.Canceled)
}

func TestSignalTriggerFires(t *testing.T) {
	// Keep SIGTERM from terminating the test binary while the trigger
	// subscribes.
	guard := make(chan os.Signal, 16)
	signal.Notify(guard, syscall.SIGTERM)
	defer signal.Stop(guard)

	trigger := TerminateTrigger()
	require.Equal(t, "terminate", trigger.Name())
	errc := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { errc <- trigger.Wait(ctx) }()

	// Retry until the subscription is installed.
	require.Eventually(t, func() bool {
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		select {
		case err := <-errc:
			require.NoError(t, err)
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSignalTriggerReleasedByContext(t *testing.T) {
	trigger := InterruptTrigger()
	require.Equal(t, "interrupt", trigger.Name())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, trigger.Wait(ctx), context.Canceled)
}
