package pilot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/term"

	"nodepilot/observability"
)

const (
	keypressPrompt = "Press any key to continue..."

	// ctrlC is what the interrupt key produces once raw mode disables ISIG.
	ctrlC = 0x03
)

// Trigger is a shutdown source. Wait returns nil once the trigger fires and
// ctx.Err() if ctx is done first. A trigger that observed another trigger's
// input returns a *Fired naming it.
type Trigger interface {
	Name() string
	Wait(ctx context.Context) error
}

// Fired is the cancellation cause recorded when a trigger wins.
type Fired struct {
	Trigger string
}

func (f *Fired) Error() string { return f.Trigger + " received" }

// FiredTrigger returns the name of the trigger that cancelled ctx.
func FiredTrigger(ctx context.Context) (string, bool) {
	var fired *Fired
	if errors.As(context.Cause(ctx), &fired) {
		return fired.Trigger, true
	}
	return "", false
}

// KeypressTrigger fires when one byte can be read from In. A terminal is put
// into raw mode so any key counts; end of input also fires. Ctrl-C read in raw
// mode is reported as the interrupt trigger.
type KeypressTrigger struct {
	In       io.Reader
	Reporter *Reporter
}

func (KeypressTrigger) Name() string { return "keypress" }

func (k KeypressTrigger) Wait(ctx context.Context) error {
	in := k.In
	if in == nil {
		in = os.Stdin
	}
	if k.Reporter != nil {
		k.Reporter.Prompt(keypressPrompt)
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err == nil {
			if k.Reporter != nil {
				k.Reporter.setRawTerminal(true)
			}
			defer func() {
				_ = term.Restore(fd, state)
				if k.Reporter != nil {
					k.Reporter.setRawTerminal(false)
				}
			}()
		}
	}

	type result struct {
		key byte
		err error
	}
	read := make(chan result, 1)
	go func() {
		var buf [1]byte
		n, err := in.Read(buf[:])
		if n == 1 {
			err = nil
		}
		read <- result{key: buf[0], err: err}
	}()
	select {
	case res := <-read:
		switch {
		case res.err == nil && res.key == ctrlC:
			return &Fired{Trigger: InterruptTrigger().Name()}
		case res.err == nil, errors.Is(res.err, io.EOF):
			return nil
		}
		return res.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SignalTrigger fires when the process receives its signal. Each trigger
// holds its own subscription.
type SignalTrigger struct {
	name   string
	signal os.Signal
}

// InterruptTrigger fires on SIGINT.
func InterruptTrigger() SignalTrigger { return SignalTrigger{name: "interrupt", signal: os.Interrupt} }

// TerminateTrigger fires on SIGTERM.
func TerminateTrigger() SignalTrigger { return SignalTrigger{name: "terminate", signal: syscall.SIGTERM} }

func (s SignalTrigger) Name() string { return s.name }

func (s SignalTrigger) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, s.signal)
	defer stop()
	<-sigCtx.Done()
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Coordinator races triggers and cancels a context when the first fires.
type Coordinator struct {
	triggers []Trigger
	logger   *slog.Logger
	metrics  *observability.PilotMetrics
}

// NewCoordinator returns a coordinator watching triggers.
func NewCoordinator(logger *slog.Logger, metrics *observability.PilotMetrics, triggers ...Trigger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{triggers: triggers, logger: logger, metrics: metrics}
}

// Watch starts every trigger. The returned context is cancelled with a
// *Fired cause by the first trigger to fire, or when the returned cancel
// function is called. Remaining triggers are released on cancellation.
func (c *Coordinator) Watch(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	var once sync.Once
	for _, t := range c.triggers {
		go func(t Trigger) {
			err := t.Wait(ctx)
			name := t.Name()
			var fired *Fired
			if errors.As(err, &fired) && ctx.Err() == nil {
				name, err = fired.Trigger, nil
			}
			switch {
			case err == nil:
				once.Do(func() {
					cancel(&Fired{Trigger: name})
					c.metrics.RecordShutdown(name)
					c.logger.Info("shutdown trigger fired", slog.String("trigger", name))
				})
			case ctx.Err() == nil:
				c.logger.Warn("shutdown trigger failed", slog.String("trigger", t.Name()), slog.Any("error", err))
			}
		}(t)
	}
	return ctx, func() { cancel(context.Canceled) }
}
