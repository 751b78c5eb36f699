package pilot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nodepilot/journal"
	"nodepilot/node"
	"nodepilot/observability"
)

const (
	actionUpdateChannelConfig = "update_channel_config"
	actionCreateOffer         = "create_offer"

	outcomeSuccess = "success"
	outcomeError   = "error"
	outcomeSkipped = "skipped"
)

// Journal records dispatched events. *journal.Journal satisfies it.
type Journal interface {
	Append(ctx context.Context, rec journal.Record) error
}

// OfferPolicy decides which offer a ready channel gets.
type OfferPolicy struct {
	// AmountMsat selects a fixed offer when set.
	AmountMsat          *uint64
	FixedDescription    string
	VariableDescription string
}

// ChannelPolicy controls the reconfiguration applied to ready channels.
type ChannelPolicy struct {
	Reconfigure         bool
	MaxDustExposureMsat uint64
}

// Dispatcher maps events to node actions and report lines.
type Dispatcher struct {
	handle   node.Handle
	reporter *Reporter
	offers   OfferPolicy
	channels ChannelPolicy

	logger  *slog.Logger
	metrics *observability.PilotMetrics
	journal Journal
	tracer  trace.Tracer
}

// Dispatch performs the actions for ev. A returned error is fatal to the
// event loop.
func (d *Dispatcher) Dispatch(ctx context.Context, ev node.Event) error {
	ctx, span := d.tracer.Start(ctx, "pilot.dispatch",
		trace.WithAttributes(attribute.String("event.kind", ev.Kind())))
	defer span.End()

	start := time.Now()
	offer, err := d.dispatch(ctx, ev)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	d.metrics.ObserveEvent(ev.Kind(), elapsed)
	if d.journal != nil {
		if jerr := d.journal.Append(ctx, journal.Record{Event: ev, Offer: offer, Err: err, Duration: elapsed}); jerr != nil {
			d.logger.Warn("journal append failed", slog.String("kind", ev.Kind()), slog.Any("error", jerr))
		}
	}
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, ev node.Event) (node.Offer, error) {
	switch ev := ev.(type) {
	case node.ChannelPending:
		d.reporter.ChannelPending(ev)
		return "", nil
	case node.ChannelReady:
		d.reporter.ChannelReady(ev)
		if err := d.reconfigure(ev); err != nil {
			return "", err
		}
		return d.createOffer()
	case node.PaymentReceived:
		d.reporter.PaymentReceived(ev)
		return "", nil
	default:
		d.logger.Log(ctx, slog.LevelDebug, "ignoring event", slog.String("kind", ev.Kind()))
		return "", nil
	}
}

func (d *Dispatcher) reconfigure(ev node.ChannelReady) error {
	if !d.channels.Reconfigure {
		return nil
	}
	if ev.CounterpartyNodeID == nil {
		d.metrics.RecordAction(actionUpdateChannelConfig, outcomeSkipped)
		d.logger.Warn("channel ready without counterparty, leaving config unchanged",
			slog.String("channel_id", ev.ChannelID.String()),
			slog.String("user_channel_id", ev.UserChannelID.String()))
		return nil
	}
	cfg := node.DefaultChannelConfig()
	cfg.MaxDustHTLCExposure = node.FixedDustLimit(d.channels.MaxDustExposureMsat)
	if err := d.handle.UpdateChannelConfig(ev.UserChannelID, *ev.CounterpartyNodeID, cfg); err != nil {
		d.metrics.RecordAction(actionUpdateChannelConfig, outcomeError)
		return fmt.Errorf("update channel config for %s: %w", ev.UserChannelID, err)
	}
	d.metrics.RecordAction(actionUpdateChannelConfig, outcomeSuccess)
	d.logger.Info("channel config updated",
		slog.String("user_channel_id", ev.UserChannelID.String()),
		slog.Uint64("max_dust_exposure_msat", d.channels.MaxDustExposureMsat))
	return nil
}

func (d *Dispatcher) createOffer() (node.Offer, error) {
	var (
		offer node.Offer
		err   error
	)
	if d.offers.AmountMsat != nil {
		offer, err = d.handle.CreateFixedOffer(*d.offers.AmountMsat, d.offers.FixedDescription)
	} else {
		offer, err = d.handle.CreateVariableOffer(d.offers.VariableDescription)
	}
	if err != nil {
		d.metrics.RecordAction(actionCreateOffer, outcomeError)
		return "", fmt.Errorf("create offer: %w", err)
	}
	d.metrics.RecordAction(actionCreateOffer, outcomeSuccess)
	d.reporter.CreatedOffer(offer)
	return offer, nil
}
