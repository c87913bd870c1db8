// Package dispatch pulls eligible messages off the queue and pushes
// them through the transport, one at a time per account.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/leadwire/outreach/internal/cache"
	"github.com/leadwire/outreach/internal/model"
	"github.com/leadwire/outreach/internal/render"
	"github.com/leadwire/outreach/internal/store"
	"github.com/leadwire/outreach/internal/transport"
)

type Dispatcher struct {
	messages store.MessageStore
	settings store.SettingsStore
	registry *transport.Registry

	// correlations may be nil when Redis is disabled.
	correlations cache.CorrelationCache
	sendTimeout  time.Duration

	now func() time.Time
}

func NewDispatcher(
	messages store.MessageStore,
	settings store.SettingsStore,
	registry *transport.Registry,
	correlations cache.CorrelationCache,
	sendTimeout time.Duration,
) *Dispatcher {
	return &Dispatcher{
		messages:     messages,
		settings:     settings,
		registry:     registry,
		correlations: correlations,
		sendTimeout:  sendTimeout,
		now:          time.Now,
	}
}

// RecoverInterrupted fails messages left in SENDING by a previous run.
// Their outcome is unknown and re-sending risks a duplicate to a
// customer, so a human decides what to re-schedule.
func (d *Dispatcher) RecoverInterrupted(ctx context.Context) error {
	n, err := d.messages.FailInterrupted(ctx, d.now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Warn("failed messages interrupted by restart", "count", n)
	}

	// A crash between a send and its followup release leaves the pair's
	// second message pinned.
	released, err := d.messages.ReconcileFollowups(ctx)
	if err != nil {
		return err
	}
	if released > 0 {
		slog.Warn("stranded followups released at startup", "count", released)
	}
	return nil
}

// Tick is the dispatch loop body: promote due drip messages, then try
// to send at most one message per connected account.
func (d *Dispatcher) Tick(ctx context.Context) {
	now := d.now().UTC()

	if n, err := d.messages.PromoteDue(ctx, now); err != nil {
		slog.Error("promoting due drip messages failed", "err", err)
	} else if n > 0 {
		slog.Info("drip messages promoted", "count", n)
	}

	// Re-release followups whose inline release was lost to a crash or
	// a transient store error.
	if n, err := d.messages.ReconcileFollowups(ctx); err != nil {
		slog.Error("reconciling followups failed", "err", err)
	} else if n > 0 {
		slog.Info("stranded followups released", "count", n)
	}

	for _, accountID := range d.registry.ConnectedAccounts() {
		if err := ctx.Err(); err != nil {
			return
		}
		d.dispatchAccount(ctx, accountID, now)
	}
}

func (d *Dispatcher) dispatchAccount(ctx context.Context, accountID string, now time.Time) {
	settings, err := d.settings.GetSender(ctx, accountID)
	if err != nil {
		slog.Error("loading sender settings failed", "account", accountID, "err", err)
		return
	}
	if !settings.Enabled {
		return
	}

	// At most one in-flight send per account.
	inFlight, err := d.messages.CountSending(ctx, accountID)
	if err != nil {
		slog.Error("counting in-flight messages failed", "account", accountID, "err", err)
		return
	}
	if inFlight > 0 {
		return
	}

	within, err := settings.WithinWindow(now)
	if err != nil {
		slog.Error("working-hour check failed", "account", accountID, "err", err)
		return
	}
	if !within {
		return
	}

	// Minimum interval between sends.
	last, err := d.messages.LastSentAt(ctx, accountID)
	if err != nil {
		slog.Error("loading last sent time failed", "account", accountID, "err", err)
		return
	}
	if last != nil && now.Sub(*last) < settings.MinInterval() {
		return
	}

	msg, err := d.messages.NextEligible(ctx, accountID, now)
	if err != nil {
		slog.Error("selecting eligible message failed", "account", accountID, "err", err)
		return
	}
	if msg == nil {
		return
	}

	conn, ok := d.registry.Get(accountID)
	if !ok {
		// Disconnected between selection and send; not an error, the
		// message stays scheduled.
		return
	}

	// Atomic claim: a competing tick loses this update and moves on.
	claimed, err := d.messages.UpdateStatusFrom(ctx, msg.ID, model.Scheduled, model.Sending, "", now)
	if err != nil {
		slog.Error("claiming message failed", "message", msg.ID, "err", err)
		return
	}
	if !claimed {
		return
	}

	d.send(ctx, conn, msg)
}

func (d *Dispatcher) send(ctx context.Context, conn transport.Conn, msg *model.ScheduledMessage) {
	text := render.Render(msg.Text, msg.Recipient, d.now())

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	providerID, err := conn.Send(sendCtx, msg.Recipient.Phone, text, msg.Images)
	done := d.now().UTC()

	if err != nil {
		slog.Warn("send failed", "message", msg.ID, "account", msg.AccountID, "err", err)
		if markErr := d.messages.MarkFailed(ctx, msg.ID, err.Error(), done); markErr != nil {
			slog.Error("marking message failed errored", "message", msg.ID, "err", markErr)
		}
		return
	}

	if err := d.messages.MarkSent(ctx, msg.ID, providerID, done); err != nil {
		slog.Error("marking message sent errored", "message", msg.ID, "err", err)
		return
	}
	slog.Info("message sent", "message", msg.ID, "account", msg.AccountID, "provider_id", providerID)

	if d.correlations != nil {
		if err := d.correlations.StoreCorrelation(ctx, providerID, msg.ID); err != nil {
			slog.Warn("storing correlation failed", "message", msg.ID, "err", err)
		}
	}

	// A sent first drip message releases its pinned sibling.
	if msg.MessageNumber == 1 && msg.TriggerID != nil {
		if err := d.messages.ReleaseFollowup(ctx, *msg.TriggerID, done); err != nil {
			slog.Error("releasing followup failed", "trigger", *msg.TriggerID, "err", err)
		}
	}
}
