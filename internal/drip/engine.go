// Package drip turns sale events into two-stage message sequences.
package drip

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/cache"
	"github.com/leadwire/outreach/internal/importer"
	"github.com/leadwire/outreach/internal/model"
	"github.com/leadwire/outreach/internal/render"
	"github.com/leadwire/outreach/internal/store"
)

// SaleEvent is one externally-ingested sale record acting as a trigger.
type SaleEvent struct {
	TriggerID    string    `json:"triggerId"`
	CustomerName string    `json:"customerName"`
	Phone        string    `json:"phone"`
	Document     string    `json:"document"`
	Amount       float64   `json:"amount"`
	OccurredAt   time.Time `json:"occurredAt"`
}

type Engine struct {
	messages store.MessageStore
	settings store.SettingsStore
	contacts store.ContactStore

	// guard may be nil; the unique trigger index in the store is the
	// real idempotency guarantee either way.
	guard cache.TriggerGuard

	now func() time.Time
}

func NewEngine(messages store.MessageStore, settings store.SettingsStore, contacts store.ContactStore, guard cache.TriggerGuard) *Engine {
	return &Engine{
		messages: messages,
		settings: settings,
		contacts: contacts,
		guard:    guard,
		now:      time.Now,
	}
}

// HandleSale materializes the message pair for a trigger. Re-processing
// the same trigger id is a conflict and creates nothing. The pair is
// written in one transaction so a persistence failure never leaves an
// orphaned half.
func (e *Engine) HandleSale(ctx context.Context, ev SaleEvent) ([]model.ScheduledMessage, error) {
	if ev.TriggerID == "" {
		return nil, apperr.New(apperr.KindValidation, "triggerId is required")
	}
	phone := importer.NormalizePhone(ev.Phone)
	if phone == "" {
		return nil, apperr.New(apperr.KindValidation, "sale %s has no phone number", ev.TriggerID)
	}

	cfg, err := e.settings.GetDrip(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		slog.Debug("drip disabled, sale ignored", "trigger", ev.TriggerID)
		return nil, nil
	}

	if e.guard != nil {
		fresh, err := e.guard.ClaimTrigger(ctx, ev.TriggerID)
		if err != nil {
			slog.Warn("trigger guard unavailable, relying on store", "err", err)
		} else if !fresh {
			return nil, apperr.New(apperr.KindConflict, "trigger %s already materialized", ev.TriggerID)
		}
	}

	now := e.now().UTC()
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}

	recipient := model.Recipient{
		Name:  ev.CustomerName,
		Phone: phone,
	}

	triggerID := ev.TriggerID
	firstNotBefore := occurred.Add(cfg.FirstDelay())

	firstStatus := model.PendingFirst
	if !firstNotBefore.After(now) {
		firstStatus = model.Scheduled
	}

	first := model.ScheduledMessage{
		ID:            uuid.NewString(),
		AccountID:     cfg.AccountID,
		Recipient:     recipient,
		Text:          render.RenderSale(cfg.FirstText, ev.Document, ev.Amount),
		Images:        cfg.FirstImages,
		NotBefore:     &firstNotBefore,
		Status:        firstStatus,
		MessageNumber: 1,
		TriggerID:     &triggerID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	second := model.ScheduledMessage{
		ID:            uuid.NewString(),
		AccountID:     cfg.AccountID,
		Recipient:     recipient,
		Text:          render.RenderSale(cfg.SecondText, ev.Document, ev.Amount),
		Images:        cfg.SecondImages,
		Status:        model.ScheduledFuture,
		MessageNumber: 2,
		TriggerID:     &triggerID,
		// The delay is frozen here; later settings edits must not move
		// already-materialized followups.
		FollowupDelaySeconds: int(cfg.SecondDelay() / time.Second),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := e.messages.CreatePair(ctx, &first, &second); err != nil {
		if e.guard != nil && !apperr.IsKind(err, apperr.KindConflict) {
			// Leave the guard in place on conflict (the pair exists);
			// release it on real failures so a retry can get through.
			if relErr := e.guard.ReleaseTrigger(ctx, ev.TriggerID); relErr != nil {
				slog.Warn("releasing trigger guard failed", "trigger", ev.TriggerID, "err", relErr)
			}
		}
		return nil, err
	}

	// Keep the contact store in sync with sales; nice-to-have, not part
	// of the pair's atomicity.
	contact := model.Contact{
		Name:      ev.CustomerName,
		Phone:     phone,
		Source:    model.SourceSale,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.contacts.UpsertByPhone(ctx, &contact); err != nil {
		slog.Warn("upserting sale contact failed", "trigger", ev.TriggerID, "err", err)
	}

	slog.Info("drip pair materialized",
		"trigger", ev.TriggerID, "first_not_before", firstNotBefore)
	return []model.ScheduledMessage{first, second}, nil
}
