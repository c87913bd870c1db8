// Package tracker advances message lifecycles as asynchronous delivery
// acknowledgements arrive from the transport.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/cache"
	"github.com/leadwire/outreach/internal/model"
	"github.com/leadwire/outreach/internal/store"
)

// Ack is one delivery acknowledgement from the gateway, keyed by the
// provider's message id.
type Ack struct {
	ProviderMessageID string
	State             model.Status
	Timestamp         time.Time
}

type Tracker struct {
	messages store.MessageStore
	// correlations may be nil; lookups then go straight to the store.
	correlations cache.CorrelationCache

	locks keyedMutex
}

func New(messages store.MessageStore, correlations cache.CorrelationCache) *Tracker {
	return &Tracker{
		messages:     messages,
		correlations: correlations,
	}
}

// Apply records an acknowledgement. Regressions (delivered after read)
// and duplicates are dropped with a log line; unknown provider ids are
// dropped too since the event may belong to an untracked conversation.
// Events for the same message are serialized; independent messages
// proceed concurrently.
func (t *Tracker) Apply(ctx context.Context, ack Ack) error {
	if ack.State != model.Sent && ack.State != model.Delivered &&
		ack.State != model.Read && ack.State != model.Failed {
		return apperr.New(apperr.KindValidation, "unknown delivery state %q", ack.State)
	}

	id, err := t.resolve(ctx, ack.ProviderMessageID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			slog.Debug("delivery ack for unknown provider id dropped",
				"provider_id", ack.ProviderMessageID, "state", ack.State)
			return nil
		}
		return err
	}

	unlock := t.locks.lock(id)
	defer unlock()

	msg, err := t.messages.Get(ctx, id)
	if err != nil {
		return err
	}

	if msg.Status == ack.State {
		return nil
	}
	if !msg.Status.CanTransition(ack.State) {
		slog.Info("out-of-order delivery ack ignored",
			"message", id, "current", msg.Status, "event", ack.State)
		return nil
	}

	at := ack.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	ok, err := t.messages.UpdateStatusFrom(ctx, id, msg.Status, ack.State, "delivery ack", at.UTC())
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("delivery ack lost status race", "message", id, "event", ack.State)
		return nil
	}

	slog.Info("delivery status advanced", "message", id, "status", ack.State)
	return nil
}

func (t *Tracker) resolve(ctx context.Context, providerMessageID string) (string, error) {
	if t.correlations != nil {
		id, err := t.correlations.LookupCorrelation(ctx, providerMessageID)
		if err != nil {
			slog.Warn("correlation lookup failed, falling back to store", "err", err)
		} else if id != "" {
			return id, nil
		}
	}

	msg, err := t.messages.GetByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// keyedMutex hands out one mutex per message id so unrelated messages
// never contend.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*entry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
