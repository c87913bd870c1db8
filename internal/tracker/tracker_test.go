package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/model"
	"github.com/leadwire/outreach/internal/store"
)

type fakeMessages struct {
	store.MessageStore

	mu       sync.Mutex
	byID     map[string]*model.ScheduledMessage
	byProv   map[string]string
	advanced []model.Status
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		byID:   make(map[string]*model.ScheduledMessage),
		byProv: make(map[string]string),
	}
}

func (f *fakeMessages) add(id, providerID string, status model.Status) {
	f.byID[id] = &model.ScheduledMessage{ID: id, Status: status}
	f.byProv[providerID] = id
}

func (f *fakeMessages) Get(_ context.Context, id string) (*model.ScheduledMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "message %s not found", id)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessages) GetByProviderMessageID(_ context.Context, providerID string) (*model.ScheduledMessage, error) {
	f.mu.Lock()
	id, ok := f.byProv[providerID]
	f.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "no message for provider id %s", providerID)
	}
	return f.Get(context.Background(), id)
}

func (f *fakeMessages) UpdateStatusFrom(_ context.Context, id string, from, to model.Status, _ string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byID[id]
	if m.Status != from {
		return false, nil
	}
	m.Status = to
	f.advanced = append(f.advanced, to)
	return true, nil
}

func (f *fakeMessages) status(id string) model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Status
}

func TestApplyAdvancesStatus(t *testing.T) {
	t.Parallel()

	msgs := newFakeMessages()
	msgs.add("m1", "p1", model.Sent)

	tr := New(msgs, nil)
	err := tr.Apply(context.Background(), Ack{ProviderMessageID: "p1", State: model.Delivered})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := msgs.status("m1"); got != model.Delivered {
		t.Errorf("status = %s, want delivered", got)
	}
}

func TestApplyAllowsSkippingDelivered(t *testing.T) {
	t.Parallel()

	// Providers sometimes report read without a delivered event first.
	msgs := newFakeMessages()
	msgs.add("m1", "p1", model.Sent)

	tr := New(msgs, nil)
	if err := tr.Apply(context.Background(), Ack{ProviderMessageID: "p1", State: model.Read}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := msgs.status("m1"); got != model.Read {
		t.Errorf("status = %s, want read", got)
	}
}

func TestApplyIgnoresLateRegression(t *testing.T) {
	t.Parallel()

	msgs := newFakeMessages()
	msgs.add("m1", "p1", model.Read)

	tr := New(msgs, nil)
	// A late delivered event after read is dropped without error.
	if err := tr.Apply(context.Background(), Ack{ProviderMessageID: "p1", State: model.Delivered}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := msgs.status("m1"); got != model.Read {
		t.Errorf("status regressed to %s", got)
	}
	if len(msgs.advanced) != 0 {
		t.Errorf("unexpected writes: %v", msgs.advanced)
	}
}

func TestApplyIgnoresDuplicate(t *testing.T) {
	t.Parallel()

	msgs := newFakeMessages()
	msgs.add("m1", "p1", model.Delivered)

	tr := New(msgs, nil)
	if err := tr.Apply(context.Background(), Ack{ProviderMessageID: "p1", State: model.Delivered}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs.advanced) != 0 {
		t.Errorf("duplicate ack caused a write: %v", msgs.advanced)
	}
}

func TestApplyDropsUnknownProviderID(t *testing.T) {
	t.Parallel()

	msgs := newFakeMessages()

	tr := New(msgs, nil)
	// Unknown ids come from untracked conversations and are not errors.
	if err := tr.Apply(context.Background(), Ack{ProviderMessageID: "ghost", State: model.Delivered}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyRejectsUnknownState(t *testing.T) {
	t.Parallel()

	msgs := newFakeMessages()
	msgs.add("m1", "p1", model.Sent)

	tr := New(msgs, nil)
	err := tr.Apply(context.Background(), Ack{ProviderMessageID: "p1", State: model.Status("teleported")})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestApplyFailedFromSent(t *testing.T) {
	t.Parallel()

	msgs := newFakeMessages()
	msgs.add("m1", "p1", model.Sent)

	tr := New(msgs, nil)
	if err := tr.Apply(context.Background(), Ack{ProviderMessageID: "p1", State: model.Failed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := msgs.status("m1"); got != model.Failed {
		t.Errorf("status = %s, want failed", got)
	}
}

type staticCorrelations struct {
	lookups map[string]string
}

func (s *staticCorrelations) StoreCorrelation(context.Context, string, string) error { return nil }

func (s *staticCorrelations) LookupCorrelation(_ context.Context, providerID string) (string, error) {
	return s.lookups[providerID], nil
}

func TestApplyUsesCorrelationCache(t *testing.T) {
	t.Parallel()

	msgs := newFakeMessages()
	msgs.byID["m1"] = &model.ScheduledMessage{ID: "m1", Status: model.Sent}
	// No byProv entry: resolution must come from the cache.

	tr := New(msgs, &staticCorrelations{lookups: map[string]string{"p1": "m1"}})
	if err := tr.Apply(context.Background(), Ack{ProviderMessageID: "p1", State: model.Delivered}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := msgs.status("m1"); got != model.Delivered {
		t.Errorf("status = %s, want delivered", got)
	}
}

func TestApplyConcurrentAcksSameMessage(t *testing.T) {
	t.Parallel()

	msgs := newFakeMessages()
	msgs.add("m1", "p1", model.Sent)

	tr := New(msgs, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		state := model.Delivered
		if i%2 == 0 {
			state = model.Read
		}
		wg.Add(1)
		go func(s model.Status) {
			defer wg.Done()
			_ = tr.Apply(context.Background(), Ack{ProviderMessageID: "p1", State: s})
		}(state)
	}
	wg.Wait()

	// Whatever the interleaving, the final status never regresses.
	if got := msgs.status("m1"); got != model.Read && got != model.Delivered {
		t.Errorf("final status = %s", got)
	}
}
