package store

import (
	"context"
	"testing"

	"github.com/leadwire/outreach/internal/model"
)

func TestGetSenderDefaultsForUnseenAccount(t *testing.T) {
	t.Parallel()

	repo := NewSettingsRepo(openTestStore(t))

	got, err := repo.GetSender(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := model.DefaultSenderSettings("fresh")
	if *got != want {
		t.Errorf("got %+v, want %+v", *got, want)
	}
}

func TestPutSenderUpsert(t *testing.T) {
	t.Parallel()

	repo := NewSettingsRepo(openTestStore(t))
	ctx := context.Background()

	s := model.SenderSettings{
		AccountID:       "acc-1",
		WorkStart:       "08:00",
		WorkEnd:         "20:00",
		IntervalSeconds: 60,
		Enabled:         true,
		Timezone:        "Europe/Budapest",
	}
	if err := repo.PutSender(ctx, &s); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := repo.GetSender(ctx, "acc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got != s {
		t.Errorf("got %+v, want %+v", *got, s)
	}

	s.Enabled = false
	s.IntervalSeconds = 90
	if err := repo.PutSender(ctx, &s); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, err = repo.GetSender(ctx, "acc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Enabled || got.IntervalSeconds != 90 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestGetDripDefaults(t *testing.T) {
	t.Parallel()

	repo := NewSettingsRepo(openTestStore(t))

	got, err := repo.GetDrip(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Enabled {
		t.Errorf("drip enabled by default")
	}
	if got.FirstDelayValue != 1 || got.FirstDelayUnit != model.UnitDays {
		t.Errorf("first delay default = %d %s", got.FirstDelayValue, got.FirstDelayUnit)
	}
	if got.SecondDelayValue != 7 || got.SecondDelayUnit != model.UnitDays {
		t.Errorf("second delay default = %d %s", got.SecondDelayValue, got.SecondDelayUnit)
	}
}

func TestPutDripUpsert(t *testing.T) {
	t.Parallel()

	repo := NewSettingsRepo(openTestStore(t))
	ctx := context.Background()

	d := model.DripSettings{
		Enabled:          true,
		AccountID:        "acc-1",
		FirstDelayValue:  30,
		FirstDelayUnit:   model.UnitMinutes,
		SecondDelayValue: 3,
		SecondDelayUnit:  model.UnitDays,
		FirstText:        "thanks for {document}",
		FirstImages:      []string{"img"},
		SecondText:       "checking in",
	}
	if err := repo.PutDrip(ctx, &d); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := repo.GetDrip(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Enabled || got.AccountID != "acc-1" || got.FirstText != "thanks for {document}" {
		t.Errorf("got %+v", got)
	}
	if len(got.FirstImages) != 1 {
		t.Errorf("first images = %v", got.FirstImages)
	}

	// The settings row is a singleton; a second put overwrites it.
	d.Enabled = false
	if err := repo.PutDrip(ctx, &d); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, err = repo.GetDrip(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Enabled {
		t.Errorf("overwrite not applied")
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	settings := NewSettingsRepo(s)
	messages := NewMessageRepo(s)
	ctx := context.Background()

	if err := settings.PutSender(ctx, &model.SenderSettings{
		AccountID: "acc-1", WorkStart: "09:00", WorkEnd: "17:00", Timezone: "UTC",
	}); err != nil {
		t.Fatalf("put sender: %v", err)
	}

	mine := newMessage("acc-1", model.Scheduled)
	other := newMessage("acc-2", model.Scheduled)
	for _, m := range []*model.ScheduledMessage{mine, other} {
		if err := messages.Create(ctx, m); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	if err := settings.DeleteAccount(ctx, "acc-1"); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	// Settings fall back to defaults, messages and history are gone.
	got, err := settings.GetSender(ctx, "acc-1")
	if err != nil {
		t.Fatalf("get sender: %v", err)
	}
	if *got != model.DefaultSenderSettings("acc-1") {
		t.Errorf("settings row survived: %+v", got)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE account_id = 'acc-1'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("%d messages survived account deletion", n)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM message_history WHERE message_id = ?`, mine.ID).Scan(&n); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if n != 0 {
		t.Errorf("%d history rows survived account deletion", n)
	}

	// The other account is untouched.
	list, err := messages.List(ctx, MessageFilter{AccountID: "acc-2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("other account lost messages: %v", list)
	}
}
