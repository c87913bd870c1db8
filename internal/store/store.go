package store

import (
	"context"
	"time"

	"github.com/leadwire/outreach/internal/model"
)

type MessageFilter struct {
	AccountID string
	Status    model.Status
	Limit     int
	Offset    int
}

type MessageStore interface {
	// Create persists a message together with its initial history entry
	// in one transaction.
	Create(ctx context.Context, m *model.ScheduledMessage) error
	// CreatePair persists a drip pair atomically; a duplicate trigger id
	// yields a conflict error and writes nothing.
	CreatePair(ctx context.Context, first, second *model.ScheduledMessage) error

	Get(ctx context.Context, id string) (*model.ScheduledMessage, error)
	GetByProviderMessageID(ctx context.Context, providerID string) (*model.ScheduledMessage, error)
	List(ctx context.Context, f MessageFilter) ([]model.ScheduledMessage, error)

	// NextEligible returns the oldest scheduled message for the account
	// whose notBefore has elapsed, or nil. Working hours are the
	// dispatcher's concern.
	NextEligible(ctx context.Context, accountID string, now time.Time) (*model.ScheduledMessage, error)
	CountSending(ctx context.Context, accountID string) (int, error)
	LastSentAt(ctx context.Context, accountID string) (*time.Time, error)

	// UpdateStatusFrom atomically moves a message from one status to
	// another and appends a history entry. It reports false without
	// writing anything when the message is no longer in the expected
	// status, which is how concurrent ticks avoid claiming the same row.
	UpdateStatusFrom(ctx context.Context, id string, from, to model.Status, note string, at time.Time) (bool, error)

	MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error

	// PromoteDue flips pending_first_message rows whose delay has
	// elapsed to scheduled.
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	// ReleaseFollowup makes the second message of a trigger's pair
	// eligible: scheduled_future -> scheduled with
	// notBefore = firstSentAt + the delay captured on the row.
	ReleaseFollowup(ctx context.Context, triggerID string, firstSentAt time.Time) error
	// ReconcileFollowups releases scheduled_future rows whose first
	// sibling is already sent, covering a crash between the send and
	// the inline release.
	ReconcileFollowups(ctx context.Context) (int, error)
	// CancelUnreleasedFollowup cancels a trigger's still-pinned second
	// message after its first message was canceled.
	CancelUnreleasedFollowup(ctx context.Context, triggerID string, at time.Time) (bool, error)
	// FailInterrupted marks messages stuck in sending from a previous
	// process run as failed. Called once at startup.
	FailInterrupted(ctx context.Context, at time.Time) (int, error)

	Delete(ctx context.Context, ids []string) error
	Stats(ctx context.Context, from, to time.Time) (*model.MessageStats, error)
}

type ContactFilter struct {
	// Query is matched case-insensitively against name, surname, email
	// and phone.
	Query  string
	Limit  int
	Offset int
}

type ContactStore interface {
	Create(ctx context.Context, c *model.Contact) error
	CreateBatch(ctx context.Context, cs []model.Contact) error
	// UpsertByPhone inserts the contact or refreshes an existing row
	// with the same phone number.
	UpsertByPhone(ctx context.Context, c *model.Contact) error
	Update(ctx context.Context, c *model.Contact) error
	Get(ctx context.Context, id int64) (*model.Contact, error)
	Search(ctx context.Context, f ContactFilter) ([]model.Contact, int, error)
	// IDsMatching supports select-all-across-pages.
	IDsMatching(ctx context.Context, query string) ([]int64, error)
	Delete(ctx context.Context, ids []int64) error
}

type TemplateStore interface {
	Create(ctx context.Context, t *model.Template) error
	Update(ctx context.Context, t *model.Template) error
	Get(ctx context.Context, id int64) (*model.Template, error)
	List(ctx context.Context) ([]model.Template, error)
	Delete(ctx context.Context, id int64) error
}

type SettingsStore interface {
	// GetSender returns stored settings or defaults for an unseen
	// account.
	GetSender(ctx context.Context, accountID string) (*model.SenderSettings, error)
	PutSender(ctx context.Context, s *model.SenderSettings) error
	// DeleteAccount removes the settings row and every dependent message
	// in one transaction (explicit cascade).
	DeleteAccount(ctx context.Context, accountID string) error

	GetDrip(ctx context.Context) (*model.DripSettings, error)
	PutDrip(ctx context.Context, d *model.DripSettings) error
}
