// Package schedule admits messages into the durable queue and owns the
// pre-send part of their lifecycle: creation, cancellation, deletion.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/model"
	"github.com/leadwire/outreach/internal/store"
)

type Service struct {
	messages  store.MessageStore
	contacts  store.ContactStore
	templates store.TemplateStore

	now func() time.Time
}

func NewService(messages store.MessageStore, contacts store.ContactStore, templates store.TemplateStore) *Service {
	return &Service{
		messages:  messages,
		contacts:  contacts,
		templates: templates,
		now:       time.Now,
	}
}

// Schedule queues one message per contact with the template's content
// snapshotted in. notBefore nil means eligible immediately.
func (s *Service) Schedule(ctx context.Context, accountID string, contactIDs []int64, templateID int64, notBefore *time.Time) ([]model.ScheduledMessage, error) {
	if accountID == "" {
		return nil, apperr.New(apperr.KindValidation, "accountId is required")
	}
	if len(contactIDs) == 0 {
		return nil, apperr.New(apperr.KindValidation, "at least one contact is required")
	}

	tmpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	nb := notBefore
	if nb == nil {
		nb = &now
	}

	var out []model.ScheduledMessage
	for _, contactID := range contactIDs {
		contact, err := s.contacts.Get(ctx, contactID)
		if err != nil {
			return nil, err
		}

		cid := contactID
		tid := templateID
		m := model.ScheduledMessage{
			ID:        uuid.NewString(),
			AccountID: accountID,
			ContactID: &cid,
			Recipient: model.Recipient{
				Name:     contact.Name,
				Surname:  contact.Surname,
				Phone:    contact.Phone,
				Email:    contact.Email,
				Birthday: contact.Birthday,
			},
			TemplateID: &tid,
			Text:       tmpl.Text,
			Images:     tmpl.Images,
			NotBefore:  nb,
			Status:     model.Scheduled,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.messages.Create(ctx, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	slog.Info("messages scheduled",
		"account", accountID, "count", len(out), "template", templateID)
	return out, nil
}

// Cancel moves a message to canceled. Legal only before dispatch picks
// it up; anything else is a state conflict, reported rather than
// silently ignored.
func (s *Service) Cancel(ctx context.Context, id string) error {
	m, err := s.messages.Get(ctx, id)
	if err != nil {
		return err
	}
	if !m.Status.Cancelable() {
		return apperr.New(apperr.KindConflict,
			"cannot cancel message %s in status %s", id, m.Status)
	}

	now := s.now().UTC()
	ok, err := s.messages.UpdateStatusFrom(ctx, id, m.Status, model.Canceled, "canceled by user", now)
	if err != nil {
		return err
	}
	if !ok {
		// Raced with the dispatcher between read and write.
		return apperr.New(apperr.KindConflict,
			"message %s changed status during cancel", id)
	}

	// Canceling an unsent first drip message would otherwise strand its
	// pinned sibling: nothing releases it anymore.
	if m.MessageNumber == 1 && m.TriggerID != nil {
		canceled, err := s.messages.CancelUnreleasedFollowup(ctx, *m.TriggerID, now)
		if err != nil {
			return err
		}
		if canceled {
			slog.Info("pinned followup canceled with its first message",
				"message", id, "trigger", *m.TriggerID)
		}
	}
	return nil
}

// Delete removes messages and their history. SENDING messages are
// untouchable until the transport resolves them.
func (s *Service) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		m, err := s.messages.Get(ctx, id)
		if err != nil {
			return err
		}
		if m.Status == model.Sending {
			return apperr.New(apperr.KindConflict,
				"cannot delete message %s while sending", id)
		}
	}
	return s.messages.Delete(ctx, ids)
}

func (s *Service) List(ctx context.Context, f store.MessageFilter) ([]model.ScheduledMessage, error) {
	return s.messages.List(ctx, f)
}

func (s *Service) Stats(ctx context.Context, from, to time.Time) (*model.MessageStats, error) {
	if to.IsZero() {
		to = s.now().UTC().Add(24 * time.Hour)
	}
	return s.messages.Stats(ctx, from, to)
}
