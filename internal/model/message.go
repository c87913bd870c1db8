package model

import "time"

// Recipient is the denormalized contact snapshot embedded in every
// scheduled message. Drip messages may target people that never existed
// in the contact store, so the message carries everything the renderer
// needs at send time.
type Recipient struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Birthday string `json:"birthday"`
}

type StatusChange struct {
	Status     Status    `json:"status"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type ScheduledMessage struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	ContactID *int64    `json:"contactId,omitempty"`
	Recipient Recipient `json:"recipient"`

	// Template content is snapshotted here at schedule time; editing the
	// template afterwards never changes a queued message.
	TemplateID *int64   `json:"templateId,omitempty"`
	Text       string   `json:"text"`
	Images     []string `json:"images,omitempty"`

	NotBefore *time.Time `json:"notBefore,omitempty"`
	Status    Status     `json:"status"`

	// MessageNumber pairs drip messages belonging to one trigger:
	// 1 and 2 for drip, 0 for manually scheduled messages.
	MessageNumber int     `json:"messageNumber"`
	TriggerID     *string `json:"triggerId,omitempty"`
	// FollowupDelaySeconds is captured on message number 2 at
	// materialization time; its NotBefore becomes
	// firstSentAt + this delay once the first message is sent.
	FollowupDelaySeconds int `json:"followupDelaySeconds,omitempty"`

	ProviderMessageID *string    `json:"providerMessageId,omitempty"`
	LastError         *string    `json:"lastError,omitempty"`
	SentAt            *time.Time `json:"sentAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	History []StatusChange `json:"history,omitempty"`
}

// MessageStats aggregates counts for the dashboard.
type MessageStats struct {
	ByStatus        map[Status]int `json:"byStatus"`
	ByMessageNumber map[int]int    `json:"byMessageNumber"`
	Total           int            `json:"total"`
}
