package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the embedded store backing every repository. One handle is
// shared; sqlite serializes writers itself and _busy_timeout keeps
// concurrent ticks from failing with SQLITE_BUSY.
type SQLite struct {
	db *sql.DB
}

func Open(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_loc=UTC", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite storage: %w", err)
	}
	// A single connection avoids table-lock contention between the
	// dispatch tick and API writes.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// One repo per concern, all sharing the embedded handle.

type MessageRepo struct{ db *sql.DB }

func NewMessageRepo(s *SQLite) *MessageRepo { return &MessageRepo{db: s.db} }

type ContactRepo struct{ db *sql.DB }

func NewContactRepo(s *SQLite) *ContactRepo { return &ContactRepo{db: s.db} }

type TemplateRepo struct{ db *sql.DB }

func NewTemplateRepo(s *SQLite) *TemplateRepo { return &TemplateRepo{db: s.db} }

type SettingsRepo struct{ db *sql.DB }

func NewSettingsRepo(s *SQLite) *SettingsRepo { return &SettingsRepo{db: s.db} }

func (s *SQLite) migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL DEFAULT '',
		surname    TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL DEFAULT '',
		birthday   TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL,
		source     TEXT NOT NULL DEFAULT 'manual',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_phone ON contacts(phone)`,

	`CREATE TABLE IF NOT EXISTS templates (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		text       TEXT NOT NULL DEFAULT '',
		images     TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sender_settings (
		account_id       TEXT PRIMARY KEY,
		work_start       TEXT NOT NULL DEFAULT '09:00',
		work_end         TEXT NOT NULL DEFAULT '18:00',
		interval_seconds INTEGER NOT NULL DEFAULT 30,
		enabled          INTEGER NOT NULL DEFAULT 1,
		timezone         TEXT NOT NULL DEFAULT 'UTC'
	)`,

	`CREATE TABLE IF NOT EXISTS drip_settings (
		id                 INTEGER PRIMARY KEY CHECK (id = 1),
		enabled            INTEGER NOT NULL DEFAULT 0,
		account_id         TEXT NOT NULL DEFAULT '',
		first_delay_value  INTEGER NOT NULL DEFAULT 1,
		first_delay_unit   TEXT NOT NULL DEFAULT 'days',
		second_delay_value INTEGER NOT NULL DEFAULT 7,
		second_delay_unit  TEXT NOT NULL DEFAULT 'days',
		first_text         TEXT NOT NULL DEFAULT '',
		first_images       TEXT NOT NULL DEFAULT '[]',
		second_text        TEXT NOT NULL DEFAULT '',
		second_images      TEXT NOT NULL DEFAULT '[]'
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id                     TEXT PRIMARY KEY,
		account_id             TEXT NOT NULL,
		contact_id             INTEGER,
		recipient_name         TEXT NOT NULL DEFAULT '',
		recipient_surname      TEXT NOT NULL DEFAULT '',
		recipient_phone        TEXT NOT NULL,
		recipient_email        TEXT NOT NULL DEFAULT '',
		recipient_birthday     TEXT NOT NULL DEFAULT '',
		template_id            INTEGER,
		content_text           TEXT NOT NULL,
		content_images         TEXT NOT NULL DEFAULT '[]',
		not_before             TIMESTAMP,
		status                 TEXT NOT NULL,
		message_number         INTEGER NOT NULL DEFAULT 0,
		trigger_id             TEXT,
		followup_delay_seconds INTEGER NOT NULL DEFAULT 0,
		provider_message_id    TEXT,
		last_error             TEXT,
		sent_at                TIMESTAMP,
		created_at             TIMESTAMP NOT NULL,
		updated_at             TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_trigger
		ON messages(trigger_id, message_number) WHERE trigger_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_messages_account_status ON messages(account_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_provider ON messages(provider_message_id)`,

	`CREATE TABLE IF NOT EXISTS message_history (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id  TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		status      TEXT NOT NULL,
		note        TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_message ON message_history(message_id)`,
}

func marshalImages(images []string) string {
	if len(images) == 0 {
		return "[]"
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalImages(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var images []string
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		return nil
	}
	return images
}
