package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/leadwire/outreach/internal/model"
)

func (r *SettingsRepo) GetSender(ctx context.Context, accountID string) (*model.SenderSettings, error) {
	var (
		s       model.SenderSettings
		enabled int
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, work_start, work_end, interval_seconds, enabled, timezone
		FROM sender_settings WHERE account_id = ?
	`, accountID).Scan(&s.AccountID, &s.WorkStart, &s.WorkEnd, &s.IntervalSeconds, &enabled, &s.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		def := model.DefaultSenderSettings(accountID)
		return &def, nil
	}
	if err != nil {
		return nil, persistence(err)
	}
	s.Enabled = enabled != 0
	return &s, nil
}

func (r *SettingsRepo) PutSender(ctx context.Context, s *model.SenderSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sender_settings (account_id, work_start, work_end, interval_seconds, enabled, timezone)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			work_start = excluded.work_start,
			work_end = excluded.work_end,
			interval_seconds = excluded.interval_seconds,
			enabled = excluded.enabled,
			timezone = excluded.timezone
	`, s.AccountID, s.WorkStart, s.WorkEnd, s.IntervalSeconds, boolInt(s.Enabled), s.Timezone)
	return persistence(err)
}

// DeleteAccount removes the settings row together with every message
// the account owns. The cascade is spelled out here instead of relying
// on engine pragmas.
func (r *SettingsRepo) DeleteAccount(ctx context.Context, accountID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM message_history WHERE message_id IN
			(SELECT id FROM messages WHERE account_id = ?)
	`, accountID); err != nil {
		return persistence(err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE account_id = ?`, accountID); err != nil {
		return persistence(err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sender_settings WHERE account_id = ?`, accountID); err != nil {
		return persistence(err)
	}
	return persistence(tx.Commit())
}

func (r *SettingsRepo) GetDrip(ctx context.Context) (*model.DripSettings, error) {
	var (
		d            model.DripSettings
		enabled      int
		firstImages  string
		secondImages string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT enabled, account_id,
			first_delay_value, first_delay_unit, second_delay_value, second_delay_unit,
			first_text, first_images, second_text, second_images
		FROM drip_settings WHERE id = 1
	`).Scan(&enabled, &d.AccountID,
		&d.FirstDelayValue, &d.FirstDelayUnit, &d.SecondDelayValue, &d.SecondDelayUnit,
		&d.FirstText, &firstImages, &d.SecondText, &secondImages)
	if errors.Is(err, sql.ErrNoRows) {
		def := model.DefaultDripSettings()
		return &def, nil
	}
	if err != nil {
		return nil, persistence(err)
	}
	d.Enabled = enabled != 0
	d.FirstImages = unmarshalImages(firstImages)
	d.SecondImages = unmarshalImages(secondImages)
	return &d, nil
}

func (r *SettingsRepo) PutDrip(ctx context.Context, d *model.DripSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drip_settings (
			id, enabled, account_id,
			first_delay_value, first_delay_unit, second_delay_value, second_delay_unit,
			first_text, first_images, second_text, second_images
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			account_id = excluded.account_id,
			first_delay_value = excluded.first_delay_value,
			first_delay_unit = excluded.first_delay_unit,
			second_delay_value = excluded.second_delay_value,
			second_delay_unit = excluded.second_delay_unit,
			first_text = excluded.first_text,
			first_images = excluded.first_images,
			second_text = excluded.second_text,
			second_images = excluded.second_images
	`, boolInt(d.Enabled), d.AccountID,
		d.FirstDelayValue, d.FirstDelayUnit, d.SecondDelayValue, d.SecondDelayUnit,
		d.FirstText, marshalImages(d.FirstImages), d.SecondText, marshalImages(d.SecondImages))
	return persistence(err)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
