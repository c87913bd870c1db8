package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/model"
)

const messageColumns = `id, account_id, contact_id,
	recipient_name, recipient_surname, recipient_phone, recipient_email, recipient_birthday,
	template_id, content_text, content_images,
	not_before, status, message_number, trigger_id, followup_delay_seconds,
	provider_message_id, last_error, sent_at, created_at, updated_at`

func (r *MessageRepo) Create(ctx context.Context, m *model.ScheduledMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertMessage(ctx, tx, m); err != nil {
		return err
	}
	if err := appendHistory(ctx, tx, m.ID, m.Status, "", m.CreatedAt); err != nil {
		return err
	}
	return persistence(tx.Commit())
}

func (r *MessageRepo) CreatePair(ctx context.Context, first, second *model.ScheduledMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range []*model.ScheduledMessage{first, second} {
		if err := insertMessage(ctx, tx, m); err != nil {
			return err
		}
		if err := appendHistory(ctx, tx, m.ID, m.Status, "", m.CreatedAt); err != nil {
			return err
		}
	}
	return persistence(tx.Commit())
}

func insertMessage(ctx context.Context, tx *sql.Tx, m *model.ScheduledMessage) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (
			id, account_id, contact_id,
			recipient_name, recipient_surname, recipient_phone, recipient_email, recipient_birthday,
			template_id, content_text, content_images,
			not_before, status, message_number, trigger_id, followup_delay_seconds,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.AccountID, m.ContactID,
		m.Recipient.Name, m.Recipient.Surname, m.Recipient.Phone, m.Recipient.Email, m.Recipient.Birthday,
		m.TemplateID, m.Text, marshalImages(m.Images),
		nullTime(m.NotBefore), string(m.Status), m.MessageNumber, m.TriggerID, m.FollowupDelaySeconds,
		m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return apperr.Wrap(apperr.KindConflict, err, "trigger already materialized")
		}
		return persistence(err)
	}
	return nil
}

func appendHistory(ctx context.Context, tx *sql.Tx, messageID string, status model.Status, note string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO message_history (message_id, status, note, occurred_at)
		VALUES (?, ?, ?, ?)
	`, messageID, string(status), note, at.UTC())
	return persistence(err)
}

func (r *MessageRepo) Get(ctx context.Context, id string) (*model.ScheduledMessage, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)

	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "message %s not found", id)
	}
	if err != nil {
		return nil, persistence(err)
	}

	history, err := r.history(ctx, id)
	if err != nil {
		return nil, err
	}
	m.History = history
	return m, nil
}

func (r *MessageRepo) GetByProviderMessageID(ctx context.Context, providerID string) (*model.ScheduledMessage, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE provider_message_id = ?`, providerID)

	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "no message for provider id %s", providerID)
	}
	if err != nil {
		return nil, persistence(err)
	}
	return m, nil
}

func (r *MessageRepo) List(ctx context.Context, f MessageFilter) ([]model.ScheduledMessage, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE 1=1`
	args := []any{}
	if f.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence(err)
	}
	defer rows.Close()

	var out []model.ScheduledMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, persistence(err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(err)
	}

	for i := range out {
		history, err := r.history(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].History = history
	}
	return out, nil
}

func (r *MessageRepo) NextEligible(ctx context.Context, accountID string, now time.Time) (*model.ScheduledMessage, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE account_id = ?
		  AND status = ?
		  AND (not_before IS NULL OR not_before <= ?)
		ORDER BY COALESCE(not_before, created_at) ASC, created_at ASC
		LIMIT 1
	`, accountID, string(model.Scheduled), now.UTC())

	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistence(err)
	}
	return m, nil
}

func (r *MessageRepo) CountSending(ctx context.Context, accountID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE account_id = ? AND status = ?`,
		accountID, string(model.Sending)).Scan(&n)
	return n, persistence(err)
}

func (r *MessageRepo) LastSentAt(ctx context.Context, accountID string) (*time.Time, error) {
	var t sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(sent_at) FROM messages WHERE account_id = ? AND sent_at IS NOT NULL`,
		accountID).Scan(&t)
	if err != nil {
		return nil, persistence(err)
	}
	if !t.Valid {
		return nil, nil
	}
	at := t.Time
	return &at, nil
}

func (r *MessageRepo) UpdateStatusFrom(ctx context.Context, id string, from, to model.Status, note string, at time.Time) (bool, error) {
	at = at.UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, persistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE messages SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), at, id, string(from))
	if err != nil {
		return false, persistence(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistence(err)
	}
	if n == 0 {
		return false, nil
	}

	if err := appendHistory(ctx, tx, id, to, note, at); err != nil {
		return false, err
	}
	return true, persistence(tx.Commit())
}

func (r *MessageRepo) MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) error {
	at = at.UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE messages
		SET status = ?, provider_message_id = ?, sent_at = ?, updated_at = ?
		WHERE id = ?
	`, string(model.Sent), providerMessageID, at, at, id)
	if err != nil {
		return persistence(err)
	}
	if err := appendHistory(ctx, tx, id, model.Sent, "", at); err != nil {
		return err
	}
	return persistence(tx.Commit())
}

func (r *MessageRepo) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	at = at.UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE messages SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, string(model.Failed), reason, at, id)
	if err != nil {
		return persistence(err)
	}
	if err := appendHistory(ctx, tx, id, model.Failed, reason, at); err != nil {
		return err
	}
	return persistence(tx.Commit())
}

func (r *MessageRepo) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM messages
		WHERE status = ? AND not_before IS NOT NULL AND not_before <= ?
	`, string(model.PendingFirst), now.UTC())
	if err != nil {
		return 0, persistence(err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, id := range ids {
		ok, err := r.UpdateStatusFrom(ctx, id, model.PendingFirst, model.Scheduled, "trigger delay elapsed", now)
		if err != nil {
			return promoted, err
		}
		if ok {
			promoted++
		}
	}
	return promoted, nil
}

func (r *MessageRepo) ReleaseFollowup(ctx context.Context, triggerID string, firstSentAt time.Time) error {
	firstSentAt = firstSentAt.UTC()

	var (
		id           string
		delaySeconds int
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, followup_delay_seconds FROM messages
		WHERE trigger_id = ? AND message_number = 2 AND status = ?
	`, triggerID, string(model.ScheduledFuture)).Scan(&id, &delaySeconds)
	if errors.Is(err, sql.ErrNoRows) {
		// Already released or the pair was canceled.
		return nil
	}
	if err != nil {
		return persistence(err)
	}

	notBefore := firstSentAt.Add(time.Duration(delaySeconds) * time.Second)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE messages SET status = ?, not_before = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(model.Scheduled), notBefore, firstSentAt, id, string(model.ScheduledFuture))
	if err != nil {
		return persistence(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence(tx.Commit())
	}
	if err := appendHistory(ctx, tx, id, model.Scheduled, "first message sent", firstSentAt); err != nil {
		return err
	}
	return persistence(tx.Commit())
}

// ReconcileFollowups releases every pinned second message whose first
// message already went out. The inline release after a send normally
// handles this; reconciliation catches pairs stranded by a crash
// between the send and the release, or by a release that errored.
func (r *MessageRepo) ReconcileFollowups(ctx context.Context) (int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m2.trigger_id, m1.sent_at
		FROM messages m2
		JOIN messages m1
		  ON m1.trigger_id = m2.trigger_id AND m1.message_number = 1
		WHERE m2.message_number = 2
		  AND m2.status = ?
		  AND m1.sent_at IS NOT NULL
	`, string(model.ScheduledFuture))
	if err != nil {
		return 0, persistence(err)
	}

	type stranded struct {
		triggerID string
		sentAt    time.Time
	}
	var found []stranded
	for rows.Next() {
		var s stranded
		if err := rows.Scan(&s.triggerID, &s.sentAt); err != nil {
			rows.Close()
			return 0, persistence(err)
		}
		found = append(found, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, persistence(err)
	}

	for _, s := range found {
		if err := r.ReleaseFollowup(ctx, s.triggerID, s.sentAt); err != nil {
			return 0, err
		}
	}
	return len(found), nil
}

// CancelUnreleasedFollowup cancels the pinned second message of a
// trigger's pair. Called when the first message is canceled, since
// nothing would ever release the sibling afterwards. Reports false when
// the sibling was already released or canceled.
func (r *MessageRepo) CancelUnreleasedFollowup(ctx context.Context, triggerID string, at time.Time) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM messages
		WHERE trigger_id = ? AND message_number = 2 AND status = ?
	`, triggerID, string(model.ScheduledFuture)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, persistence(err)
	}
	return r.UpdateStatusFrom(ctx, id, model.ScheduledFuture, model.Canceled, "first message canceled", at)
}

func (r *MessageRepo) FailInterrupted(ctx context.Context, at time.Time) (int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM messages WHERE status = ?`, string(model.Sending))
	if err != nil {
		return 0, persistence(err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := r.MarkFailed(ctx, id, "send interrupted by restart", at); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (r *MessageRepo) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		// History rows go with the message via ON DELETE CASCADE.
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
			return persistence(err)
		}
	}
	return persistence(tx.Commit())
}

func (r *MessageRepo) Stats(ctx context.Context, from, to time.Time) (*model.MessageStats, error) {
	stats := &model.MessageStats{
		ByStatus:        map[model.Status]int{},
		ByMessageNumber: map[int]int{},
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, message_number, COUNT(*)
		FROM messages
		WHERE created_at >= ? AND created_at < ?
		GROUP BY status, message_number
	`, from, to)
	if err != nil {
		return nil, persistence(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			number int
			count  int
		)
		if err := rows.Scan(&status, &number, &count); err != nil {
			return nil, persistence(err)
		}
		stats.ByStatus[model.Status(status)] += count
		stats.ByMessageNumber[number] += count
		stats.Total += count
	}
	return stats, persistence(rows.Err())
}

func (r *MessageRepo) history(ctx context.Context, messageID string) ([]model.StatusChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, note, occurred_at FROM message_history
		WHERE message_id = ?
		ORDER BY occurred_at ASC, id ASC
	`, messageID)
	if err != nil {
		return nil, persistence(err)
	}
	defer rows.Close()

	var out []model.StatusChange
	for rows.Next() {
		var (
			status string
			change model.StatusChange
		)
		if err := rows.Scan(&status, &change.Note, &change.OccurredAt); err != nil {
			return nil, persistence(err)
		}
		change.Status = model.Status(status)
		out = append(out, change)
	}
	return out, persistence(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.ScheduledMessage, error) {
	var (
		m          model.ScheduledMessage
		contactID  sql.NullInt64
		templateID sql.NullInt64
		images     string
		notBefore  sql.NullTime
		status     string
		triggerID  sql.NullString
		providerID sql.NullString
		lastErr    sql.NullString
		sentAt     sql.NullTime
	)

	err := row.Scan(
		&m.ID, &m.AccountID, &contactID,
		&m.Recipient.Name, &m.Recipient.Surname, &m.Recipient.Phone,
		&m.Recipient.Email, &m.Recipient.Birthday,
		&templateID, &m.Text, &images,
		&notBefore, &status, &m.MessageNumber, &triggerID, &m.FollowupDelaySeconds,
		&providerID, &lastErr, &sentAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Status = model.Status(status)
	m.Images = unmarshalImages(images)

	if contactID.Valid {
		v := contactID.Int64
		m.ContactID = &v
	}
	if templateID.Valid {
		v := templateID.Int64
		m.TemplateID = &v
	}
	if notBefore.Valid {
		t := notBefore.Time
		m.NotBefore = &t
	}
	if triggerID.Valid {
		v := triggerID.String
		m.TriggerID = &v
	}
	if providerID.Valid {
		v := providerID.String
		m.ProviderMessageID = &v
	}
	if lastErr.Valid {
		v := lastErr.String
		m.LastError = &v
	}
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}
	return &m, nil
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, persistence(err)
		}
		ids = append(ids, id)
	}
	return ids, persistence(rows.Err())
}

// Timestamps are bound as text with their offset and compared lexically
// by sqlite, so everything persisted must be normalized to UTC first.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func persistence(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Wrap(apperr.KindPersistence, err, "store")
}
