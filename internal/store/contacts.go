package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/model"
)

const contactColumns = `id, name, surname, email, birthday, phone, source, created_at, updated_at`

func (r *ContactRepo) Create(ctx context.Context, c *model.Contact) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (name, surname, email, birthday, phone, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Name, c.Surname, c.Email, c.Birthday, c.Phone, c.Source, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return persistence(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return persistence(err)
	}
	c.ID = id
	return nil
}

func (r *ContactRepo) CreateBatch(ctx context.Context, cs []model.Contact) error {
	if len(cs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contacts (name, surname, email, birthday, phone, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return persistence(err)
	}
	defer stmt.Close()

	for _, c := range cs {
		if _, err := stmt.ExecContext(ctx,
			c.Name, c.Surname, c.Email, c.Birthday, c.Phone, c.Source, c.CreatedAt, c.UpdatedAt,
		); err != nil {
			return persistence(err)
		}
	}
	return persistence(tx.Commit())
}

func (r *ContactRepo) UpsertByPhone(ctx context.Context, c *model.Contact) error {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM contacts WHERE phone = ? LIMIT 1`, c.Phone).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return r.Create(ctx, c)
	}
	if err != nil {
		return persistence(err)
	}

	c.ID = id
	_, err = r.db.ExecContext(ctx, `
		UPDATE contacts SET name = ?, surname = ?, email = ?, birthday = ?, source = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, c.Surname, c.Email, c.Birthday, c.Source, c.UpdatedAt, id)
	return persistence(err)
}

func (r *ContactRepo) Update(ctx context.Context, c *model.Contact) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts SET name = ?, surname = ?, email = ?, birthday = ?, phone = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, c.Surname, c.Email, c.Birthday, c.Phone, c.UpdatedAt, c.ID)
	if err != nil {
		return persistence(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "contact %d not found", c.ID)
	}
	return nil
}

func (r *ContactRepo) Get(ctx context.Context, id int64) (*model.Contact, error) {
	var c model.Contact
	err := r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Surname, &c.Email, &c.Birthday, &c.Phone, &c.Source, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "contact %d not found", id)
	}
	if err != nil {
		return nil, persistence(err)
	}
	return &c, nil
}

func (r *ContactRepo) Search(ctx context.Context, f ContactFilter) ([]model.Contact, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	where, args := contactMatch(f.Query)

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts`+where, args...).Scan(&total); err != nil {
		return nil, 0, persistence(err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts`+where+` ORDER BY id ASC LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, persistence(err)
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Surname, &c.Email, &c.Birthday,
			&c.Phone, &c.Source, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, persistence(err)
		}
		out = append(out, c)
	}
	return out, total, persistence(rows.Err())
}

func (r *ContactRepo) IDsMatching(ctx context.Context, query string) ([]int64, error) {
	where, args := contactMatch(query)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM contacts`+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, persistence(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, persistence(err)
		}
		ids = append(ids, id)
	}
	return ids, persistence(rows.Err())
}

func (r *ContactRepo) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id); err != nil {
			return persistence(err)
		}
	}
	return persistence(tx.Commit())
}

// contactMatch builds the case-insensitive substring filter shared by
// search and id retrieval. LIKE is case-insensitive for ASCII in
// sqlite, which matches the source behavior.
func contactMatch(query string) (string, []any) {
	if query == "" {
		return "", nil
	}
	pattern := "%" + query + "%"
	return ` WHERE name LIKE ? OR surname LIKE ? OR email LIKE ? OR phone LIKE ?`,
		[]any{pattern, pattern, pattern, pattern}
}
