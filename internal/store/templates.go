package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/model"
)

func (r *TemplateRepo) Create(ctx context.Context, t *model.Template) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (name, text, images, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.Name, t.Text, marshalImages(t.Images), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return persistence(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return persistence(err)
	}
	t.ID = id
	return nil
}

func (r *TemplateRepo) Update(ctx context.Context, t *model.Template) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE templates SET name = ?, text = ?, images = ?, updated_at = ?
		WHERE id = ?
	`, t.Name, t.Text, marshalImages(t.Images), t.UpdatedAt, t.ID)
	if err != nil {
		return persistence(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "template %d not found", t.ID)
	}
	return nil
}

func (r *TemplateRepo) Get(ctx context.Context, id int64) (*model.Template, error) {
	var (
		t      model.Template
		images string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, text, images, created_at, updated_at FROM templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Text, &images, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "template %d not found", id)
	}
	if err != nil {
		return nil, persistence(err)
	}
	t.Images = unmarshalImages(images)
	return &t, nil
}

func (r *TemplateRepo) List(ctx context.Context) ([]model.Template, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, text, images, created_at, updated_at FROM templates ORDER BY id ASC`)
	if err != nil {
		return nil, persistence(err)
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		var (
			t      model.Template
			images string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Text, &images, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, persistence(err)
		}
		t.Images = unmarshalImages(images)
		out = append(out, t)
	}
	return out, persistence(rows.Err())
}

func (r *TemplateRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return persistence(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "template %d not found", id)
	}
	return nil
}
