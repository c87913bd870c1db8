// Package importer validates raw contact records coming from file
// imports. Files can hold tens of thousands of rows, so validation runs
// in batches and yields between them to keep the rest of the process
// responsive.
package importer

import (
	"context"
	"runtime"
	"strings"
	"time"

	"github.com/leadwire/outreach/internal/model"
)

// Record is one loosely-typed row from an imported file.
type Record struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Birthday string `json:"birthday"`
	Phone    string `json:"phone"`
}

// Skipped pairs a rejected record with a human-readable reason.
type Skipped struct {
	Record Record `json:"record"`
	Reason string `json:"reason"`
}

type Result struct {
	Accepted []model.Contact `json:"accepted"`
	Skipped  []Skipped       `json:"skipped"`
}

type Importer struct {
	batchSize int
	now       func() time.Time
}

func New(batchSize int) *Importer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Importer{batchSize: batchSize, now: time.Now}
}

// Validate partitions records into accepted contacts and skipped rows.
// A record is skipped when it has no phone number or when an earlier
// record in the same batch already claimed the same normalized phone.
// Dedup is per batch only; the contact store itself allows duplicates.
func (i *Importer) Validate(ctx context.Context, records []Record) (*Result, error) {
	res := &Result{}
	seen := make(map[string]struct{}, len(records))
	now := i.now().UTC()

	for start := 0; start < len(records); start += i.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + i.batchSize
		if end > len(records) {
			end = len(records)
		}

		for _, rec := range records[start:end] {
			phone := NormalizePhone(rec.Phone)
			if phone == "" {
				res.Skipped = append(res.Skipped, Skipped{Record: rec, Reason: "missing phone number"})
				continue
			}
			if _, dup := seen[phone]; dup {
				res.Skipped = append(res.Skipped, Skipped{Record: rec, Reason: "duplicate phone number in batch"})
				continue
			}
			seen[phone] = struct{}{}

			res.Accepted = append(res.Accepted, model.Contact{
				Name:      strings.TrimSpace(rec.Name),
				Surname:   strings.TrimSpace(rec.Surname),
				Email:     strings.TrimSpace(rec.Email),
				Birthday:  strings.TrimSpace(rec.Birthday),
				Phone:     phone,
				Source:    model.SourceImport,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}

		// Yield between batches so a huge file never monopolizes the
		// scheduler.
		runtime.Gosched()
	}

	return res, nil
}

// NormalizePhone strips everything but digits. "+36 (1) 234-5678"
// becomes "3612345678".
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
