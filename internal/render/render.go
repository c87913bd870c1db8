// Package render performs placeholder substitution on message bodies.
// Substitution happens at send time so {date} and {time} reflect the
// actual send moment, not the moment the message was scheduled.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/leadwire/outreach/internal/model"
)

// Render resolves every supported placeholder against the recipient
// snapshot and the given instant.
func Render(text string, r model.Recipient, now time.Time) string {
	replacer := strings.NewReplacer(
		"{name}", r.Name,
		"{surname}", r.Surname,
		"{phone}", r.Phone,
		"{email}", r.Email,
		"{birthday}", r.Birthday,
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("15:04"),
		"{datetime}", now.Format("2006-01-02 15:04"),
		"{day}", fmt.Sprintf("%02d", now.Day()),
		"{month}", fmt.Sprintf("%02d", int(now.Month())),
		"{year}", fmt.Sprintf("%d", now.Year()),
	)
	return replacer.Replace(text)
}

// RenderSale resolves the trigger-derived placeholders of drip
// templates. Applied once at materialization; the recipient and date
// tokens stay in the text for Render to fill at send time.
func RenderSale(text, document string, amount float64) string {
	return strings.NewReplacer(
		"{document}", document,
		"{amount}", fmt.Sprintf("%.2f", amount),
	).Replace(text)
}
