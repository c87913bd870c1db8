package model

import (
	"fmt"
	"time"
)

// SenderSettings is the per-account throttle configuration. A row is
// created with defaults the first time an account is seen.
type SenderSettings struct {
	AccountID string `json:"accountId"`
	// WorkStart/WorkEnd are "HH:MM" times of day in Timezone. The window
	// is [WorkStart, WorkEnd); start after end means it wraps midnight,
	// equal values mean always open.
	WorkStart       string `json:"workStart"`
	WorkEnd         string `json:"workEnd"`
	IntervalSeconds int    `json:"intervalSeconds"`
	Enabled         bool   `json:"enabled"`
	Timezone        string `json:"timezone"`
}

func DefaultSenderSettings(accountID string) SenderSettings {
	return SenderSettings{
		AccountID:       accountID,
		WorkStart:       "09:00",
		WorkEnd:         "18:00",
		IntervalSeconds: 30,
		Enabled:         true,
		Timezone:        "UTC",
	}
}

func (s SenderSettings) MinInterval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

func (s SenderSettings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// WithinWindow reports whether now falls inside the working-hour window
// in the account's timezone.
func (s SenderSettings) WithinWindow(now time.Time) (bool, error) {
	loc, err := s.Location()
	if err != nil {
		return false, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}

	start, err := parseClock(s.WorkStart)
	if err != nil {
		return false, err
	}
	end, err := parseClock(s.WorkEnd)
	if err != nil {
		return false, err
	}
	if start == end {
		return true, nil
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if start < end {
		return minute >= start && minute < end, nil
	}
	// Window wraps midnight, e.g. 22:00-06:00.
	return minute >= start || minute < end, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Delay units accepted by drip settings.
const (
	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitDays    = "days"
)

// DripSettings configures the two-stage post-sale sequence. It is read
// at trigger time; changes never rewrite already-materialized pairs.
type DripSettings struct {
	Enabled   bool   `json:"enabled"`
	AccountID string `json:"accountId"`

	FirstDelayValue  int    `json:"firstDelayValue"`
	FirstDelayUnit   string `json:"firstDelayUnit"`
	SecondDelayValue int    `json:"secondDelayValue"`
	SecondDelayUnit  string `json:"secondDelayUnit"`

	FirstText    string   `json:"firstText"`
	FirstImages  []string `json:"firstImages,omitempty"`
	SecondText   string   `json:"secondText"`
	SecondImages []string `json:"secondImages,omitempty"`
}

func DefaultDripSettings() DripSettings {
	return DripSettings{
		Enabled:          false,
		FirstDelayValue:  1,
		FirstDelayUnit:   UnitDays,
		SecondDelayValue: 7,
		SecondDelayUnit:  UnitDays,
	}
}

func (d DripSettings) FirstDelay() time.Duration {
	return delayDuration(d.FirstDelayValue, d.FirstDelayUnit)
}

func (d DripSettings) SecondDelay() time.Duration {
	return delayDuration(d.SecondDelayValue, d.SecondDelayUnit)
}

func delayDuration(value int, unit string) time.Duration {
	switch unit {
	case UnitMinutes:
		return time.Duration(value) * time.Minute
	case UnitHours:
		return time.Duration(value) * time.Hour
	case UnitDays:
		return time.Duration(value) * 24 * time.Hour
	default:
		return time.Duration(value) * time.Minute
	}
}
