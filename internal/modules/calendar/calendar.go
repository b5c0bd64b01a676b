// Package calendar derives the US equity market session state from
// wall-clock time. It is a pure function of the instant passed in, plus a
// fixed, externally overridable table of holidays and early-close dates.
package calendar

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// SessionState describes the market session at a given instant
type SessionState string

const (
	StateClosed     SessionState = "CLOSED"
	StateOpen       SessionState = "OPEN"
	StateEarlyClose SessionState = "EARLY_CLOSE"
)

// IsOpen reports whether prices are moving in this state
func (s SessionState) IsOpen() bool {
	return s == StateOpen || s == StateEarlyClose
}

// SessionStatus is the calendar's answer for a single instant.
// NextTransition is the close instant while open, and the next session open
// instant while closed.
type SessionStatus struct {
	State          SessionState
	NextTransition time.Time
}

// Regular session is [09:30, 16:00) Eastern; early-close days end at 13:00.
const (
	openHour        = 9
	openMinute      = 30
	closeHour       = 16
	closeMinute     = 0
	earlyCloseHour  = 13
	earlyCloseMinut = 0
)

// Calendar answers session-state questions for the US equity market
type Calendar struct {
	loc         *time.Location
	holidays    map[string]bool // "2006-01-02" date strings, Eastern dates
	earlyCloses map[string]bool
	log         zerolog.Logger
}

// calendarFile is the JSON shape accepted by LoadFromFile
type calendarFile struct {
	Holidays    []string `json:"holidays"`
	EarlyCloses []string `json:"early_closes"`
}

// New creates a calendar with the built-in holiday and early-close tables
func New(log zerolog.Logger) (*Calendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("failed to load market timezone: %w", err)
	}

	c := &Calendar{
		loc:         loc,
		holidays:    make(map[string]bool),
		earlyCloses: make(map[string]bool),
		log:         log.With().Str("component", "calendar").Logger(),
	}
	for _, d := range defaultHolidays {
		c.holidays[d] = true
	}
	for _, d := range defaultEarlyCloses {
		c.earlyCloses[d] = true
	}
	return c, nil
}

// LoadFromFile replaces the built-in date tables with the contents of a JSON
// file, so the calendar data can be updated without a code change.
func (c *Calendar) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read calendar file: %w", err)
	}

	var cf calendarFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse calendar file: %w", err)
	}

	holidays := make(map[string]bool, len(cf.Holidays))
	for _, d := range cf.Holidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("invalid holiday date %q: %w", d, err)
		}
		holidays[d] = true
	}
	earlyCloses := make(map[string]bool, len(cf.EarlyCloses))
	for _, d := range cf.EarlyCloses {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("invalid early-close date %q: %w", d, err)
		}
		earlyCloses[d] = true
	}

	c.holidays = holidays
	c.earlyCloses = earlyCloses
	c.log.Info().
		Int("holidays", len(holidays)).
		Int("early_closes", len(earlyCloses)).
		Str("path", path).
		Msg("Calendar tables loaded from file")
	return nil
}

// Location returns the market timezone
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsTradingDay reports whether the given instant falls on a trading day
// (evaluated as an Eastern-time date).
func (c *Calendar) IsTradingDay(t time.Time) bool {
	et := t.In(c.loc)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return false
	}
	return !c.holidays[et.Format("2006-01-02")]
}

// Status returns the session state at the given instant and the instant of
// the next open/close transition.
func (c *Calendar) Status(now time.Time) SessionStatus {
	et := now.In(c.loc)

	if c.IsTradingDay(et) {
		open := c.sessionOpen(et)
		close := c.sessionClose(et)

		if !et.Before(open) && et.Before(close) {
			state := StateOpen
			if c.earlyCloses[et.Format("2006-01-02")] {
				state = StateEarlyClose
			}
			return SessionStatus{State: state, NextTransition: close}
		}

		// Before today's open: next transition is today's open
		if et.Before(open) {
			return SessionStatus{State: StateClosed, NextTransition: open}
		}
	}

	// After close, weekend or holiday: advance one day at a time until the
	// next trading day is found
	return SessionStatus{State: StateClosed, NextTransition: c.nextSessionOpen(et)}
}

// sessionOpen returns 09:30 Eastern on the same date as t
func (c *Calendar) sessionOpen(t time.Time) time.Time {
	et := t.In(c.loc)
	return time.Date(et.Year(), et.Month(), et.Day(), openHour, openMinute, 0, 0, c.loc)
}

// sessionClose returns the close instant for the date of t, honoring the
// early-close table.
func (c *Calendar) sessionClose(t time.Time) time.Time {
	et := t.In(c.loc)
	if c.earlyCloses[et.Format("2006-01-02")] {
		return time.Date(et.Year(), et.Month(), et.Day(), earlyCloseHour, earlyCloseMinut, 0, 0, c.loc)
	}
	return time.Date(et.Year(), et.Month(), et.Day(), closeHour, closeMinute, 0, 0, c.loc)
}

// nextSessionOpen finds the open instant of the next trading day strictly
// after the session of t has ended.
func (c *Calendar) nextSessionOpen(t time.Time) time.Time {
	et := t.In(c.loc)
	day := et.AddDate(0, 0, 1)
	for i := 0; i < 366; i++ {
		if c.IsTradingDay(day) {
			return c.sessionOpen(day)
		}
		day = day.AddDate(0, 0, 1)
	}
	// A year without a trading day means the tables are broken; fall back to
	// the next weekday open
	c.log.Error().Msg("No trading day found within a year, calendar tables likely invalid")
	return c.sessionOpen(et.AddDate(0, 0, 1))
}

// defaultHolidays covers NYSE full-day closures for 2025-2026
var defaultHolidays = []string{
	"2025-01-01", // New Year's Day
	"2025-01-20", // Martin Luther King Jr. Day
	"2025-02-17", // Washington's Birthday
	"2025-04-18", // Good Friday
	"2025-05-26", // Memorial Day
	"2025-06-19", // Juneteenth
	"2025-07-04", // Independence Day
	"2025-09-01", // Labor Day
	"2025-11-27", // Thanksgiving
	"2025-12-25", // Christmas
	"2026-01-01",
	"2026-01-19",
	"2026-02-16",
	"2026-04-03",
	"2026-05-25",
	"2026-06-19",
	"2026-07-03", // Independence Day observed
	"2026-09-07",
	"2026-11-26",
	"2026-12-25",
}

// defaultEarlyCloses covers NYSE 13:00 closes for 2025-2026
var defaultEarlyCloses = []string{
	"2025-07-03",
	"2025-11-28",
	"2025-12-24",
	"2026-11-27",
	"2026-12-24",
}
