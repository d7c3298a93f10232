package util

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// AccountCalendar resolves "today" in the ad account's reporting time zone.
// The upstream platform buckets daily stats by the account's zone, so the
// day boundary must be computed there rather than on the host clock.
type AccountCalendar struct {
	loc *time.Location
	now func() time.Time
}

// NewAccountCalendar creates an AccountCalendar for the IANA zone name tz.
// An empty name means UTC.
func NewAccountCalendar(tz string) (*AccountCalendar, error) {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", tz, err)
	}
	return &AccountCalendar{loc: loc, now: time.Now}, nil
}

// Location returns the calendar's time zone.
func (c *AccountCalendar) Location() *time.Location { return c.loc }

// Today returns the current calendar day in the account's zone.
func (c *AccountCalendar) Today() civil.Date {
	return c.DateAt(c.now())
}

// DateAt returns the calendar day of instant t in the account's zone.
func (c *AccountCalendar) DateAt(t time.Time) civil.Date {
	return civil.DateOf(t.In(c.loc))
}
