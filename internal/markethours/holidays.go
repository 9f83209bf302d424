package markethours

import (
	"fmt"
	"time"
)

// NSE holidays for 2026.
// Source: NSE India official holiday list.
var nseHolidays2026 = []string{
	"2026-01-26", // Republic Day
	"2026-02-17", // Mahashivratri (tentative)
	"2026-03-14", // Holi
	"2026-03-31", // Id-ul-Fitr (Eid) (tentative)
	"2026-04-02", // Ram Navami (tentative)
	"2026-04-06", // Mahavir Jayanti
	"2026-04-10", // Good Friday
	"2026-04-14", // Dr. Ambedkar Jayanti
	"2026-05-01", // Maharashtra Day
	"2026-06-07", // Bakrid / Eid ul-Adha (tentative)
	"2026-07-06", // Muharram (tentative)
	"2026-08-15", // Independence Day
	"2026-08-16", // Janmashtami (tentative)
	"2026-09-05", // Milad-un-Nabi (tentative)
	"2026-10-02", // Mahatma Gandhi Jayanti
	"2026-10-20", // Dussehra
	"2026-10-21", // Dussehra (tentative)
	"2026-11-05", // Diwali / Lakshmi Puja (tentative)
	"2026-11-06", // Diwali Balipratipada (tentative)
	"2026-11-07", // Bhai Dooj (tentative)
	"2026-11-19", // Guru Nanak Jayanti
	"2026-12-25", // Christmas
}

// Calendar is a set of exchange holidays keyed by IST date. A nil Calendar
// has no holidays.
type Calendar struct {
	days map[string]bool
}

// NewCalendar builds a calendar from YYYY-MM-DD dates.
func NewCalendar(dates []string) (*Calendar, error) {
	c := &Calendar{days: make(map[string]bool, len(dates))}
	for _, d := range dates {
		if _, err := time.ParseInLocation("2006-01-02", d, IST); err != nil {
			return nil, fmt.Errorf("markethours: holiday %q: %w", d, err)
		}
		c.days[d] = true
	}
	return c, nil
}

// DefaultCalendar returns the built-in NSE holiday list.
func DefaultCalendar() *Calendar {
	c, _ := NewCalendar(nseHolidays2026)
	return c
}

// DefaultHolidays returns a copy of the built-in holiday dates.
func DefaultHolidays() []string {
	return append([]string(nil), nseHolidays2026...)
}

// IsHoliday returns true if the IST date of t is a holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	if c == nil {
		return false
	}
	return c.days[SessionDate(t)]
}

// Len returns the number of holidays.
func (c *Calendar) Len() int {
	if c == nil {
		return 0
	}
	return len(c.days)
}
