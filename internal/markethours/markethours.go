// Package markethours derives the NSE trading-session phase from wall-clock
// time and a holiday calendar. Everything here is a pure function of its
// inputs; callers recompute the phase whenever they need it.
package markethours

import (
	"fmt"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session boundaries in IST minutes after midnight.
const (
	PreOpenStart = 9*60 + 0   // order entry opens
	FreezeStart  = 9*60 + 8   // pre-open order matching, book frozen
	LiveStart    = 9*60 + 15  // continuous trading
	LiveEnd      = 15*60 + 30 // close
)

// Phase returns the session phase at t. Weekends and calendar holidays are
// CLOSED for the whole day. The four phases partition every day with no
// gaps or overlaps.
func Phase(t time.Time, cal *Calendar) model.SessionPhase {
	ist := t.In(IST)
	if !IsTradingDay(ist, cal) {
		return model.PhaseClosed
	}
	m := ist.Hour()*60 + ist.Minute()
	switch {
	case m < PreOpenStart:
		return model.PhaseClosed
	case m < FreezeStart:
		return model.PhasePreOpen
	case m < LiveStart:
		return model.PhaseFreeze
	case m < LiveEnd:
		return model.PhaseLive
	default:
		return model.PhaseClosed
	}
}

// IsWeekday returns true if t is Mon–Fri in IST.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time, cal *Calendar) bool {
	return IsWeekday(t) && !cal.IsHoliday(t)
}

// SessionDate returns the IST calendar date of t as YYYY-MM-DD.
func SessionDate(t time.Time) string {
	return t.In(IST).Format("2006-01-02")
}

// NextPhaseChange returns the first instant after t at which Phase changes.
func NextPhaseChange(t time.Time, cal *Calendar) time.Time {
	cur := Phase(t, cal)
	ist := t.In(IST)
	day := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)

	// Boundaries only fall on these minutes; scan forward day by day.
	for i := 0; i < 15; i++ {
		d := day.AddDate(0, 0, i)
		for _, m := range []int{PreOpenStart, FreezeStart, LiveStart, LiveEnd} {
			b := d.Add(time.Duration(m) * time.Minute)
			if !b.After(t) {
				continue
			}
			if Phase(b, cal) != cur {
				return b
			}
		}
	}
	return day.AddDate(0, 0, 15)
}

// NextOpen returns the next PRE_OPEN start at or after t.
func NextOpen(t time.Time, cal *Calendar) time.Time {
	ist := t.In(IST)
	day := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)
	for i := 0; i < 15; i++ {
		d := day.AddDate(0, 0, i)
		open := d.Add(PreOpenStart * time.Minute)
		if IsTradingDay(d, cal) && !open.Before(ist) {
			return open
		}
	}
	return day.AddDate(0, 0, 15).Add(PreOpenStart * time.Minute)
}

// TodayClose returns today's close (15:30 IST).
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST).Add(LiveEnd * time.Minute)
}

// StatusString returns a human-readable session status.
func StatusString(t time.Time, cal *Calendar) string {
	p := Phase(t, cal)
	next := NextPhaseChange(t, cal)
	return fmt.Sprintf("%s, next change %s %s (%s)", p,
		next.In(IST).Weekday().String()[:3], next.In(IST).Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
