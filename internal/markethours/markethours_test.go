package markethours

import (
	"testing"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

func ist(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, IST)
}

func TestPhase_Boundaries(t *testing.T) {
	cal := DefaultCalendar()
	// Monday 2 March 2026 is a regular trading day.
	cases := []struct {
		at   time.Time
		want model.SessionPhase
	}{
		{ist(2026, 3, 2, 0, 0, 0), model.PhaseClosed},
		{ist(2026, 3, 2, 8, 59, 59), model.PhaseClosed},
		{ist(2026, 3, 2, 9, 0, 0), model.PhasePreOpen},
		{ist(2026, 3, 2, 9, 7, 59), model.PhasePreOpen},
		{ist(2026, 3, 2, 9, 8, 0), model.PhaseFreeze},
		{ist(2026, 3, 2, 9, 14, 59), model.PhaseFreeze},
		{ist(2026, 3, 2, 9, 15, 0), model.PhaseLive},
		{ist(2026, 3, 2, 15, 29, 59), model.PhaseLive},
		{ist(2026, 3, 2, 15, 30, 0), model.PhaseClosed},
		{ist(2026, 3, 2, 23, 59, 59), model.PhaseClosed},
	}
	for _, tc := range cases {
		if got := Phase(tc.at, cal); got != tc.want {
			t.Errorf("Phase(%s) = %s, want %s", tc.at.Format("15:04:05"), got, tc.want)
		}
	}
}

func TestPhase_UTCInputUsesIST(t *testing.T) {
	// 03:45 UTC is 09:15 IST.
	at := time.Date(2026, 3, 2, 3, 45, 0, 0, time.UTC)
	if got := Phase(at, nil); got != model.PhaseLive {
		t.Errorf("expected LIVE, got %s", got)
	}
}

func TestPhase_WeekendAndHoliday(t *testing.T) {
	cal := DefaultCalendar()
	// Saturday
	if got := Phase(ist(2026, 10, 17, 10, 0, 0), cal); got != model.PhaseClosed {
		t.Errorf("saturday: got %s", got)
	}
	// Dussehra, a Tuesday
	if got := Phase(ist(2026, 10, 20, 10, 0, 0), cal); got != model.PhaseClosed {
		t.Errorf("holiday: got %s", got)
	}
	// Same instant without a calendar is live.
	if got := Phase(ist(2026, 10, 20, 10, 0, 0), nil); got != model.PhaseLive {
		t.Errorf("nil calendar: got %s", got)
	}
}

// Every minute of a day maps to exactly one phase and the sequence of
// distinct phases follows the session order.
func TestPhase_PartitionsDay(t *testing.T) {
	cal := DefaultCalendar()
	start := ist(2026, 3, 2, 0, 0, 0)
	counts := map[model.SessionPhase]int{}
	var order []model.SessionPhase
	for m := 0; m < 24*60; m++ {
		p := Phase(start.Add(time.Duration(m)*time.Minute), cal)
		counts[p]++
		if len(order) == 0 || order[len(order)-1] != p {
			order = append(order, p)
		}
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total != 24*60 {
		t.Fatalf("covered %d minutes, want %d", total, 24*60)
	}
	if counts[model.PhasePreOpen] != 8 || counts[model.PhaseFreeze] != 7 || counts[model.PhaseLive] != 375 {
		t.Errorf("unexpected phase lengths: %v", counts)
	}
	want := []model.SessionPhase{model.PhaseClosed, model.PhasePreOpen, model.PhaseFreeze, model.PhaseLive, model.PhaseClosed}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPhase_Pure(t *testing.T) {
	cal := DefaultCalendar()
	at := ist(2026, 3, 2, 9, 10, 0)
	first := Phase(at, cal)
	for i := 0; i < 10; i++ {
		if Phase(at, cal) != first {
			t.Fatal("phase changed between identical calls")
		}
	}
}

func TestNextPhaseChange(t *testing.T) {
	cal := DefaultCalendar()
	cases := []struct {
		at   time.Time
		want time.Time
	}{
		{ist(2026, 3, 2, 8, 0, 0), ist(2026, 3, 2, 9, 0, 0)},
		{ist(2026, 3, 2, 9, 3, 0), ist(2026, 3, 2, 9, 8, 0)},
		{ist(2026, 3, 2, 9, 8, 0), ist(2026, 3, 2, 9, 15, 0)},
		{ist(2026, 3, 2, 12, 0, 0), ist(2026, 3, 2, 15, 30, 0)},
		// Friday evening rolls to Monday pre-open.
		{ist(2026, 3, 6, 16, 0, 0), ist(2026, 3, 9, 9, 0, 0)},
	}
	for _, tc := range cases {
		if got := NextPhaseChange(tc.at, cal); !got.Equal(tc.want) {
			t.Errorf("NextPhaseChange(%s) = %s, want %s", tc.at, got.In(IST), tc.want)
		}
	}
}

func TestNextOpen_SkipsHoliday(t *testing.T) {
	cal := DefaultCalendar()
	// Monday 19 Oct evening -> Tue 20 and Wed 21 are holidays -> Thu 22.
	got := NextOpen(ist(2026, 10, 19, 16, 0, 0), cal)
	want := ist(2026, 10, 22, 9, 0, 0)
	if !got.Equal(want) {
		t.Errorf("NextOpen = %s, want %s", got.In(IST), want)
	}
}

func TestNewCalendar_RejectsBadDate(t *testing.T) {
	if _, err := NewCalendar([]string{"2026-13-40"}); err == nil {
		t.Error("expected error for invalid date")
	}
	c, err := NewCalendar([]string{"2026-03-02"})
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsHoliday(ist(2026, 3, 2, 12, 0, 0)) {
		t.Error("expected configured date to be a holiday")
	}
}
