package sendtime

import (
	"time"

	"github.com/cadencehq/cadence/pkg/schema"
)

// Send windows, local time.
const (
	morningHour   = 9
	afternoonHour = 14
	optimalHour   = 10
	optimalMinute = 30
)

// At maps a symbolic timing preference to a concrete timestamp relative to
// now. The result is never before now.
//
// Rules:
//   - immediate: now.
//   - morning:   next 09:00; rolls to tomorrow when 09:00 already passed.
//   - afternoon: next 14:00, same roll-forward rule.
//   - optimal:   next 10:30, then Saturday/Sunday roll forward to Monday
//     10:30. The time-of-day floor is applied first, then the weekend skip;
//     the weekend skip preserves 10:30.
//
// Unknown timings behave as immediate.
func At(timing schema.SendTiming, now time.Time) time.Time {
	switch timing {
	case schema.TimingMorning:
		return nextAt(now, morningHour, 0)
	case schema.TimingAfternoon:
		return nextAt(now, afternoonHour, 0)
	case schema.TimingOptimal:
		return skipWeekend(nextAt(now, optimalHour, optimalMinute))
	default:
		return now
	}
}

// For evaluates the timing preference against the wall clock.
func For(timing schema.SendTiming) time.Time {
	return At(timing, time.Now())
}

// nextAt returns the next occurrence of hh:mm after now, today or tomorrow.
func nextAt(now time.Time, hour, minute int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// skipWeekend rolls Saturday and Sunday forward to Monday, keeping the
// time of day.
func skipWeekend(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, 2)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	default:
		return t
	}
}
