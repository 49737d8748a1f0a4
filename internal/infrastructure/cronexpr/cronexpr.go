// Package cronexpr translates schedule timings to five-field cron
// expressions and computes their next fire times.
//
// Canonical expressions carry their zone as a CRON_TZ prefix:
//
//	CRON_TZ=America/New_York 0 2 * * 1
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/semmidev/snapkeep/internal/domain"
)

const tzPrefix = "CRON_TZ="

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ToCron builds the canonical expression for a timing.
func ToCron(t domain.Timing) (string, error) {
	zone := t.Timezone
	if zone == "" {
		zone = "UTC"
	}
	if _, err := time.LoadLocation(zone); err != nil {
		return "", fmt.Errorf("unknown timezone %q: %w", t.Timezone, err)
	}

	var fields string
	if t.Frequency == domain.FrequencyHourly {
		fields = "0 * * * *"
	} else {
		hour, minute, err := parseClock(t.Time)
		if err != nil {
			return "", err
		}

		switch t.Frequency {
		case domain.FrequencyDaily:
			fields = fmt.Sprintf("%d %d * * *", minute, hour)
		case domain.FrequencyWeekly:
			if t.DayOfWeek < 0 || t.DayOfWeek > 6 {
				return "", fmt.Errorf("day of week must be 0-6, got %d", t.DayOfWeek)
			}
			fields = fmt.Sprintf("%d %d * * %d", minute, hour, t.DayOfWeek)
		case domain.FrequencyMonthly:
			fields = fmt.Sprintf("%d %d 1 * *", minute, hour)
		default:
			return "", fmt.Errorf("unknown frequency: %q", t.Frequency)
		}
	}

	return tzPrefix + zone + " " + fields, nil
}

// Parse inverts ToCron. It only accepts the four shapes ToCron produces.
func Parse(expr string) (domain.Timing, error) {
	zone, fields := splitZone(expr)
	if zone == "" {
		zone = "UTC"
	}
	if _, err := parser.Parse(expr); err != nil {
		return domain.Timing{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	parts := strings.Fields(fields)
	if len(parts) != 5 {
		return domain.Timing{}, fmt.Errorf("expected 5 fields in %q", expr)
	}

	timing := domain.Timing{Timezone: zone}
	if parts[0] == "0" && parts[1] == "*" && parts[2] == "*" && parts[3] == "*" && parts[4] == "*" {
		timing.Frequency = domain.FrequencyHourly
		return timing, nil
	}

	minute, errM := strconv.Atoi(parts[0])
	hour, errH := strconv.Atoi(parts[1])
	if errM != nil || errH != nil || parts[3] != "*" {
		return domain.Timing{}, fmt.Errorf("unsupported cron expression %q", expr)
	}
	timing.Time = fmt.Sprintf("%02d:%02d", hour, minute)

	switch {
	case parts[2] == "*" && parts[4] == "*":
		timing.Frequency = domain.FrequencyDaily
	case parts[2] == "*":
		dow, err := strconv.Atoi(parts[4])
		if err != nil {
			return domain.Timing{}, fmt.Errorf("unsupported cron expression %q", expr)
		}
		timing.Frequency = domain.FrequencyWeekly
		timing.DayOfWeek = dow
	case parts[2] == "1" && parts[4] == "*":
		timing.Frequency = domain.FrequencyMonthly
	default:
		return domain.Timing{}, fmt.Errorf("unsupported cron expression %q", expr)
	}

	return timing, nil
}

// Describe renders an expression for humans, e.g. "Weekly on Monday at 02:00 (America/New_York)".
func Describe(expr string) (string, error) {
	t, err := Parse(expr)
	if err != nil {
		return "", err
	}

	switch t.Frequency {
	case domain.FrequencyHourly:
		return fmt.Sprintf("Hourly at minute 00 (%s)", t.Timezone), nil
	case domain.FrequencyDaily:
		return fmt.Sprintf("Daily at %s (%s)", t.Time, t.Timezone), nil
	case domain.FrequencyWeekly:
		return fmt.Sprintf("Weekly on %s at %s (%s)", time.Weekday(t.DayOfWeek), t.Time, t.Timezone), nil
	default:
		return fmt.Sprintf("Monthly on day 1 at %s (%s)", t.Time, t.Timezone), nil
	}
}

// NextFireTime returns the first fire time strictly after after. A non-empty
// timezone overrides any zone carried by the expression. On a fall-back day
// the repeated wall-clock hour is not fired a second time. A wall-clock time
// swallowed by a spring-forward gap fires at the end of the gap instead.
func NextFireTime(expr, timezone string, after time.Time) (time.Time, error) {
	zone, fields := splitZone(expr)
	if timezone != "" {
		zone = timezone
	}
	if zone == "" {
		zone = "UTC"
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown timezone %q: %w", zone, err)
	}

	schedule, err := parser.Parse(tzPrefix + zone + " " + fields)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	next := schedule.Next(after)
	for !next.IsZero() && repeatsWallClock(next, loc) {
		next = schedule.Next(next)
	}
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires", expr)
	}
	if sched, ok := schedule.(*cron.SpecSchedule); ok {
		if gap, found := firstGapFire(sched, loc, after, next); found {
			return gap, nil
		}
	}
	return next, nil
}

// starBit marks a field written as "*", mirroring robfig's encoding.
const starBit = 1 << 63

// firstGapFire finds the earliest matching wall-clock time in (after, next)
// that does not exist locally because of a spring-forward transition, and
// returns the instant the gap ends.
func firstGapFire(sched *cron.SpecSchedule, loc *time.Location, after, next time.Time) (time.Time, bool) {
	from := after.In(loc)
	to := next.In(loc)
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	last := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc)

	for ; !day.After(last); day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc) {
		_, startOffset := day.Zone()
		_, endOffset := day.Add(36 * time.Hour).Zone()
		if endOffset <= startOffset || !dayMatches(sched, day) {
			continue
		}

		for h := 0; h < 24; h++ {
			if sched.Hour&(1<<uint(h)) == 0 {
				continue
			}
			for m := 0; m < 60; m++ {
				if sched.Minute&(1<<uint(m)) == 0 {
					continue
				}
				wall := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
				if wall.Hour() == h && wall.Minute() == m {
					continue
				}
				fire := gapEnd(wall, h*60+m)
				if fire.After(after) && fire.Before(next) {
					return fire, true
				}
			}
		}
	}
	return time.Time{}, false
}

// gapEnd returns the transition instant for a normalized wall-clock time
// that fell inside a gap. wantMinute is the requested minute of the day.
func gapEnd(wall time.Time, wantMinute int) time.Time {
	start, end := wall.ZoneBounds()
	if wall.Hour()*60+wall.Minute() > wantMinute {
		return start
	}
	return end
}

func dayMatches(sched *cron.SpecSchedule, t time.Time) bool {
	if sched.Month&(1<<uint(t.Month())) == 0 {
		return false
	}
	domMatch := sched.Dom&(1<<uint(t.Day())) > 0
	dowMatch := sched.Dow&(1<<uint(t.Weekday())) > 0
	if sched.Dom&starBit > 0 || sched.Dow&starBit > 0 {
		return domMatch && dowMatch
	}
	return domMatch || dowMatch
}

// repeatsWallClock reports whether t is the second occurrence of its local
// wall-clock time, which only happens inside a fall-back transition.
func repeatsWallClock(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	_, offset := local.Zone()
	hourAgo := local.Add(-time.Hour)
	_, earlierOffset := hourAgo.Zone()
	if earlierOffset <= offset {
		return false
	}
	diff := time.Duration(earlierOffset-offset) * time.Second
	earlier := local.Add(-diff)
	return earlier.Hour() == local.Hour() && earlier.Minute() == local.Minute() && earlier.Day() == local.Day()
}

func splitZone(expr string) (string, string) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, tzPrefix) {
		return "", expr
	}
	i := strings.IndexByte(expr, ' ')
	if i < 0 {
		return strings.TrimPrefix(expr, tzPrefix), ""
	}
	return expr[len(tzPrefix):i], strings.TrimSpace(expr[i+1:])
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("time must be HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}
