package gcal

import (
	"strings"
	"time"

	"github.com/shelflife/shelflife/internal/domain"
	"github.com/teambition/rrule-go"
)

// maxOccurrences caps local expansion of one recurring master.
const maxOccurrences = 500

// expandRecurring expands a recurring master event into concrete instances
// within [from, to). Handles RRULE plus EXDATE exceptions; all-day instances
// are normalized to [date, date+1) like every other all-day event.
func expandRecurring(ev eventResource, from, to time.Time, loc *time.Location) []domain.CalendarEvent {
	start, allDay, ok := parseEventTime(ev.Start, loc)
	if !ok {
		return nil
	}
	end, _, ok := parseEventTime(ev.End, loc)
	if !ok {
		end = start
	}
	duration := end.Sub(start)

	var rule *rrule.RRule
	var exDates []time.Time
	for _, line := range ev.Recurrence {
		switch {
		case strings.HasPrefix(line, "RRULE:"):
			r, err := rrule.StrToRRule(strings.TrimPrefix(line, "RRULE:"))
			if err != nil {
				continue
			}
			rule = r
		case strings.HasPrefix(line, "EXDATE"):
			exDates = append(exDates, parseExDates(line, loc)...)
		}
	}
	if rule == nil {
		// Master without a parseable rule: fall back to the single base
		// occurrence if it intersects the window.
		if start.Before(to) && end.After(from) {
			if mapped, ok := mapEvent(ev, loc); ok {
				return []domain.CalendarEvent{mapped}
			}
		}
		return nil
	}

	rule.DTStart(start)
	var set rrule.Set
	set.RRule(rule)
	for _, ex := range exDates {
		set.ExDate(ex.In(start.Location()))
	}

	occTimes := set.Between(from.In(start.Location()), to.In(start.Location()), true)
	if len(occTimes) > maxOccurrences {
		occTimes = occTimes[:maxOccurrences]
	}

	out := make([]domain.CalendarEvent, 0, len(occTimes))
	for _, occStart := range occTimes {
		var occEnd time.Time
		if allDay {
			day := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, loc)
			occStart = day
			occEnd = day.AddDate(0, 0, 1)
		} else {
			occStart = occStart.In(loc)
			occEnd = occStart.Add(duration)
		}
		out = append(out, domain.CalendarEvent{
			ID:        ev.ID,
			Title:     ev.Summary,
			StartTime: occStart,
			EndTime:   occEnd,
			IsAllDay:  allDay,
		})
	}
	return out
}

// parseExDates extracts exception dates from one EXDATE property line, e.g.
// "EXDATE;VALUE=DATE:20240102,20240115" or "EXDATE:20240102T100000Z".
func parseExDates(line string, loc *time.Location) []time.Time {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return nil
	}

	var out []time.Time
	for _, raw := range strings.Split(line[idx+1:], ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if t, err := time.Parse("20060102T150405Z", raw); err == nil {
			out = append(out, t)
			continue
		}
		if t, err := time.ParseInLocation("20060102T150405", raw, loc); err == nil {
			out = append(out, t)
			continue
		}
		if t, err := time.ParseInLocation("20060102", raw, loc); err == nil {
			out = append(out, t)
		}
	}
	return out
}
