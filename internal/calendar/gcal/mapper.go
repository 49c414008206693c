package gcal

import (
	"time"

	"github.com/shelflife/shelflife/internal/domain"
)

const allDayLayout = "2006-01-02"

// mapEvent converts an event resource into the domain projection. Cancelled
// events and events without a parseable start are skipped.
func mapEvent(ev eventResource, loc *time.Location) (domain.CalendarEvent, bool) {
	if ev.Status == "cancelled" {
		return domain.CalendarEvent{}, false
	}

	start, allDay, ok := parseEventTime(ev.Start, loc)
	if !ok {
		return domain.CalendarEvent{}, false
	}
	end, _, ok := parseEventTime(ev.End, loc)
	if !ok {
		end = start
	}

	return domain.CalendarEvent{
		ID:        ev.ID,
		Title:     ev.Summary,
		StartTime: start,
		EndTime:   end,
		IsAllDay:  allDay,
	}, true
}

// parseEventTime handles both the all-day Date form and the timed DateTime
// form. All-day dates are anchored at midnight in loc.
func parseEventTime(edt *eventDateTime, loc *time.Location) (t time.Time, allDay, ok bool) {
	if edt == nil {
		return time.Time{}, false, false
	}
	if edt.Date != "" {
		d, err := time.ParseInLocation(allDayLayout, edt.Date, loc)
		if err != nil {
			return time.Time{}, false, false
		}
		return d, true, true
	}
	if edt.DateTime != "" {
		d, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false, false
		}
		return d.In(loc), false, true
	}
	return time.Time{}, false, false
}
