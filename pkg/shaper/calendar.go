package shaper

import (
	"fmt"
	"time"

	"github.com/cortexrun/cortex/pkg/models"
)

var calendarTrackedFields = []string{"summary", "start", "end", "location", "status"}

// ShapeCalendarEvents classifies calendar event records into
// event_created, event_starting, or event_updated, mutating state in
// place with the last-seen snapshot of each tracked field (spec.md §4.2).
func ShapeCalendarEvents(records []map[string]any, userID string, state map[string]any) []*models.Event {
	var events []*models.Event

	for _, record := range records {
		id := stringField(record, "id")
		if id == "" {
			continue
		}

		prior, seen := state[id].(map[string]any)
		current := snapshot(record, calendarTrackedFields)

		eventName, ok := classifyCalendar(record, prior, seen)
		if ok {
			events = append(events, newEvent(userID, "google-calendar", eventName,
				fmt.Sprintf("calendar:%s:%s", id, eventName),
				map[string]any{"id": id, "summary": stringField(record, "summary")}))
		}

		state[id] = current
	}

	return events
}

func classifyCalendar(record map[string]any, prior map[string]any, seen bool) (string, bool) {
	if !seen {
		return "event_created", true
	}

	if startsWithin15Minutes(record) {
		return "event_starting", true
	}

	current := snapshot(record, calendarTrackedFields)
	if fieldsDiffer(prior, current) {
		return "event_updated", true
	}

	return "", false
}

func startsWithin15Minutes(record map[string]any) bool {
	start := stringField(record, "start")
	if start == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return false
	}
	until := time.Until(t)
	return until > 0 && until <= 15*time.Minute
}

func snapshot(record map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f] = record[f]
	}
	return out
}

func fieldsDiffer(prior, current map[string]any) bool {
	if prior == nil {
		return true
	}
	for k, v := range current {
		pv, ok := prior[k]
		if !ok || fmt.Sprintf("%v", pv) != fmt.Sprintf("%v", v) {
			return true
		}
	}
	return false
}
