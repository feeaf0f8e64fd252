package shaper

import (
	"fmt"

	"github.com/cortexrun/cortex/pkg/models"
)

// ShapeLeadEvents classifies Salesforce Lead records into lead_created,
// lead_converted, or lead_stage_changed, mutating state in place with
// each lead's last-seen IsConverted/Status (spec.md §4.2).
func ShapeLeadEvents(records []map[string]any, userID string, state map[string]any) []*models.Event {
	var events []*models.Event

	for _, record := range records {
		id := stringField(record, "Id")
		if id == "" {
			continue
		}

		prior, seen := state[id].(map[string]any)
		status := stringField(record, "Status")
		converted := boolField(record, "IsConverted")

		switch {
		case !seen:
			events = append(events, newEvent(userID, "salesforce", "lead_created",
				fmt.Sprintf("salesforce:lead:%s:lead_created", id),
				map[string]any{"id": id, "status": status}))
		case converted && !boolField(prior, "IsConverted"):
			events = append(events, newEvent(userID, "salesforce", "lead_converted",
				fmt.Sprintf("salesforce:lead:%s:lead_converted", id),
				map[string]any{"id": id, "status": status}))
		case status != stringField(prior, "Status"):
			events = append(events, newEvent(userID, "salesforce", "lead_stage_changed",
				fmt.Sprintf("salesforce:lead:%s:lead_stage_changed", id),
				map[string]any{"id": id, "status": status, "previous_status": stringField(prior, "Status")}))
		}

		state[id] = map[string]any{"IsConverted": converted, "Status": status}
	}

	return events
}
