package shaper

import (
	"fmt"
	"math"

	"github.com/cortexrun/cortex/pkg/models"
)

// ShapeOpportunityEvents classifies Salesforce Opportunity records,
// possibly emitting more than one event per record: stage changes, a
// closed-won/lost transition, a significant amount change, and brand-new
// records each get their own dedup key (spec.md §4.2).
func ShapeOpportunityEvents(records []map[string]any, userID string, state map[string]any) []*models.Event {
	var events []*models.Event

	for _, record := range records {
		id := stringField(record, "Id")
		if id == "" {
			continue
		}

		prior, seen := state[id].(map[string]any)
		stage := stringField(record, "StageName")
		closed := boolField(record, "IsClosed")
		won := boolField(record, "IsWon")
		amount, _ := floatField(record, "Amount")

		if !seen {
			events = append(events, newEvent(userID, "salesforce", "opportunity_created",
				fmt.Sprintf("salesforce:opp:%s:opportunity_created", id),
				map[string]any{"id": id, "stage": stage, "amount": amount}))
		} else {
			if stage != stringField(prior, "StageName") {
				events = append(events, newEvent(userID, "salesforce", "opportunity_stage_changed",
					fmt.Sprintf("salesforce:opp:%s:opportunity_stage_changed", id),
					map[string]any{"id": id, "stage": stage, "previous_stage": stringField(prior, "StageName")}))
			}

			if closed && !boolField(prior, "IsClosed") {
				eventName := "opportunity_closed_lost"
				if won {
					eventName = "opportunity_closed_won"
				}
				events = append(events, newEvent(userID, "salesforce", eventName,
					fmt.Sprintf("salesforce:opp:%s:%s", id, eventName),
					map[string]any{"id": id, "amount": amount}))
			}

			if priorAmount, ok := floatField(prior, "Amount"); ok && significantAmountChange(priorAmount, amount) {
				events = append(events, newEvent(userID, "salesforce", "opportunity_amount_changed",
					fmt.Sprintf("salesforce:opp:%s:amount_%v", id, amount),
					map[string]any{"id": id, "amount": amount, "previous_amount": priorAmount}))
			}
		}

		state[id] = map[string]any{"StageName": stage, "IsClosed": closed, "IsWon": won, "Amount": amount}
	}

	return events
}

// significantAmountChange reports whether an opportunity's amount moved
// by more than $1,000 or more than 10%, whichever rule fires (spec.md
// §4.2).
func significantAmountChange(prior, current float64) bool {
	delta := math.Abs(current - prior)
	if delta > 1000 {
		return true
	}
	if prior == 0 {
		return delta > 0
	}
	return delta/math.Abs(prior) > 0.10
}
