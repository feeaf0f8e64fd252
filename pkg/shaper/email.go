package shaper

import (
	"fmt"
	"strings"

	"github.com/cortexrun/cortex/pkg/models"
)

var automatedSenderPatterns = []string{
	"noreply", "no-reply", "donotreply", "notifications",
	"newsletter", "automated", "mailer-daemon", "postmaster",
}

// ShapeEmailEvents classifies Gmail message records into email_reply_received,
// email_sent, or email_received, mutating state in place with per-thread
// bookkeeping (spec.md §4.2).
func ShapeEmailEvents(records []map[string]any, userID string, state map[string]any) []*models.Event {
	var events []*models.Event

	for _, record := range records {
		id := stringField(record, "id")
		if id == "" {
			continue
		}

		from := stringField(record, "from")
		email, name := parseFromAddress(from)
		threadID := stringField(record, "thread_id")
		inReplyTo := stringField(record, "in_reply_to")

		threadState, threadSeen := threadStateOf(state, threadID)

		eventName, skip := classifyEmail(record, from, inReplyTo, threadSeen)
		if skip {
			continue
		}

		payload := map[string]any{
			"id":         id,
			"from":       from,
			"from_email": email,
			"from_name":  name,
			"thread_id":  threadID,
		}
		events = append(events, newEvent(userID, "gmail", eventName, fmt.Sprintf("gmail:%s", id), payload))

		updateThreadState(state, threadID, id, threadState)
	}

	return events
}

func classifyEmail(record map[string]any, from, inReplyTo string, threadSeen bool) (string, bool) {
	if inReplyTo != "" || threadSeen {
		return "email_reply_received", false
	}
	if isAutomatedSender(from) {
		return "", true
	}
	labels, _ := record["labels"].([]any)
	if containsLabel(labels, "SENT") || strings.Contains(strings.ToLower(from), "me") {
		return "email_sent", false
	}
	return "email_received", false
}

func isAutomatedSender(from string) bool {
	lower := strings.ToLower(from)
	for _, pattern := range automatedSenderPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func containsLabel(labels []any, target string) bool {
	for _, l := range labels {
		if s, ok := l.(string); ok && s == target {
			return true
		}
	}
	return false
}

// parseFromAddress splits a "Name <email@example.com>" header into its
// parts; a bare address yields an empty name.
func parseFromAddress(from string) (email, name string) {
	start := strings.Index(from, "<")
	end := strings.Index(from, ">")
	if start >= 0 && end > start {
		return strings.TrimSpace(from[start+1 : end]), strings.TrimSpace(from[:start])
	}
	return strings.TrimSpace(from), ""
}

func threadStateOf(state map[string]any, threadID string) (map[string]any, bool) {
	if threadID == "" {
		return nil, false
	}
	raw, ok := state[threadID]
	if !ok {
		return nil, false
	}
	ts, ok := raw.(map[string]any)
	return ts, ok
}

func updateThreadState(state map[string]any, threadID, messageID string, existing map[string]any) {
	if threadID == "" {
		return
	}
	count := 1.0
	if existing != nil {
		if c, ok := existing["message_count"].(float64); ok {
			count = c + 1
		}
	}
	state[threadID] = map[string]any{
		"last_message_id": messageID,
		"message_count":   count,
	}
}
