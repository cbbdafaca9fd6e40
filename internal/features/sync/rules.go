package sync

import (
	"time"

	"go-kobo-connect/internal/features/ticket"
)

// Business rules derive ticket attributes not present verbatim in the
// submission. Each rule is a pure function returning (value, ok); an ok of
// false means "no opinion" and the orchestrator leaves the field alone.

var nonSensitiveCategories = map[string]bool{
	"cas non sensible": true,
	"non sensible":     true,
	"non-sensible":     true,
	"normal":           true,
}

var sensitiveCategories = map[string]bool{
	"cas sensible": true,
	"sensible":     true,
	"critique":     true,
	"critical":     true,
}

// InferPriority classifies the ticket priority from its category. Unknown
// categories yield no opinion so an operator-set priority is never clobbered.
func InferPriority(category string) (ticket.TicketPriority, bool) {
	folded := fold(category)
	if folded == "" {
		return "", false
	}
	if nonSensitiveCategories[folded] {
		return ticket.TicketPriorityNormal, true
	}
	if sensitiveCategories[folded] {
		return ticket.TicketPriorityCritical, true
	}
	return "", false
}

// InferResolvedStatus transitions a ticket carrying a resolution to the
// resolved status, unless it is already resolved or closed.
func InferResolvedStatus(t *ticket.Ticket) (ticket.TicketStatus, bool) {
	if t.Resolution == "" {
		return "", false
	}
	if t.Status == ticket.TicketStatusResolved || t.Status == ticket.TicketStatusClosed {
		return "", false
	}
	return ticket.TicketStatusResolved, true
}

// incidentDateFields is the ordered candidate chain for the incident date
var incidentDateFields = []string{"start"}

// InferIncidentDate walks the candidate source fields and returns the date
// component of the first parseable value, falling back to the submission
// timestamp's date.
func InferIncidentDate(sub Submission) (time.Time, bool) {
	for _, field := range incidentDateFields {
		if raw, ok := sub.String(field); ok {
			if ts, ok := parseKoboTime(raw); ok {
				return truncateToDate(ts), true
			}
		}
	}
	if ts, ok := sub.Time(); ok {
		return truncateToDate(ts), true
	}
	return time.Time{}, false
}
