package sync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-kobo-connect/internal/features/form"
	"go-kobo-connect/internal/features/ticket"

	"go.uber.org/zap"
)

// AttributePrefix marks mapping targets routed to the ticket attribute bag
const AttributePrefix = "attributes."

// relationalFields are reference-shaped targets the mapper never assigns;
// the entity resolver owns them.
var relationalFields = map[string]bool{
	"location":        true,
	"location_id":     true,
	"region":          true,
	"prefecture":      true,
	"sous_prefecture": true,
	"district":        true,
	"reporter":        true,
}

type ticketFieldKind int

const (
	kindText ticketFieldKind = iota
	kindDate
	kindDateTime
	kindStatus
	kindPriority
)

// ticketFieldSchema is the explicit whitelist of assignable ticket fields,
// each with its coercion. Targets outside this schema (and outside the
// attribute bag) are skipped.
var ticketFieldSchema = map[string]ticketFieldKind{
	"code":               kindText,
	"title":              kindText,
	"description":        kindText,
	"category":           kindText,
	"resolution":         kindText,
	"reporter_name":      kindText,
	"channel":            kindText,
	"status":             kindStatus,
	"priority":           kindPriority,
	"date_of_incident":   kindDate,
	"date_of_submission": kindDateTime,
}

// IsAssignableField reports whether a ticket field name is a mapper target
func IsAssignableField(name string) bool {
	_, ok := ticketFieldSchema[name]
	return ok
}

type directMapping struct {
	koboField   string
	ticketField string
}

type extraMapping struct {
	koboField string
	bagPath   string
}

// FieldMapper applies a form's configured mappings to a ticket
type FieldMapper struct {
	direct []directMapping
	extras []extraMapping
	labels *LabelResolver
	logger *zap.Logger
}

// NewFieldMapper partitions the configured mappings into direct field
// assignments and attribute-bag writes. Mapping order is preserved: when two
// mappings target the same field the last applied wins.
func NewFieldMapper(mappings []form.FieldMapping, labels *LabelResolver, logger *zap.Logger) *FieldMapper {
	m := &FieldMapper{labels: labels, logger: logger}
	for _, mapping := range mappings {
		target := strings.TrimSpace(mapping.TicketField)
		if target == "" {
			continue
		}
		if strings.HasPrefix(target, AttributePrefix) {
			m.extras = append(m.extras, extraMapping{
				koboField: mapping.KoboField,
				bagPath:   strings.TrimPrefix(target, AttributePrefix),
			})
		} else {
			m.direct = append(m.direct, directMapping{
				koboField:   mapping.KoboField,
				ticketField: target,
			})
		}
	}
	return m
}

// Apply maps a submission onto the ticket. Returns true when any direct
// field changed or the attribute bag differs from its pre-mapping snapshot.
func (m *FieldMapper) Apply(sub Submission, t *ticket.Ticket) bool {
	changed := false

	for _, d := range m.direct {
		raw, ok := sub.Value(d.koboField)
		if !ok {
			continue
		}
		if relationalFields[d.ticketField] {
			continue
		}
		kind, known := ticketFieldSchema[d.ticketField]
		if !known {
			m.logger.Warn("Mapping targets unknown ticket field, skipping",
				zap.String("ticket_field", d.ticketField),
				zap.String("kobo_field", d.koboField))
			continue
		}

		value := m.labels.Resolve(d.koboField, raw)
		if assignTicketField(t, d.ticketField, kind, value) {
			changed = true
		}
	}

	if len(m.extras) > 0 {
		if t.Attributes == nil {
			t.Attributes = make(map[string]interface{})
		}
		snapshot := copyBag(t.Attributes)

		for _, e := range m.extras {
			raw, ok := sub.Value(e.koboField)
			if !ok {
				continue
			}
			value := normalizeExtra(e.bagPath, m.labels.Resolve(e.koboField, raw))
			setBagPath(t.Attributes, e.bagPath, value)
		}

		if !bagEqual(snapshot, t.Attributes) {
			changed = true
		}
	}

	return changed
}

// assignTicketField coerces and assigns one whitelisted field, reporting
// whether the stored value actually changed
func assignTicketField(t *ticket.Ticket, field string, kind ticketFieldKind, value interface{}) bool {
	switch kind {
	case kindText:
		text, ok := coerceText(value)
		if !ok {
			return false
		}
		switch field {
		case "code":
			return assignString(&t.Code, text)
		case "title":
			return assignString(&t.Title, text)
		case "description":
			return assignString(&t.Description, text)
		case "category":
			return assignString(&t.Category, text)
		case "resolution":
			return assignString(&t.Resolution, text)
		case "reporter_name":
			return assignString(&t.ReporterName, text)
		case "channel":
			return assignString(&t.Channel, text)
		}
	case kindStatus:
		text, ok := coerceText(value)
		if !ok {
			return false
		}
		status := ticket.TicketStatus(strings.ToLower(text))
		if t.Status != status {
			t.Status = status
			return true
		}
	case kindPriority:
		text, ok := coerceText(value)
		if !ok {
			return false
		}
		priority := ticket.TicketPriority(text)
		if t.Priority != priority {
			t.Priority = priority
			return true
		}
	case kindDate:
		ts, ok := coerceTime(value)
		if !ok {
			return false
		}
		day := truncateToDate(ts)
		return assignTime(&t.DateOfIncident, day)
	case kindDateTime:
		ts, ok := coerceTime(value)
		if !ok {
			return false
		}
		return assignTime(&t.DateOfSubmission, ts)
	}
	return false
}

func assignString(target *string, value string) bool {
	if *target == value {
		return false
	}
	*target = value
	return true
}

func assignTime(target **time.Time, value time.Time) bool {
	if *target != nil && (*target).Equal(value) {
		return false
	}
	*target = &value
	return true
}

// coerceText renders a value as a trimmed string; lists join with ", "
func coerceText(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), true
	case []string:
		return strings.Join(v, ", "), true
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, strings.TrimSpace(fmt.Sprintf("%v", item)))
		}
		return strings.Join(parts, ", "), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case nil:
		return "", false
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v)), true
	}
}

func coerceTime(value interface{}) (time.Time, bool) {
	raw, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	return parseKoboTime(raw)
}

func truncateToDate(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// normalizeExtra applies the bag value normalization rules: a comma-separated
// string becomes a list for "_list"-suffixed attributes, and yes/no tokens
// (French or English) become booleans.
func normalizeExtra(bagPath string, value interface{}) interface{} {
	text, isString := value.(string)
	if !isString {
		return value
	}
	text = strings.TrimSpace(text)

	leaf := bagPath
	if idx := strings.LastIndex(bagPath, "."); idx >= 0 {
		leaf = bagPath[idx+1:]
	}
	if strings.HasSuffix(leaf, "_list") {
		parts := strings.Split(text, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}

	switch fold(text) {
	case "oui", "vrai", "true", "yes":
		return true
	case "non", "faux", "false", "no":
		return false
	}
	return text
}
