package sync

import (
	"strings"
	"time"
)

// Submission is one filled-in remote form instance. Kobo returns a mostly
// flat object keyed by "group/field" paths plus metadata fields.
type Submission map[string]interface{}

// Value looks a field up by its dotted-slash path. Flat keys win; nested
// group objects are walked as a fallback.
func (s Submission) Value(path string) (interface{}, bool) {
	if v, ok := s[path]; ok && v != nil {
		return v, true
	}

	parts := strings.Split(path, "/")
	var current interface{} = map[string]interface{}(s)
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

// String returns the field as a trimmed string, false when absent or not scalar
func (s Submission) String(path string) (string, bool) {
	v, ok := s.Value(path)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(str), true
}

// UUID returns the remote unique submission identifier
func (s Submission) UUID() string {
	v, _ := s.String("_uuid")
	return v
}

// InstanceID returns the form instance identifier, without the "uuid:" prefix
func (s Submission) InstanceID() string {
	v, _ := s.String("meta/instanceID")
	return strings.TrimPrefix(v, "uuid:")
}

// SubmittedBy returns the remote account that submitted the form
func (s Submission) SubmittedBy() string {
	v, _ := s.String("_submitted_by")
	return v
}

// Time computes the submission timestamp from the metadata fields, in
// preference order: _submission_time, end, start.
func (s Submission) Time() (time.Time, bool) {
	for _, field := range []string{"_submission_time", "end", "start"} {
		if raw, ok := s.String(field); ok {
			if ts, ok := parseKoboTime(raw); ok {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

var koboTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseKoboTime parses the timestamp formats seen in Kobo exports
func parseKoboTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range koboTimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
