package sync

import (
	"testing"
	"time"
)

func TestSubmissionValue(t *testing.T) {
	sub := Submission{
		"group_a/field": "flat",
		"group_b": map[string]interface{}{
			"nested": "deep",
		},
	}

	tests := []struct {
		path   string
		want   interface{}
		wantOK bool
	}{
		{"group_a/field", "flat", true},
		{"group_b/nested", "deep", true},
		{"group_b/missing", nil, false},
		{"absent", nil, false},
	}

	for _, tt := range tests {
		got, ok := sub.Value(tt.path)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("Value(%q) = (%v, %v), want (%v, %v)", tt.path, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSubmissionIdentifiers(t *testing.T) {
	sub := Submission{
		"_uuid":           "abc-123",
		"meta/instanceID": "uuid:def-456",
		"_submitted_by":   "agent1",
	}

	if got := sub.UUID(); got != "abc-123" {
		t.Errorf("UUID() = %q", got)
	}
	if got := sub.InstanceID(); got != "def-456" {
		t.Errorf("InstanceID() = %q, want prefix stripped", got)
	}
	if got := sub.SubmittedBy(); got != "agent1" {
		t.Errorf("SubmittedBy() = %q", got)
	}
}

func TestSubmissionTimePreferenceOrder(t *testing.T) {
	sub := Submission{
		"start":            "2026-01-01T08:00:00",
		"end":              "2026-01-01T09:00:00",
		"_submission_time": "2026-01-01T10:00:00",
	}
	got, ok := sub.Time()
	if !ok {
		t.Fatal("Time() ok = false")
	}
	want := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Time() = %v, want _submission_time %v", got, want)
	}

	delete(sub, "_submission_time")
	got, _ = sub.Time()
	if !got.Equal(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Time() = %v, want end", got)
	}
}

func TestParseKoboTime(t *testing.T) {
	tests := []struct {
		in     string
		wantOK bool
	}{
		{"2026-03-15T10:30:00.123Z", true},
		{"2026-03-15T10:30:00+01:00", true},
		{"2026-03-15T10:30:00", true},
		{"2026-03-15 10:30:00", true},
		{"2026-03-15", true},
		{"not a date", false},
		{"", false},
	}
	for _, tt := range tests {
		if _, ok := parseKoboTime(tt.in); ok != tt.wantOK {
			t.Errorf("parseKoboTime(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
		}
	}
}
