package utils

import (
	"testing"
	"time"
)

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cases := []string{
		"2024-05-01T10:00:00Z",
		"2024-05-01T10:00:00",
		"2024-05-01T12:00:00+02:00",
		"2024-05-01 10:00:00",
		"2024-05-01T10:00",
	}
	for _, value := range cases {
		got, err := ParseTimestamp(value)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("parse %q: expected %v UTC, got %v", value, want, got)
		}
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "  ", "not-a-time", "01/05/2024"} {
		if _, err := ParseTimestamp(value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}

func TestAbsDuration(t *testing.T) {
	a := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	b := a.Add(10 * time.Minute)
	if AbsDuration(a, b) != 10*time.Minute || AbsDuration(b, a) != 10*time.Minute {
		t.Fatalf("expected symmetric 10m duration")
	}
}
