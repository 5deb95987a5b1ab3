package cron

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"* * * * *",
		"*/5 * * * *",
		"0 9 * * 1-5",
		"30 6 1 * *",
		"0 0,12 * * 0,6",
	}
	for _, expr := range valid {
		if !Validate(expr) {
			t.Errorf("Validate(%q) = false, want true", expr)
		}
	}

	invalid := []string{
		"",
		"* * * *",          // 4 fields
		"* * * * * *",      // 6 fields
		"61 * * * *",       // minute out of range
		"* 25 * * *",       // hour out of range
		"not a cron at all XX",
	}
	for _, expr := range invalid {
		if Validate(expr) {
			t.Errorf("Validate(%q) = true, want false", expr)
		}
	}
}

func TestNextFiveMinuteBoundary(t *testing.T) {
	from := time.Date(2024, 3, 10, 12, 2, 30, 0, time.UTC)
	next, err := Next("*/5 * * * *", "UTC", from)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	want := time.Date(2024, 3, 10, 12, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextStrictlyFuture(t *testing.T) {
	// from exactly on a fire instant: next must move past it
	from := time.Date(2024, 3, 10, 12, 5, 0, 0, time.UTC)
	next, err := Next("*/5 * * * *", "UTC", from)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !next.After(from) {
		t.Errorf("next = %v, not strictly after %v", next, from)
	}
}

func TestNextIsMonotonic(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	first, err := Next("15 3 * * *", "UTC", from)
	if err != nil {
		t.Fatalf("first Next failed: %v", err)
	}
	second, err := Next("15 3 * * *", "UTC", first)
	if err != nil {
		t.Fatalf("second Next failed: %v", err)
	}
	if !second.After(first) {
		t.Errorf("second = %v, want after first %v", second, first)
	}
}

func TestNextHonorsTimezone(t *testing.T) {
	// 09:00 in New York during EDT is 13:00 UTC.
	from := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	next, err := Next("0 9 * * *", "America/New_York", from)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got := next.UTC().Hour(); got != 13 {
		t.Errorf("next fires at %d UTC, want 13", got)
	}
}

func TestNextUnknownTimezoneFallsBackToUTC(t *testing.T) {
	from := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	next, err := Next("0 9 * * *", "Not/AZone", from)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got := next.UTC().Hour(); got != 9 {
		t.Errorf("next fires at %d UTC, want 9 (UTC fallback)", got)
	}
}

func TestDescribe(t *testing.T) {
	cases := map[string]string{
		"* * * * *":    "Every minute",
		"30 9 * * *":   "Daily at 9:30",
		"5 9 * * *":    "Daily at 9:05",
		"0 9 * * 1-5":  "Every weekdays at 9:00",
		"0 18 * * 5":   "Every Friday at 18:00",
		"*/5 * * * *":  "*/5 * * * *",
		"0 0 1 1 *":    "0 0 1 1 *",
		"not-a-cron":   "not-a-cron",
	}
	for expr, want := range cases {
		if got := Describe(expr); got != want {
			t.Errorf("Describe(%q) = %q, want %q", expr, got, want)
		}
	}
}
