package tz

import (
	"testing"
	"time"
)

func TestZoneForZipcode(t *testing.T) {
	tests := []struct {
		zipcode string
		want    string
	}{
		{"02134", "America/New_York"},
		{"10001", "America/New_York"},
		{"30301", "America/New_York"},
		{"60601", "America/Chicago"},
		{"75201", "America/Chicago"},
		{"80202", "America/Denver"},
		{"94105", "America/Los_Angeles"},
		{"", "America/New_York"},
		{"X1234", "America/New_York"},
	}

	for _, tt := range tests {
		if got := ZoneForZipcode(tt.zipcode); got != tt.want {
			t.Errorf("ZoneForZipcode(%q) = %s, want %s", tt.zipcode, got, tt.want)
		}
	}
}

func TestFormatLocal(t *testing.T) {
	// UTC 19:30 = 纽约 15:30 (EDT)
	ts := time.Date(2026, 7, 1, 19, 30, 0, 0, time.UTC)

	if got := FormatLocal(ts, "10001"); got != "Jul 1, 2026 3:30 PM" {
		t.Errorf("FormatLocal = %q", got)
	}
	if got := FormatLocal(time.Time{}, "10001"); got != "" {
		t.Errorf("zero time = %q, want empty", got)
	}
}
