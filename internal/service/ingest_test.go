package service

import (
	"math"
	"testing"
	"time"

	"github.com/langchou/tripscore/internal/analysis"
	"github.com/langchou/tripscore/internal/models"
)

func TestScrubDeltas(t *testing.T) {
	bad := math.NaN()
	deltas := []models.DeltaSample{
		{DeltaLat: 100, DeltaLong: 200, DeltaTimeMs: 1000},
		{DeltaLat: math.NaN(), DeltaLong: 0, DeltaTimeMs: 1000},        // 坐标非法，整点丢弃
		{DeltaLat: 0, DeltaLong: 0, DeltaTimeMs: math.Inf(1)},          // 耗时非法，整点丢弃
		{DeltaLat: 50, DeltaLong: 0, DeltaTimeMs: 1000, SpeedMph: &bad}, // 速度非法，只清字段
		{DeltaLat: 0, DeltaLong: 0, DeltaTimeMs: 1000},                 // 静止点
	}

	cleaned, stats := scrubDeltas(deltas)

	if len(cleaned) != 3 {
		t.Fatalf("len(cleaned) = %d, want 3", len(cleaned))
	}
	if cleaned[1].SpeedMph != nil {
		t.Error("invalid speed should be cleared, not kept")
	}
	if stats.MovementPoints != 2 || stats.StationaryPoints != 1 {
		t.Errorf("stats = %+v, want 2 movement / 1 stationary", stats)
	}
	if math.Abs(stats.AcceptanceRate-0.6) > 0.001 {
		t.Errorf("AcceptanceRate = %v, want 0.6", stats.AcceptanceRate)
	}
}

func TestScrubDeltasAllInvalid(t *testing.T) {
	deltas := []models.DeltaSample{
		{DeltaLat: math.Inf(-1), DeltaTimeMs: 1000},
		{DeltaLat: 0, DeltaLong: math.NaN(), DeltaTimeMs: 1000},
	}

	cleaned, stats := scrubDeltas(deltas)
	if len(cleaned) != 0 {
		t.Fatalf("len(cleaned) = %d, want 0", len(cleaned))
	}
	if stats.AcceptanceRate != 0 {
		t.Errorf("AcceptanceRate = %v, want 0", stats.AcceptanceRate)
	}
}

func TestParseClientTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2026-07-01T12:00:00Z", time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC), true},
		{"2026-07-01T12:00:00+08:00", time.Date(2026, 7, 1, 4, 0, 0, 0, time.UTC), true},
		{"2026-07-01T12:00:00", time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := parseClientTimestamp(tt.in)
		if ok != tt.ok {
			t.Errorf("parseClientTimestamp(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("parseClientTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDominantContext(t *testing.T) {
	tests := []struct {
		name  string
		miles map[analysis.ContextLabel]float64
		want  analysis.ContextLabel
	}{
		{
			name:  "highway dominates",
			miles: map[analysis.ContextLabel]float64{analysis.ContextCity: 12, analysis.ContextHighway: 80},
			want:  analysis.ContextHighway,
		},
		{
			name:  "city dominates",
			miles: map[analysis.ContextLabel]float64{analysis.ContextCity: 30, analysis.ContextMixed: 5},
			want:  analysis.ContextCity,
		},
		{
			name:  "empty falls back to mixed",
			miles: map[analysis.ContextLabel]float64{},
			want:  analysis.ContextMixed,
		},
	}

	for _, tt := range tests {
		if got := dominantContext(tt.miles); got != tt.want {
			t.Errorf("%s: dominantContext = %s, want %s", tt.name, got, tt.want)
		}
	}
}
