package analysis

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tripscore/internal/models"
)

// cityTripDeltas 合成一段城区行程：东行、两次减速停车、一次转弯
func cityTripDeltas(n int) []models.DeltaSample {
	start := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	deltas := make([]models.DeltaSample, 0, n)
	for i := 0; i < n; i++ {
		speed := 25.0
		switch {
		case i%10 < 2:
			speed = 0
		case i%10 < 4:
			speed = 12
		}

		dLong := 500.0
		dLat := 0.0
		if i > n/2 {
			dLat = 500.0
			dLong = 0
		}

		deltas = append(deltas, models.DeltaSample{
			DeltaLat:    dLat,
			DeltaLong:   dLong,
			DeltaTimeMs: 1000,
			SpeedMph:    fptr(speed),
			Sequence:    i,
			Timestamp:   start.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
		})
	}
	return deltas
}

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(zap.NewNop(), DefaultThresholds())
}

func TestAnalyzer_Analyze(t *testing.T) {
	a := newTestAnalyzer()
	base := models.DefaultBasePoint()

	t.Run("insufficient deltas", func(t *testing.T) {
		_, err := a.Analyze(Input{TripID: "t1", Deltas: cityTripDeltas(1), BasePoint: base})
		if !errors.Is(err, ErrInsufficientData) {
			t.Fatalf("err = %v, want ErrInsufficientData", err)
		}
	})

	t.Run("zero reconstructed distance", func(t *testing.T) {
		deltas := []models.DeltaSample{
			{DeltaTimeMs: 1000, SpeedMph: fptr(0)},
			{DeltaTimeMs: 1000, SpeedMph: fptr(0)},
			{DeltaTimeMs: 1000, SpeedMph: fptr(0)},
		}
		_, err := a.Analyze(Input{TripID: "t2", Deltas: deltas, BasePoint: base})
		if !errors.Is(err, ErrInvalidDistance) {
			t.Fatalf("err = %v, want ErrInvalidDistance", err)
		}
	})

	t.Run("delta reconstruction path", func(t *testing.T) {
		in := Input{TripID: "trip-delta", Deltas: cityTripDeltas(60), BasePoint: base}

		r, err := a.Analyze(in)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}

		if r.TripID != "trip-delta" {
			t.Errorf("TripID = %q", r.TripID)
		}
		if r.DataSource != "delta_coordinates" {
			t.Errorf("DataSource = %q, want delta_coordinates", r.DataSource)
		}
		if r.CoordinateFormat != FormatFixedPoint {
			t.Errorf("CoordinateFormat = %s, want fixed_point", r.CoordinateFormat)
		}
		if r.TotalDistanceMiles <= 0 {
			t.Errorf("TotalDistanceMiles = %v, want > 0", r.TotalDistanceMiles)
		}
		if r.BehaviorScore < 30 || r.BehaviorScore > 100 {
			t.Errorf("BehaviorScore = %v out of [30,100]", r.BehaviorScore)
		}
		if r.AlgorithmVersion != AlgorithmVersion {
			t.Errorf("AlgorithmVersion = %q", r.AlgorithmVersion)
		}
		if r.FromCache {
			t.Error("FromCache should be false for a fresh analysis")
		}

		// 60 个 1s 采样 → 起止差 59s，时长钳到下限 1 分钟
		approx(t, "DurationMinutes", r.DurationMinutes, 1.0, 0.01)
		if r.FormattedDuration != "1m" {
			t.Errorf("FormattedDuration = %q, want 1m", r.FormattedDuration)
		}

		wantStart := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
		if !r.StartTimestamp.Equal(wantStart) {
			t.Errorf("StartTimestamp = %v, want %v", r.StartTimestamp, wantStart)
		}

		// fallback 基准点不提供隐私保护
		if r.PrivacyProtected {
			t.Error("PrivacyProtected should be false for fallback base point")
		}
		if r.BasePointCity != "Beijing" {
			t.Errorf("BasePointCity = %q", r.BasePointCity)
		}
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		in := Input{TripID: "trip-det", Deltas: cityTripDeltas(60), BasePoint: base}

		r1, err := a.Analyze(in)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		r2, err := a.Analyze(in)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}

		if !reflect.DeepEqual(r1, r2) {
			t.Errorf("results differ:\n%+v\n%+v", r1, r2)
		}
	})

	t.Run("frontend metrics path", func(t *testing.T) {
		trip := &models.Trip{
			TripID: "trip-frontend",
			Quality: &models.TripQuality{
				UseGPSMetrics:       true,
				ActualDistanceMiles: 10.0,
				ActualDurationMin:   20.0,
				GPSMaxSpeedMph:      55.0,
				GPSAvgSpeedMph:      30.0,
			},
		}
		in := Input{
			TripID:    "trip-frontend",
			Deltas:    cityTripDeltas(60),
			BasePoint: models.BasePoint{Latitude: 40.0, Longitude: -74.0, City: "Newark", Source: "user_provided"},
			Trip:      trip,
		}

		r, err := a.Analyze(in)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}

		if r.DataSource != "frontend_exact" {
			t.Errorf("DataSource = %q, want frontend_exact", r.DataSource)
		}
		approx(t, "TotalDistanceMiles", r.TotalDistanceMiles, 10.0, 0.001)
		approx(t, "DurationMinutes", r.DurationMinutes, 20.0, 0.001)
		approx(t, "MaxSpeedMph", r.MaxSpeedMph, 55.0, 0.001)
		approx(t, "AvgSpeedMph", r.AvgSpeedMph, 30.0, 0.001)
		if r.FormattedDuration != "20m" {
			t.Errorf("FormattedDuration = %q, want 20m", r.FormattedDuration)
		}

		// 无坐标重建时没有方位序列，转弯评分走回落值
		approx(t, "TurnSafetyScore", r.TurnSafetyScore, 85.0, 0.001)
		if r.TotalTurns != 0 {
			t.Errorf("TotalTurns = %d, want 0", r.TotalTurns)
		}

		if !r.PrivacyProtected {
			t.Error("PrivacyProtected should be true for user provided base point")
		}
	})

	t.Run("trip metadata overrides delta timestamps", func(t *testing.T) {
		startAt := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
		endAt := startAt.Add(45 * time.Minute)
		trip := &models.Trip{
			TripID:         "trip-meta",
			StartTimestamp: &startAt,
			EndTimestamp:   &endAt,
		}

		r, err := a.Analyze(Input{TripID: "trip-meta", Deltas: cityTripDeltas(60), BasePoint: base, Trip: trip})
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}

		if !r.StartTimestamp.Equal(startAt) || !r.EndTimestamp.Equal(endAt) {
			t.Errorf("timestamps = %v / %v, want trip metadata", r.StartTimestamp, r.EndTimestamp)
		}
	})
}

func TestResolveTimestamps(t *testing.T) {
	t.Run("from delta timestamps", func(t *testing.T) {
		deltas := []models.DeltaSample{
			{Timestamp: "2026-07-01T12:00:00Z"},
			{Timestamp: "2026-07-01T12:05:00Z"},
			{Timestamp: "2026-07-01T12:10:00Z"},
		}
		start, end, duration := resolveTimestamps(deltas)

		approx(t, "duration", duration, 10, 0.001)
		if !start.Equal(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)) {
			t.Errorf("start = %v", start)
		}
		if !end.Equal(time.Date(2026, 7, 1, 12, 10, 0, 0, time.UTC)) {
			t.Errorf("end = %v", end)
		}
	})

	t.Run("no timezone suffix treated as UTC", func(t *testing.T) {
		deltas := []models.DeltaSample{
			{Timestamp: "2026-07-01T12:00:00"},
			{Timestamp: "2026-07-01T12:03:00"},
		}
		_, _, duration := resolveTimestamps(deltas)
		approx(t, "duration", duration, 3, 0.001)
	})

	t.Run("fallback to accumulated delta time", func(t *testing.T) {
		var deltas []models.DeltaSample
		for i := 0; i < 300; i++ {
			deltas = append(deltas, models.DeltaSample{DeltaTimeMs: 1000})
		}
		_, _, duration := resolveTimestamps(deltas)
		approx(t, "duration", duration, 5, 0.001)
	})

	t.Run("minimum one minute", func(t *testing.T) {
		deltas := []models.DeltaSample{
			{Timestamp: "2026-07-01T12:00:00Z"},
			{Timestamp: "2026-07-01T12:00:05Z"},
		}
		_, _, duration := resolveTimestamps(deltas)
		approx(t, "duration", duration, 1, 0.001)
	})
}
