package analysis

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tripscore/internal/models"
)

// Input 单次分析的全部输入，调用前已在内存中就绪
type Input struct {
	TripID    string
	Deltas    []models.DeltaSample
	BasePoint models.BasePoint
	Trip      *models.Trip // 可选的已存行程元数据
}

// ContextSummary 输出里的场景摘要
type ContextSummary struct {
	Label      ContextLabel `json:"context"`
	Confidence float64      `json:"confidence"`
}

// Result 单行程分析结果，管线唯一的持久化产物
type Result struct {
	TripID            string    `json:"trip_id"`
	StartTimestamp    time.Time `json:"start_timestamp"`
	EndTimestamp      time.Time `json:"end_timestamp"`
	DurationMinutes   float64   `json:"duration_minutes"`
	FormattedDuration string    `json:"formatted_duration"`

	TotalDistanceMiles float64 `json:"total_distance_miles"`
	AvgSpeedMph        float64 `json:"avg_speed_mph"`
	MovingAvgSpeedMph  float64 `json:"moving_avg_speed_mph"`
	MaxSpeedMph        float64 `json:"max_speed_mph"`
	MinSpeedMph        float64 `json:"min_speed_mph"`
	SpeedConsistency   float64 `json:"speed_consistency"`

	MovingTimeMinutes     float64 `json:"moving_time_minutes"`
	StationaryTimeMinutes float64 `json:"stationary_time_minutes"`
	MovingPercentage      float64 `json:"moving_percentage"`

	TotalHarshEvents     int     `json:"total_harsh_events"`
	TotalDangerousEvents int     `json:"total_dangerous_events"`
	SuddenAccelerations  int     `json:"sudden_accelerations"`
	SuddenDecelerations  int     `json:"sudden_decelerations"`
	HardStops            int     `json:"hard_stops"`
	SmoothnessScore      float64 `json:"smoothness_score"`

	EventsPer100Miles         float64 `json:"events_per_100_miles"`
	WeightedEventsPer100Miles float64 `json:"weighted_events_per_100_miles"`
	HarshEventsPerHour        float64 `json:"harsh_events_per_hour"`
	IndustryRating            Rating  `json:"industry_rating"`
	FrequencyScore            float64 `json:"frequency_score"`

	TotalTurns      int     `json:"total_turns"`
	SafeTurns       int     `json:"safe_turns"`
	ModerateTurns   int     `json:"moderate_turns"`
	AggressiveTurns int     `json:"aggressive_turns"`
	DangerousTurns  int     `json:"dangerous_turns"`
	TurnSafetyScore float64 `json:"turn_safety_score"`

	BehaviorScore    float64          `json:"behavior_score"`
	BehaviorCategory BehaviorCategory `json:"behavior_category"`
	RiskLevel        string           `json:"risk_level"`
	DrivingContext   ContextSummary   `json:"driving_context"`

	PrivacyProtected bool             `json:"privacy_protected"`
	BasePointCity    string           `json:"base_point_city"`
	DataSource       string           `json:"data_source"`
	CoordinateFormat CoordinateFormat `json:"coordinate_format"`
	AlgorithmVersion string           `json:"algorithm_version"`
	FromCache        bool             `json:"from_cache"`
}

// Analyzer 行程分析管线
// 纯同步计算，无内部并发也不做 I/O，多个行程可安全并行各跑一个实例调用
type Analyzer struct {
	logger *zap.Logger
	th     Thresholds
}

// NewAnalyzer 创建分析器
func NewAnalyzer(logger *zap.Logger, th Thresholds) *Analyzer {
	return &Analyzer{logger: logger, th: th}
}

// Analyze 跑完整评分管线
// 归一化 → 场景识别 → {行驶拆分, 加减速事件, 转弯安全} → 一致性 / 频率 → 综合评分
func (a *Analyzer) Analyze(in Input) (*Result, error) {
	if len(in.Deltas) < 2 {
		return nil, fmt.Errorf("trip %s: %w", in.TripID, ErrInsufficientData)
	}

	var (
		distanceMiles float64
		duration      float64
		startTime     time.Time
		endTime       time.Time
		maxSpeed      float64
		avgSpeed      float64
		bearings      []float64
		totalTurns    int
		dataSource    string
		format        CoordinateFormat
	)

	speeds := extractSpeeds(in.Deltas)
	intervals := extractIntervals(in.Deltas)

	if in.Trip != nil && in.Trip.Quality != nil && in.Trip.Quality.UseGPSMetrics {
		// 前端已上报精确指标，跳过坐标重建（此时没有方位序列，转弯分析走回落值）
		q := in.Trip.Quality
		distanceMiles = q.ActualDistanceMiles
		duration = q.ActualDurationMin
		maxSpeed = q.GPSMaxSpeedMph
		avgSpeed = q.GPSAvgSpeedMph
		dataSource = "frontend_exact"
		format = FormatFrontend
		startTime, endTime, _ = resolveTimestamps(in.Deltas)
	} else {
		series, err := buildSeries(in.Deltas, in.BasePoint)
		if err != nil {
			return nil, fmt.Errorf("trip %s: %w", in.TripID, err)
		}
		distanceMiles = series.DistanceMiles
		bearings = series.Bearings
		totalTurns = series.TotalTurns
		dataSource = "delta_coordinates"
		format = series.Format

		startTime, endTime, duration = resolveTimestamps(in.Deltas)
	}

	// 行程元数据里的时间戳优先于增量推断
	if in.Trip != nil {
		if in.Trip.StartTimestamp != nil {
			startTime = *in.Trip.StartTimestamp
		}
		if in.Trip.EndTimestamp != nil {
			endTime = *in.Trip.EndTimestamp
		}
	}

	if distanceMiles <= 0 {
		return nil, fmt.Errorf("trip %s: %w", in.TripID, ErrInvalidDistance)
	}

	ctx := DetectContext(speeds, distanceMiles, totalTurns, a.th)
	moving := CalculateMovingMetrics(speeds, intervals)
	accel := AnalyzeAcceleration(speeds, intervals, distanceMiles, ctx, a.th)
	consistency := CalculateSpeedConsistency(speeds, ctx, a.th)
	frequency := CalculateFrequencyMetrics(accel.HarshEvents, accel.DangerousEvents, distanceMiles, ctx, a.th)

	turns := TurnAnalysis{TurnSafetyScore: 85.0}
	if len(bearings) > 0 {
		turns = AnalyzeTurns(bearings, speeds, ctx, a.th)
	}

	score := CompositeScore(consistency, accel, turns, frequency, distanceMiles, a.th.Weights)

	if maxSpeed == 0 && len(speeds) > 0 {
		maxSpeed = maxOf(speeds)
	}
	if avgSpeed == 0 && len(speeds) > 0 {
		avgSpeed = mean(speeds)
	}
	minSpeed := 0.0
	if len(speeds) > 0 {
		minSpeed = minOf(speeds)
	}

	harshPerHour := 0.0
	if duration > 0 {
		harshPerHour = float64(accel.HarshEvents) / duration * 60
	}

	a.logger.Debug("Trip analysis complete",
		zap.String("trip_id", in.TripID),
		zap.String("context", string(ctx.Label)),
		zap.Float64("behavior_score", score),
		zap.Int("harsh_events", accel.HarshEvents),
		zap.Float64("distance_miles", distanceMiles))

	return &Result{
		TripID:            in.TripID,
		StartTimestamp:    startTime,
		EndTimestamp:      endTime,
		DurationMinutes:   duration,
		FormattedDuration: FormatDuration(duration),

		TotalDistanceMiles: distanceMiles,
		AvgSpeedMph:        round1(avgSpeed),
		MovingAvgSpeedMph:  round1(moving.MovingAvgSpeedMph),
		MaxSpeedMph:        round1(maxSpeed),
		MinSpeedMph:        round1(minSpeed),
		SpeedConsistency:   round1(consistency),

		MovingTimeMinutes:     round1(moving.MovingTimeMinutes),
		StationaryTimeMinutes: round1(moving.StationaryTimeMinutes),
		MovingPercentage:      round1(moving.MovingPercentage),

		TotalHarshEvents:     accel.HarshEvents,
		TotalDangerousEvents: accel.DangerousEvents,
		SuddenAccelerations:  accel.SuddenAccelerations,
		SuddenDecelerations:  accel.SuddenDecelerations,
		HardStops:            accel.HardStops,
		SmoothnessScore:      round1(accel.SmoothnessScore),

		EventsPer100Miles:         round2(frequency.EventsPer100Miles),
		WeightedEventsPer100Miles: round2(frequency.WeightedEventsPer100Miles),
		HarshEventsPerHour:        round2(harshPerHour),
		IndustryRating:            frequency.IndustryRating,
		FrequencyScore:            frequency.FrequencyScore,

		TotalTurns:      turns.TotalTurns,
		SafeTurns:       turns.SafeTurns,
		ModerateTurns:   turns.ModerateTurns,
		AggressiveTurns: turns.AggressiveTurns,
		DangerousTurns:  turns.DangerousTurns,
		TurnSafetyScore: round1(turns.TurnSafetyScore),

		BehaviorScore:    round1(score),
		BehaviorCategory: CategoryForScore(score),
		RiskLevel:        RiskLevelForScore(score),
		DrivingContext:   ContextSummary{Label: ctx.Label, Confidence: ctx.Confidence},

		PrivacyProtected: in.BasePoint.Source != "fallback",
		BasePointCity:    in.BasePoint.City,
		DataSource:       dataSource,
		CoordinateFormat: format,
		AlgorithmVersion: AlgorithmVersion,
	}, nil
}

// resolveTimestamps 从增量里的时间戳推断起止时间和时长
// 解析出的时间戳不足两个时退化为累加耗时，时长下限 1 分钟
func resolveTimestamps(deltas []models.DeltaSample) (time.Time, time.Time, float64) {
	var timestamps []time.Time
	for _, d := range deltas {
		if d.Timestamp == "" {
			continue
		}
		if ts, err := parseTimestamp(d.Timestamp); err == nil {
			timestamps = append(timestamps, ts)
		}
	}

	if len(timestamps) >= 2 {
		start, end := timestamps[0], timestamps[0]
		for _, ts := range timestamps[1:] {
			if ts.Before(start) {
				start = ts
			}
			if ts.After(end) {
				end = ts
			}
		}
		duration := math.Max(1.0, end.Sub(start).Minutes())
		return start, end, duration
	}

	totalMs := 0.0
	for _, d := range deltas {
		t := d.DeltaTimeMs
		if t <= 0 {
			t = defaultDeltaTimeMs
		}
		totalMs += t
	}
	duration := math.Max(1.0, totalMs/(1000*60))
	end := time.Now().UTC()
	return end.Add(-time.Duration(duration * float64(time.Minute))), end, duration
}

// parseTimestamp 解析 ISO 时间戳，无时区后缀按 UTC 处理
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
}

// FormatDuration 智能时长格式: "45m" / "2h" / "1h 23m"
func FormatDuration(minutes float64) string {
	total := int(math.Round(minutes))
	if total < 60 {
		return fmt.Sprintf("%dm", total)
	}
	hours := total / 60
	remaining := total % 60
	if remaining == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, remaining)
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
