package analysis

import "math"

// TurnSeverity 转弯严重程度
type TurnSeverity string

const (
	TurnSafe       TurnSeverity = "safe"
	TurnModerate   TurnSeverity = "moderate"
	TurnAggressive TurnSeverity = "aggressive"
	TurnDangerous  TurnSeverity = "dangerous"
)

// Turn 一次累积识别出的转弯
type Turn struct {
	AngleDeg     float64      `json:"angle"`
	MaxSpeedMph  float64      `json:"speed"`
	AvgSpeedMph  float64      `json:"avg_speed"`
	SafeSpeedMph float64      `json:"safe_speed"`
	SpeedRatio   float64      `json:"speed_ratio"`
	Severity     TurnSeverity `json:"severity"`
	Points       int          `json:"duration_points"`
}

// TurnAnalysis 转弯安全分析结果
type TurnAnalysis struct {
	TotalTurns      int     `json:"total_turns"`
	SafeTurns       int     `json:"safe_turns"`
	ModerateTurns   int     `json:"moderate_turns"`
	AggressiveTurns int     `json:"aggressive_turns"`
	DangerousTurns  int     `json:"dangerous_turns"`
	TurnSafetyScore float64 `json:"turn_safety_score"`
	Turns           []Turn  `json:"-"`
}

// 转弯累积参数：单步超过 8° 才累积，累计满 20° 才算一次转弯
const (
	turnStepThreshold = 8.0
	minTurnAngle      = 20.0
)

// AnalyzeTurns 转弯安全分析
// 连续方位变化累积成弯，按场景和弯角查安全速度表，用弯内峰值车速算超速比定级
func AnalyzeTurns(bearings, speeds []float64, ctx Context, th Thresholds) TurnAnalysis {
	if len(bearings) < 3 || len(speeds) < 3 {
		return TurnAnalysis{TurnSafetyScore: 95.0}
	}

	type turnGroup struct {
		totalAngle float64
		speeds     []float64
	}

	var groups []turnGroup
	accumulator := 0.0
	var groupSpeeds []float64

	flush := func() {
		if accumulator >= minTurnAngle {
			groups = append(groups, turnGroup{totalAngle: accumulator, speeds: groupSpeeds})
		}
		accumulator = 0
		groupSpeeds = nil
	}

	for i := 1; i < len(bearings); i++ {
		change := bearingChange(bearings[i-1], bearings[i])

		if change > turnStepThreshold {
			accumulator += change
			s := 0.0
			if i < len(speeds) {
				s = speeds[i]
			}
			groupSpeeds = append(groupSpeeds, s)
		} else {
			flush()
		}
	}
	flush()

	var result TurnAnalysis
	for _, gr := range groups {
		maxSpeed := 0.0
		for _, s := range gr.speeds {
			maxSpeed = math.Max(maxSpeed, s)
		}

		safeSpeed := th.SafeSpeed.ForAngle(ctx.Label, gr.totalAngle)
		ratio := 0.0
		if safeSpeed > 0 {
			ratio = maxSpeed / safeSpeed
		}

		var severity TurnSeverity
		switch {
		case ratio <= 1.15:
			severity = TurnSafe
			result.SafeTurns++
		case ratio <= 1.4:
			severity = TurnModerate
			result.ModerateTurns++
		case ratio <= 1.7:
			severity = TurnAggressive
			result.AggressiveTurns++
		default:
			severity = TurnDangerous
			result.DangerousTurns++
		}

		result.Turns = append(result.Turns, Turn{
			AngleDeg:     gr.totalAngle,
			MaxSpeedMph:  maxSpeed,
			AvgSpeedMph:  mean(gr.speeds),
			SafeSpeedMph: safeSpeed,
			SpeedRatio:   ratio,
			Severity:     severity,
			Points:       len(gr.speeds),
		})
	}

	result.TotalTurns = len(result.Turns)
	result.TurnSafetyScore = turnSafetyScore(result)
	return result
}

// turnSafetyScore 安全弯计满分、中等 0.7、激进 0.3，危险弯按占比最多再扣 30 分，下限 20
func turnSafetyScore(t TurnAnalysis) float64 {
	if t.TotalTurns == 0 {
		return 95.0
	}

	safetyRatio := (float64(t.SafeTurns) + float64(t.ModerateTurns)*0.7 + float64(t.AggressiveTurns)*0.3) / float64(t.TotalTurns)
	score := safetyRatio * 100

	if t.DangerousTurns > 0 {
		penalty := float64(t.DangerousTurns) / float64(t.TotalTurns) * 30
		score = math.Max(20, score-penalty)
	}

	return score
}
