package analysis

import "math"

// 速度一致性窗口参数
const (
	consistencyWindowSize   = 6
	consistencyWindowStride = 3
	minMovingSpeedMph       = 2.0
	maxStationaryStreak     = 4
)

// CalculateSpeedConsistency 速度一致性评分 (20-100)
// 先剔除超过 4 个连续样本的长怠速段（短暂停留保留，长怠速会人为压低方差），
// 再按 6 样本窗口、步长 3 做方差和逐步变化分析，经场景容忍系数调整后查表打分；
// 窗口分 60% 方差 + 40% 变化加权取均值，窗口间分数稳定再加 3 分
func CalculateSpeedConsistency(speeds []float64, ctx Context, th Thresholds) float64 {
	if len(speeds) < consistencyWindowSize {
		return 75.0
	}

	filtered := make([]float64, 0, len(speeds))
	stationaryStreak := 0
	for _, s := range speeds {
		if s < minMovingSpeedMph {
			stationaryStreak++
			if stationaryStreak <= maxStationaryStreak {
				filtered = append(filtered, s)
			}
		} else {
			stationaryStreak = 0
			filtered = append(filtered, s)
		}
	}

	if len(filtered) < 5 {
		return 70.0
	}

	varianceTolerance, changeTolerance := 1.0, 1.0
	switch ctx.Label {
	case ContextCity:
		varianceTolerance = th.CityVarianceTolerance
		changeTolerance = th.CityChangeTolerance
	case ContextHighway:
		varianceTolerance = th.HighwayVarianceTolerance
		changeTolerance = th.HighwayChangeTolerance
	}

	var windowScores []float64
	for start := 0; start+consistencyWindowSize <= len(filtered); start += consistencyWindowStride {
		window := filtered[start : start+consistencyWindowSize]

		changes := make([]float64, 0, len(window)-1)
		for i := 0; i < len(window)-1; i++ {
			changes = append(changes, math.Abs(window[i+1]-window[i]))
		}

		adjustedVariance := variance(window) / varianceTolerance
		adjustedChange := mean(changes) / changeTolerance

		windowScores = append(windowScores, varianceScore(adjustedVariance)*0.6+changeScore(adjustedChange)*0.4)
	}

	finalScore := 65.0
	if len(windowScores) > 0 {
		finalScore = mean(windowScores)
		if len(windowScores) > 1 && variance(windowScores) < 100 {
			finalScore = math.Min(100, finalScore+3)
		}
	}

	return math.Max(20, math.Min(100, finalScore))
}

// varianceScore 调整后方差 → 子分
func varianceScore(v float64) float64 {
	switch {
	case v <= 4.0:
		return 95
	case v <= 8.0:
		return 80
	case v <= 15.0:
		return 65
	case v <= 25.0:
		return 45
	default:
		return 25
	}
}

// changeScore 调整后平均逐步变化 → 子分
func changeScore(c float64) float64 {
	switch {
	case c <= 3:
		return 95
	case c <= 6:
		return 80
	case c <= 10:
		return 65
	case c <= 15:
		return 45
	default:
		return 25
	}
}
