package analysis

// MovingMetrics 行驶/静止时间拆分结果
type MovingMetrics struct {
	MovingAvgSpeedMph     float64 `json:"moving_avg_speed_mph"`
	MovingTimeMinutes     float64 `json:"moving_time_minutes"`
	StationaryTimeMinutes float64 `json:"stationary_time_minutes"`
	MovingPercentage      float64 `json:"moving_percentage"`
	MovingDistanceMiles   float64 `json:"moving_distance_miles"`
}

// CalculateMovingMetrics 把行程切分为行驶段和静止段
// 相邻速度均值 ≥3 mph 记为行驶；耗时非正或超过 60s 的分段视为数据间隙整段跳过。
// 行驶距离用梯形法对速度积分；全程静止返回 0 均速而不是除零
func CalculateMovingMetrics(speeds, intervalsMs []float64) MovingMetrics {
	if len(speeds) < 2 || len(intervalsMs) < len(speeds)-1 {
		return MovingMetrics{}
	}

	movingTimeMs := 0.0
	stationaryTimeMs := 0.0
	movingDistance := 0.0

	for i := 0; i < len(speeds)-1; i++ {
		if i >= len(intervalsMs) {
			continue
		}

		timeMs := intervalsMs[i]
		if timeMs <= 0 || timeMs > 60000 {
			continue
		}

		segmentSpeed := (speeds[i] + speeds[i+1]) / 2

		if segmentSpeed >= movingThresholdMph {
			movingTimeMs += timeMs
			movingDistance += segmentSpeed * timeMs / (1000 * 3600)
		} else {
			stationaryTimeMs += timeMs
		}
	}

	totalTimeMs := movingTimeMs + stationaryTimeMs
	m := MovingMetrics{
		MovingTimeMinutes:     movingTimeMs / (1000 * 60),
		StationaryTimeMinutes: stationaryTimeMs / (1000 * 60),
		MovingDistanceMiles:   movingDistance,
	}

	if movingTimeMs > 0 {
		m.MovingAvgSpeedMph = movingDistance / (movingTimeMs / (1000 * 3600))
		if totalTimeMs > 0 {
			m.MovingPercentage = movingTimeMs / totalTimeMs * 100
		}
	}

	return m
}
