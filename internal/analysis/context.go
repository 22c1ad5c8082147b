package analysis

import "math"

// Context 行程驾驶场景
// 检测一次，下游各阶段只读共享
type Context struct {
	Label           ContextLabel `json:"context"`
	CityProbability float64      `json:"city_probability"`
	Confidence      float64      `json:"confidence"`
	HarshAccel      float64      `json:"harsh_accel_threshold"`
	HarshDecel      float64      `json:"harsh_decel_threshold"`
	AvgSpeed        float64      `json:"avg_speed"`
	SpeedStdev      float64      `json:"speed_variance"`
	StopsPerMile    float64      `json:"stops_per_mile"`
	TurnsPerMile    float64      `json:"turns_per_mile"`
}

// DetectContext 从速度序列、距离和转弯数识别城市/高速/混合场景
// 五个指标各投出一个城市概率票，均值 >0.60 判城市、<0.40 判高速；
// 样本不足 5 个或距离非正时回落到 mixed、置信度 0
func DetectContext(speeds []float64, distanceMiles float64, totalTurns int, th Thresholds) Context {
	if len(speeds) < 5 || distanceMiles <= 0 {
		return Context{
			Label:      ContextMixed,
			Confidence: 0,
			HarshAccel: th.FallbackHarshAccel,
			HarshDecel: th.FallbackHarshDecel,
		}
	}

	avgSpeed := mean(speeds)
	speedStdev := stdev(speeds)

	stops := 0
	highwayPoints := 0
	for _, s := range speeds {
		if s < 5.0 {
			stops++
		}
		if s > 50.0 {
			highwayPoints++
		}
	}
	stopsPerMile := float64(stops) / distanceMiles
	turnsPerMile := float64(totalTurns) / distanceMiles
	highwayFraction := float64(highwayPoints) / float64(len(speeds))

	d := th.Detection
	votes := []float64{
		vote(avgSpeed, d.CityAvgSpeed, d.HighwayAvgSpeed, 0.8, 0.2),
		voteInverted(speedStdev, d.HighwaySpeedVariance, d.CitySpeedVariance, 0.3, 0.7),
		voteInverted(stopsPerMile, d.HighwayStopsPerMile, d.CityStopsPerMile, 0.1, 0.9),
		voteInverted(turnsPerMile, d.HighwayTurnsPerMile, d.CityTurnsPerMile, 0.2, 0.8),
		voteInverted(highwayFraction, 0.1, 0.5, 0.9, 0.1),
	}

	probability := mean(votes)
	confidence := 1.0 - math.Abs(probability-0.5)*2

	var label ContextLabel
	switch {
	case probability > 0.60:
		label = ContextCity
	case probability < 0.40:
		label = ContextHighway
	default:
		label = ContextMixed
	}

	harshAccel, harshDecel := th.Base.ForContext(label)

	return Context{
		Label:           label,
		CityProbability: probability,
		Confidence:      confidence,
		HarshAccel:      harshAccel,
		HarshDecel:      harshDecel,
		AvgSpeed:        avgSpeed,
		SpeedStdev:      speedStdev,
		StopsPerMile:    stopsPerMile,
		TurnsPerMile:    turnsPerMile,
	}
}

// vote 值低于 low 判城市票 belowVote，高于 high 判 aboveVote，中间 0.5
func vote(value, low, high, belowVote, aboveVote float64) float64 {
	switch {
	case value < low:
		return belowVote
	case value > high:
		return aboveVote
	default:
		return 0.5
	}
}

// voteInverted 值低判高速、值高判城市的指标
func voteInverted(value, low, high, belowVote, aboveVote float64) float64 {
	switch {
	case value > high:
		return aboveVote
	case value < low:
		return belowVote
	default:
		return 0.5
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdev 样本标准差
func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// variance 样本方差
func variance(values []float64) float64 {
	s := stdev(values)
	return s * s
}
