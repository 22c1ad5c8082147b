package analysis

import "math"

// Rating 频率行业评级
type Rating string

const (
	RatingExceptional Rating = "Exceptional"
	RatingExcellent   Rating = "Excellent"
	RatingVeryGood    Rating = "Very Good"
	RatingGood        Rating = "Good"
	RatingFair        Rating = "Fair"
	RatingPoor        Rating = "Poor"
	RatingDangerous   Rating = "Dangerous"
)

// FrequencyAnalysis 事件频率分析结果
type FrequencyAnalysis struct {
	EventsPer100Miles         float64 `json:"events_per_100_miles"`
	WeightedEventsPer100Miles float64 `json:"weighted_events_per_100_miles"`
	DangerousPer100Miles      float64 `json:"dangerous_events_per_100_miles"`
	IndustryRating            Rating  `json:"industry_rating"`
	FrequencyScore            float64 `json:"frequency_score"`
	RiskPercentile            float64 `json:"risk_percentile"`
	ContextWeight             float64 `json:"context_weight"`
	HarshEventsPerHour        float64 `json:"harsh_events_per_hour,omitempty"`
}

// CalculateFrequencyMetrics 按每百英里事件数对照行业基准评级
// 短途行程统计噪声大，按距离折减权重避免过罚；城市场景也有温和折减。
// 危险事件频率超过 1/100mi 额外扣分并可能降档
func CalculateFrequencyMetrics(harshEvents, dangerousEvents int, distanceMiles float64, ctx Context, th Thresholds) FrequencyAnalysis {
	if distanceMiles <= 0 {
		return FrequencyAnalysis{
			IndustryRating: RatingExcellent,
			FrequencyScore: 95,
			RiskPercentile: 95,
		}
	}

	rawPer100 := float64(harshEvents) / distanceMiles * 100
	dangerousPer100 := float64(dangerousEvents) / distanceMiles * 100

	contextWeight := 0.92
	switch ctx.Label {
	case ContextCity:
		contextWeight = 0.85
	case ContextHighway:
		contextWeight = 1.0
	}

	var distanceWeight float64
	switch {
	case distanceMiles <= 0.5:
		distanceWeight = 0.5
	case distanceMiles <= 1.0:
		distanceWeight = 0.7
	case distanceMiles <= 2.0:
		distanceWeight = 0.85
	default:
		distanceWeight = 1.0
	}

	finalWeight := contextWeight * distanceWeight
	weighted := rawPer100 * finalWeight

	rating, score, percentile := rateFrequency(weighted, th.Frequency)

	// 危险事件惩罚，最多 10 分，且可把高评级压低一档
	if dangerousPer100 > 1.0 {
		penalty := math.Min(10, dangerousPer100*5)
		score = math.Max(20, score-penalty)

		if (rating == RatingExceptional || rating == RatingExcellent) && dangerousPer100 > 2.0 {
			rating = RatingVeryGood
		} else if rating == RatingVeryGood && dangerousPer100 > 3.0 {
			rating = RatingGood
		}
	}

	return FrequencyAnalysis{
		EventsPer100Miles:         rawPer100,
		WeightedEventsPer100Miles: weighted,
		DangerousPer100Miles:      dangerousPer100,
		IndustryRating:            rating,
		FrequencyScore:            score,
		RiskPercentile:            percentile,
		ContextWeight:             finalWeight,
	}
}

// rateFrequency 加权频率对照基准表
func rateFrequency(weighted float64, b FrequencyBenchmarks) (Rating, float64, float64) {
	switch {
	case weighted <= b.Exceptional:
		return RatingExceptional, 95, 95
	case weighted <= b.Excellent:
		return RatingExcellent, 85, 85
	case weighted <= b.VeryGood:
		return RatingVeryGood, 75, 75
	case weighted <= b.Good:
		return RatingGood, 65, 65
	case weighted <= b.Fair:
		return RatingFair, 55, 55
	case weighted <= b.Poor:
		return RatingPoor, 40, 40
	default:
		return RatingDangerous, 25, 25
	}
}
