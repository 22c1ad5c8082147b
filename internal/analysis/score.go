package analysis

import "math"

// BehaviorCategory 行为评分分类
type BehaviorCategory string

const (
	BehaviorExcellent BehaviorCategory = "Excellent"
	BehaviorVeryGood  BehaviorCategory = "Very Good"
	BehaviorGood      BehaviorCategory = "Good"
	BehaviorFair      BehaviorCategory = "Fair"
	BehaviorPoor      BehaviorCategory = "Poor"
	BehaviorDangerous BehaviorCategory = "Dangerous"
)

// CompositeScore 综合行为评分 [30,100]
// 频率 / 平顺 / 一致性 / 转弯按配置权重加权，
// 危险事件密度超过 0.5/英里 时额外扣最多 15 分
func CompositeScore(
	consistency float64,
	accel AccelerationAnalysis,
	turns TurnAnalysis,
	frequency FrequencyAnalysis,
	distanceMiles float64,
	w ScoreWeights,
) float64 {
	base := frequency.FrequencyScore*w.Frequency +
		accel.SmoothnessScore*w.Smoothness +
		consistency*w.Consistency +
		turns.TurnSafetyScore*w.TurnSafety

	if distanceMiles > 0 && accel.DangerousEvents > 0 {
		dangerousPerMile := float64(accel.DangerousEvents) / distanceMiles
		if dangerousPerMile > 0.5 {
			penalty := math.Min(15, dangerousPerMile*20)
			base = math.Max(30, base-penalty)
		}
	}

	return math.Max(30, math.Min(100, base))
}

// CategoryForScore 评分 → 分类
func CategoryForScore(score float64) BehaviorCategory {
	switch {
	case score >= 85:
		return BehaviorExcellent
	case score >= 75:
		return BehaviorVeryGood
	case score >= 65:
		return BehaviorGood
	case score >= 55:
		return BehaviorFair
	case score >= 40:
		return BehaviorPoor
	default:
		return BehaviorDangerous
	}
}

// RiskLevelForScore 评分 → 风险等级（与分类保持同向）
func RiskLevelForScore(score float64) string {
	switch {
	case score >= 80:
		return "Very Low Risk"
	case score >= 70:
		return "Low Risk"
	case score >= 50:
		return "Medium Risk"
	case score >= 40:
		return "High Risk"
	default:
		return "Very High Risk"
	}
}
