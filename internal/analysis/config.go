package analysis

// AlgorithmVersion 当前评分算法版本号
// 任何阈值、过滤器或权重变动都必须同步递增，否则缓存会继续吐出旧算法的结果
const AlgorithmVersion = "3.0_moving_average_event_grouping"

// 单位换算与基础常量
const (
	earthRadiusMiles  = 3959.0
	fixedPointDivisor = 1000000.0
	milesPerDegree    = 69.0
	mphToMs2          = 0.44704 // mph/s -> m/s²

	movingThresholdMph = 3.0  // 低于该均速的分段视为静止
	maxSpeedMph        = 150.0 // 客户端测速可信上限
	maxComputedSpeed   = 120.0 // 增量推算速度上限
	defaultDeltaTimeMs = 1000.0
)

// ContextLabel 驾驶场景标签
type ContextLabel string

const (
	ContextCity    ContextLabel = "city"
	ContextHighway ContextLabel = "highway"
	ContextMixed   ContextLabel = "mixed"
)

// BaseThresholds 急加减速基准阈值 (m/s²)
// 参考 Geotab / Verizon Connect / Samsara 公布的遥测标准，1g = 9.81 m/s²
type BaseThresholds struct {
	CityHarshAccel    float64
	HighwayHarshAccel float64
	CityHarshDecel    float64
	HighwayHarshDecel float64
	DangerousAccel    float64
	DangerousDecel    float64
}

// ContextDetection 场景识别断点
type ContextDetection struct {
	CityAvgSpeed         float64
	HighwayAvgSpeed      float64
	CitySpeedVariance    float64
	HighwaySpeedVariance float64
	CityStopsPerMile     float64
	HighwayStopsPerMile  float64
	CityTurnsPerMile     float64
	HighwayTurnsPerMile  float64
}

// FrequencyBenchmarks 每百英里事件数行业基准
type FrequencyBenchmarks struct {
	Exceptional float64
	Excellent   float64
	VeryGood    float64
	Good        float64
	Fair        float64
	Poor        float64
}

// TurnSafeSpeeds 转弯安全速度表 (mph)
// 四个角度档位：>90°、>60°、>40°、以及 20°-40° 的缓弯
type TurnSafeSpeeds struct {
	City    [4]float64
	Highway [4]float64
	Mixed   [4]float64
}

// ScoreWeights 综合评分权重
type ScoreWeights struct {
	Frequency   float64
	Smoothness  float64
	Consistency float64
	TurnSafety  float64
}

// Thresholds 分析管线的全部可调参数
// 一次性构建后只读共享；单元测试可以注入覆盖值做确定性验证
type Thresholds struct {
	Base      BaseThresholds
	Detection ContextDetection
	Frequency FrequencyBenchmarks
	SafeSpeed TurnSafeSpeeds
	Weights   ScoreWeights

	// 事件分组进入阈值 (m/s²)
	AccelEntry float64
	DecelEntry float64

	// 场景置信度不足时的回落阈值
	FallbackHarshAccel float64
	FallbackHarshDecel float64

	// 速度一致性的场景容忍系数
	CityVarianceTolerance    float64
	CityChangeTolerance      float64
	HighwayVarianceTolerance float64
	HighwayChangeTolerance   float64
}

// DefaultThresholds 生产参数
// 这些是经验调参值，没有解析推导；调整视为产品决策并需要升级 AlgorithmVersion
func DefaultThresholds() Thresholds {
	return Thresholds{
		Base: BaseThresholds{
			CityHarshAccel:    3.5,
			HighwayHarshAccel: 3.0,
			CityHarshDecel:    -4.5,
			HighwayHarshDecel: -4.0,
			DangerousAccel:    5.0,
			DangerousDecel:    -6.0,
		},
		Detection: ContextDetection{
			CityAvgSpeed:         30.0,
			HighwayAvgSpeed:      45.0,
			CitySpeedVariance:    10.0,
			HighwaySpeedVariance: 6.0,
			CityStopsPerMile:     1.5,
			HighwayStopsPerMile:  0.2,
			CityTurnsPerMile:     2.0,
			HighwayTurnsPerMile:  0.3,
		},
		Frequency: FrequencyBenchmarks{
			Exceptional: 5.0,
			Excellent:   15.0,
			VeryGood:    30.0,
			Good:        50.0,
			Fair:        80.0,
			Poor:        120.0,
		},
		SafeSpeed: TurnSafeSpeeds{
			City:    [4]float64{15, 22, 28, 35},
			Highway: [4]float64{30, 40, 50, 60},
			Mixed:   [4]float64{22, 30, 38, 45},
		},
		Weights: ScoreWeights{
			Frequency:   0.35,
			Smoothness:  0.25,
			Consistency: 0.25,
			TurnSafety:  0.15,
		},
		AccelEntry:               1.5,
		DecelEntry:               -2.0,
		FallbackHarshAccel:       3.2,
		FallbackHarshDecel:       -4.2,
		CityVarianceTolerance:    1.3,
		CityChangeTolerance:      1.2,
		HighwayVarianceTolerance: 0.8,
		HighwayChangeTolerance:   0.9,
	}
}

// ForContext 根据场景选择急加减速阈值，mixed 取城市和高速的中点
func (b BaseThresholds) ForContext(label ContextLabel) (harshAccel, harshDecel float64) {
	switch label {
	case ContextCity:
		return b.CityHarshAccel, b.CityHarshDecel
	case ContextHighway:
		return b.HighwayHarshAccel, b.HighwayHarshDecel
	default:
		return (b.CityHarshAccel + b.HighwayHarshAccel) / 2,
			(b.CityHarshDecel + b.HighwayHarshDecel) / 2
	}
}

// ForAngle 按累计转角查安全速度
func (s TurnSafeSpeeds) ForAngle(label ContextLabel, angleDeg float64) float64 {
	var bands [4]float64
	switch label {
	case ContextCity:
		bands = s.City
	case ContextHighway:
		bands = s.Highway
	default:
		bands = s.Mixed
	}

	switch {
	case angleDeg > 90:
		return bands[0]
	case angleDeg > 60:
		return bands[1]
	case angleDeg > 40:
		return bands[2]
	default:
		return bands[3]
	}
}
