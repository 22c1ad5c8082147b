package analysis

import (
	"errors"
	"math"

	"github.com/langchou/tripscore/internal/models"
)

// ErrInsufficientData 有效采样点不足，无法分析
var ErrInsufficientData = errors.New("insufficient delta samples")

// ErrInvalidDistance 重建距离非正，行程作废
var ErrInvalidDistance = errors.New("invalid trip distance")

// CoordinateFormat 增量坐标编码格式
type CoordinateFormat string

const (
	FormatFixedPoint CoordinateFormat = "fixed_point" // 定点整数，除以 1e6
	FormatDecimal    CoordinateFormat = "decimal"     // 十进制度
	FormatFrontend   CoordinateFormat = "frontend_direct"
)

// MotionSeries 归一化后的运动序列
// Speeds 与原始增量一一对应；Intervals[i] 是从第 i 点到第 i+1 点的耗时；
// Bearings 由重建坐标推出，首点没有前驱方位所以长度少一
type MotionSeries struct {
	Speeds        []float64 // mph
	IntervalsMs   []float64
	Bearings      []float64 // 0-360°
	DistanceMiles float64
	TotalTurns    int
	Format        CoordinateFormat
}

// detectCoordinateFormat 按首个样本的量级判断编码
// 定点编码下哪怕很小的位移也远大于 0.01，十进制度的增量则远小于它
func detectCoordinateFormat(deltas []models.DeltaSample) (CoordinateFormat, float64) {
	if len(deltas) == 0 {
		return FormatDecimal, 1.0
	}
	if math.Abs(deltas[0].DeltaLat) > 0.01 || math.Abs(deltas[0].DeltaLong) > 0.01 {
		return FormatFixedPoint, fixedPointDivisor
	}
	return FormatDecimal, 1.0
}

// extractSpeeds 逐点解析速度
// 优先采用客户端测速（0-150 mph 可信区间），否则由坐标增量和耗时推算并封顶 120 mph；
// 单点失败回落为 0，不中断整个行程
func extractSpeeds(deltas []models.DeltaSample) []float64 {
	speeds := make([]float64, 0, len(deltas))

	for _, d := range deltas {
		if d.SpeedMph != nil {
			s := *d.SpeedMph
			if !math.IsNaN(s) && s >= 0 && s <= maxSpeedMph {
				speeds = append(speeds, s)
				continue
			}
		}

		timeMs := d.DeltaTimeMs
		if timeMs <= 0 || math.IsNaN(timeMs) {
			timeMs = defaultDeltaTimeMs
		}

		// 推算路径按定点编码处理；十进制增量算出的速度趋近 0，会落入静止分支
		dLat := d.DeltaLat / fixedPointDivisor
		dLon := d.DeltaLong / fixedPointDivisor

		distMiles := math.Sqrt(dLat*dLat+dLon*dLon) * milesPerDegree
		timeHours := timeMs / (1000 * 3600)
		if timeHours > 0 && !math.IsNaN(distMiles) {
			speeds = append(speeds, math.Min(distMiles/timeHours, maxComputedSpeed))
			continue
		}

		speeds = append(speeds, 0)
	}

	return speeds
}

// extractIntervals 逐点解析耗时，非法值回落到 1000ms
func extractIntervals(deltas []models.DeltaSample) []float64 {
	intervals := make([]float64, 0, len(deltas))
	for _, d := range deltas {
		t := d.DeltaTimeMs
		if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			t = defaultDeltaTimeMs
		}
		intervals = append(intervals, t)
	}
	return intervals
}

// haversineMiles 球面距离 (英里)
func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

// bearingDegrees 两点方位角 (0-360°)
func bearingDegrees(lat1, lon1, lat2, lon2 float64) float64 {
	dLon := toRadians(lon2 - lon1)
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)

	y := math.Sin(dLon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) -
		math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dLon)

	return math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// bearingChange 修正 360° 回绕后的方位变化 (≤180°)
func bearingChange(from, to float64) float64 {
	change := math.Abs(to - from)
	if change > 180 {
		change = 360 - change
	}
	return change
}

// buildSeries 从隐私基准点出发重建轨迹，产出归一化运动序列
// 单段距离超出 [1e-6, 1.0] 英里的视为 GPS 漂移，不计入总距离
func buildSeries(deltas []models.DeltaSample, base models.BasePoint) (*MotionSeries, error) {
	if len(deltas) < 2 {
		return nil, ErrInsufficientData
	}

	format, divisor := detectCoordinateFormat(deltas)

	curLat, curLon := base.Latitude, base.Longitude
	totalDistance := 0.0
	var coords [][2]float64

	for _, d := range deltas {
		dLat := d.DeltaLat / divisor
		dLon := d.DeltaLong / divisor
		if math.IsNaN(dLat) || math.IsNaN(dLon) || math.IsInf(dLat, 0) || math.IsInf(dLon, 0) {
			continue
		}

		newLat := curLat + dLat
		newLon := curLon + dLon

		segment := haversineMiles(curLat, curLon, newLat, newLon)
		if segment >= 0.000001 && segment <= 1.0 {
			totalDistance += segment
			coords = append(coords, [2]float64{newLat, newLon})
		}

		curLat, curLon = newLat, newLon
	}

	var bearings []float64
	totalTurns := 0
	for i := 1; i < len(coords); i++ {
		b := bearingDegrees(coords[i-1][0], coords[i-1][1], coords[i][0], coords[i][1])
		bearings = append(bearings, b)
	}
	for i := 1; i < len(bearings); i++ {
		if bearingChange(bearings[i-1], bearings[i]) > 20 {
			totalTurns++
		}
	}

	return &MotionSeries{
		Speeds:        extractSpeeds(deltas),
		IntervalsMs:   extractIntervals(deltas),
		Bearings:      bearings,
		DistanceMiles: totalDistance,
		TotalTurns:    totalTurns,
		Format:        format,
	}, nil
}
