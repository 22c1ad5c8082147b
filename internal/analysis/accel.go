package analysis

import (
	"context"
	"math"

	"github.com/looplab/fsm"
)

// 事件分组状态机的状态与触发事件
const (
	stateIdle         = "idle"
	stateAccelerating = "accelerating"
	stateDecelerating = "decelerating"

	triggerAccelerate = "accelerate"
	triggerDecelerate = "decelerate"
	triggerSettle     = "settle"
)

// EventKind 加减速事件方向
type EventKind string

const (
	EventAcceleration EventKind = "acceleration"
	EventDeceleration EventKind = "deceleration"
)

// Severity 事件严重程度
type Severity string

const (
	SeverityHarsh     Severity = "harsh"
	SeverityDangerous Severity = "dangerous"
	SeverityExtreme   Severity = "extreme"
)

// Event 一次成组的加速或减速事件
// 由状态机在 finalize 时一次性构建，之后只读
type Event struct {
	Kind            EventKind `json:"kind"`
	StartIndex      int       `json:"segment_start"`
	EndIndex        int       `json:"segment_end"`
	DurationSeconds float64   `json:"duration_seconds"`
	AvgAccelMs2     float64   `json:"avg_acceleration_ms2"`
	PeakAccelMs2    float64   `json:"max_acceleration_ms2"`
	SpeedFromMph    float64   `json:"speed_from"`
	SpeedToMph      float64   `json:"speed_to"`
	SpeedChangeMph  float64   `json:"speed_change"`
	Severity        Severity  `json:"severity"`
	Dangerous       bool      `json:"is_dangerous"`
	HardStop        bool      `json:"is_hard_stop,omitempty"`
}

// AccelerationAnalysis 加减速事件分析结果
type AccelerationAnalysis struct {
	HarshEvents         int     `json:"total_harsh_events"`
	DangerousEvents     int     `json:"total_dangerous_events"`
	SuddenAccelerations int     `json:"sudden_accelerations"`
	SuddenDecelerations int     `json:"sudden_decelerations"`
	HardStops           int     `json:"hard_stops"`
	AccelerationEvents  []Event `json:"acceleration_events"`
	DecelerationEvents  []Event `json:"deceleration_events"`
	SmoothnessScore     float64 `json:"smoothness_score"`
	SegmentsAnalyzed    int     `json:"segments_analyzed"`
}

// rawAccelerations 逐段原始加速度 (m/s²)
// 间隔超过 15s 的段按 0 处理，避免跨数据间隙放大加速度；间隔下限钳到 0.5s
func rawAccelerations(speeds, intervalsMs []float64) []float64 {
	if len(speeds) < 2 {
		return nil
	}

	raw := make([]float64, 0, len(speeds)-1)
	for i := 0; i < len(speeds)-1; i++ {
		if i >= len(intervalsMs) {
			raw = append(raw, 0)
			continue
		}

		timeSeconds := math.Max(0.5, intervalsMs[i]/1000.0)
		if timeSeconds > 15.0 {
			raw = append(raw, 0)
			continue
		}

		raw = append(raw, (speeds[i+1]-speeds[i])/timeSeconds*mphToMs2)
	}
	return raw
}

// smoothAccelerations 3 点居中滑动平均，边缘点与单侧邻居平均
// 先平滑再检测，滤掉单点 GPS 毛刺
func smoothAccelerations(raw []float64) []float64 {
	smoothed := make([]float64, len(raw))
	for i := range raw {
		switch {
		case len(raw) == 1:
			smoothed[i] = raw[i]
		case i == 0:
			smoothed[i] = (raw[0] + raw[1]) / 2
		case i == len(raw)-1:
			smoothed[i] = (raw[i-1] + raw[i]) / 2
		default:
			smoothed[i] = (raw[i-1] + raw[i] + raw[i+1]) / 3
		}
	}
	return smoothed
}

// openEvent 状态机里正在累积的事件
type openEvent struct {
	kind       EventKind
	startIdx   int
	accels     []float64
	speedFrom  []float64
	speedTo    []float64
	durationMs float64
}

// eventGrouper 加减速事件分组状态机
// idle / accelerating / decelerating 三态；平滑加速度越过进入阈值开启事件，
// 同向样本延长事件，落回中性带或反向则触发 finalize
type eventGrouper struct {
	machine *fsm.FSM
	th      Thresholds
	ctx     Context
	open    *openEvent

	result AccelerationAnalysis
}

func newEventGrouper(th Thresholds, ctx Context) *eventGrouper {
	g := &eventGrouper{th: th, ctx: ctx}
	g.machine = fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: triggerAccelerate, Src: []string{stateIdle, stateDecelerating}, Dst: stateAccelerating},
			{Name: triggerDecelerate, Src: []string{stateIdle, stateAccelerating}, Dst: stateDecelerating},
			{Name: triggerSettle, Src: []string{stateAccelerating, stateDecelerating}, Dst: stateIdle},
		},
		fsm.Callbacks{},
	)
	return g
}

// observe 处理第 i 段的平滑加速度
func (g *eventGrouper) observe(i int, accel, curSpeed, nextSpeed, timeMs float64) {
	switch {
	case accel > g.th.AccelEntry:
		if g.machine.Current() == stateAccelerating {
			g.extend(accel, curSpeed, nextSpeed, timeMs)
			return
		}
		g.finalize()
		_ = g.machine.Event(context.Background(), triggerAccelerate)
		g.start(EventAcceleration, i, accel, curSpeed, nextSpeed, timeMs)

	case accel < g.th.DecelEntry:
		if g.machine.Current() == stateDecelerating {
			g.extend(accel, curSpeed, nextSpeed, timeMs)
			return
		}
		g.finalize()
		_ = g.machine.Event(context.Background(), triggerDecelerate)
		g.start(EventDeceleration, i, accel, curSpeed, nextSpeed, timeMs)

	default:
		if g.machine.Current() != stateIdle {
			g.finalize()
			_ = g.machine.Event(context.Background(), triggerSettle)
		}
	}
}

func (g *eventGrouper) start(kind EventKind, i int, accel, curSpeed, nextSpeed, timeMs float64) {
	g.open = &openEvent{
		kind:       kind,
		startIdx:   i,
		accels:     []float64{accel},
		speedFrom:  []float64{curSpeed},
		speedTo:    []float64{nextSpeed},
		durationMs: timeMs,
	}
}

func (g *eventGrouper) extend(accel, curSpeed, nextSpeed, timeMs float64) {
	g.open.accels = append(g.open.accels, accel)
	g.open.speedFrom = append(g.open.speedFrom, curSpeed)
	g.open.speedTo = append(g.open.speedTo, nextSpeed)
	g.open.durationMs += timeMs
}

// finalize 结束正在累积的事件：先过两级接受过滤，再定级计数
func (g *eventGrouper) finalize() {
	ev := g.open
	g.open = nil
	if ev == nil || len(ev.accels) == 0 {
		return
	}

	avg := mean(ev.accels)
	peak := ev.accels[0]
	for _, a := range ev.accels {
		if math.Abs(a) > math.Abs(peak) {
			peak = a
		}
	}
	duration := ev.durationMs / 1000.0

	dangerousAccel := g.th.Base.DangerousAccel
	dangerousDecel := g.th.Base.DangerousDecel

	// 时长过滤：极短事件只有达到危险级才保留，0.5-1.0s 的要求稳定超过 1.1 倍急加减速阈值
	if duration < 0.5 {
		if math.Abs(avg) < math.Abs(dangerousAccel) {
			return
		}
	} else if duration < 1.0 {
		if math.Abs(avg) < math.Abs(g.ctx.HarshAccel)*1.1 {
			return
		}
	}

	// 速度变化过滤：没有实质速度变化的抖动不算事件，除非本身已是危险量级
	startSpeed := ev.speedFrom[0]
	endSpeed := ev.speedTo[len(ev.speedTo)-1]
	speedChange := math.Abs(endSpeed - startSpeed)

	minSpeedChange := 2.0
	if duration < 1.0 {
		minSpeedChange = 3.0
	}
	if speedChange < minSpeedChange && math.Abs(avg) < dangerousAccel {
		return
	}

	event := Event{
		Kind:            ev.kind,
		StartIndex:      ev.startIdx + 1,
		EndIndex:        ev.startIdx + len(ev.accels),
		DurationSeconds: duration,
		AvgAccelMs2:     avg,
		PeakAccelMs2:    peak,
		SpeedFromMph:    startSpeed,
		SpeedToMph:      endSpeed,
		SpeedChangeMph:  speedChange,
	}

	harsh := false
	switch ev.kind {
	case EventAcceleration:
		if avg > dangerousAccel {
			event.Severity = SeverityDangerous
			if duration >= 3 {
				event.Severity = SeverityExtreme
			}
			event.Dangerous = true
			harsh = true
			g.result.DangerousEvents++
			g.result.SuddenAccelerations++
		} else if avg > g.ctx.HarshAccel {
			event.Severity = SeverityHarsh
			harsh = true
			g.result.SuddenAccelerations++
		}
		if harsh {
			g.result.HarshEvents++
			g.result.AccelerationEvents = append(g.result.AccelerationEvents, event)
		}

	case EventDeceleration:
		absAvg := math.Abs(avg)
		if absAvg > math.Abs(dangerousDecel) {
			event.Severity = SeverityDangerous
			if duration >= 2 {
				event.Severity = SeverityExtreme
			}
			event.Dangerous = true
			harsh = true
			g.result.DangerousEvents++
			g.result.SuddenDecelerations++
		} else if absAvg > math.Abs(g.ctx.HarshDecel) {
			event.Severity = SeverityHarsh
			harsh = true
			g.result.SuddenDecelerations++
		}

		// 急停：从有效车速急刹到近停
		if harsh && startSpeed > 15.0 && endSpeed < 5.0 && duration < 3.0 {
			event.HardStop = true
			g.result.HardStops++
		}

		if harsh {
			g.result.HarshEvents++
			g.result.DecelerationEvents = append(g.result.DecelerationEvents, event)
		}
	}
}

// AnalyzeAcceleration 加减速事件分析
// 原始加速度 → 3 点平滑 → 状态机分组 → 过滤定级 → 平顺性评分
func AnalyzeAcceleration(speeds, intervalsMs []float64, distanceMiles float64, ctx Context, th Thresholds) AccelerationAnalysis {
	if len(speeds) < 2 {
		return AccelerationAnalysis{SmoothnessScore: 95.0}
	}

	smoothed := smoothAccelerations(rawAccelerations(speeds, intervalsMs))

	g := newEventGrouper(th, ctx)
	for i, accel := range smoothed {
		if i >= len(intervalsMs) {
			continue
		}
		curSpeed := speeds[i]
		nextSpeed := 0.0
		if i+1 < len(speeds) {
			nextSpeed = speeds[i+1]
		}
		g.observe(i, accel, curSpeed, nextSpeed, intervalsMs[i])
	}
	g.finalize()

	result := g.result
	result.SegmentsAnalyzed = len(smoothed)
	result.SmoothnessScore = smoothnessScore(result.HarshEvents, result.DangerousEvents, len(smoothed), distanceMiles, ctx.Label)
	return result
}

// smoothnessScore 平顺性评分
// 基准 95 分，按每 10 英里的急事件和危险事件频率扣分；
// 高速场景扣分更重，因为基线车速高使同等事件风险更大
func smoothnessScore(harshEvents, dangerousEvents, segments int, distanceMiles float64, label ContextLabel) float64 {
	if segments == 0 || distanceMiles <= 0 {
		return 95.0
	}

	per10Miles := math.Max(1.0, distanceMiles/10)
	harshRatio := float64(harshEvents) / per10Miles
	dangerousRatio := float64(dangerousEvents) / per10Miles

	multiplier := 1.0
	switch label {
	case ContextCity:
		multiplier = 0.8
	case ContextHighway:
		multiplier = 1.2
	}

	harshPenalty := math.Min(30, harshRatio*5*multiplier)
	dangerousPenalty := math.Min(40, dangerousRatio*10*multiplier)

	return math.Max(30, 95.0-harshPenalty-dangerousPenalty)
}
