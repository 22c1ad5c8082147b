package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 行程状态常量
const (
	StateActive    = "active"    // 批次上传中
	StateFinalized = "finalized" // 客户端已结束行程
	StateAnalyzed  = "analyzed"  // 已出分析结果
)

// 事件常量
const (
	EventReceiveBatch     = "receive_batch"
	EventFinalize         = "finalize"
	EventCompleteAnalysis = "complete_analysis"
)

// TripState 行程状态
type TripState struct {
	TripID       string    `json:"trip_id"`
	UserID       string    `json:"user_id"`
	CurrentState string    `json:"state"`
	Since        time.Time `json:"since"`
	TotalBatches int       `json:"total_batches"`
}

// Machine 行程状态机
// 结束后又收到批次会回到 active，已出的分析结果由缓存水位判定失效
type Machine struct {
	mu            sync.RWMutex
	tripID        string
	fsm           *fsm.FSM
	state         *TripState
	onStateChange func(tripID string, from, to string)
}

// NewMachine 创建状态机
func NewMachine(tripID, userID, initialState string, onStateChange func(tripID string, from, to string)) *Machine {
	if initialState == "" {
		initialState = StateActive
	}

	m := &Machine{
		tripID:        tripID,
		onStateChange: onStateChange,
		state: &TripState{
			TripID:       tripID,
			UserID:       userID,
			CurrentState: initialState,
			Since:        time.Now(),
		},
	}

	m.fsm = fsm.NewFSM(
		initialState,
		fsm.Events{
			// 任何状态下新批次都把行程拉回 active
			{Name: EventReceiveBatch, Src: []string{StateActive, StateFinalized, StateAnalyzed}, Dst: StateActive},

			// 结束行程
			{Name: EventFinalize, Src: []string{StateActive, StateAnalyzed}, Dst: StateFinalized},

			// 分析完成
			{Name: EventCompleteAnalysis, Src: []string{StateActive, StateFinalized}, Dst: StateAnalyzed},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.tripID, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// GetState 获取完整状态
func (m *Machine) GetState() *TripState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// 返回副本
	stateCopy := *m.state
	stateCopy.CurrentState = m.fsm.Current()
	return &stateCopy
}

// UpdateState 更新状态数据
func (m *Machine) UpdateState(update func(s *TripState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	update(m.state)
}

// Trigger 触发事件
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}

	m.state.CurrentState = m.fsm.Current()
	m.state.Since = time.Now()
	return nil
}

// CanTransition 检查是否可以转换
func (m *Machine) CanTransition(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}

// Manager 状态机管理器
type Manager struct {
	mu       sync.RWMutex
	machines map[string]*Machine
	onChange func(tripID string, from, to string)
}

// NewManager 创建管理器
func NewManager(onChange func(tripID string, from, to string)) *Manager {
	return &Manager{
		machines: make(map[string]*Machine),
		onChange: onChange,
	}
}

// GetOrCreate 获取或创建状态机
func (m *Manager) GetOrCreate(tripID, userID, initialState string) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if machine, ok := m.machines[tripID]; ok {
		return machine
	}

	machine := NewMachine(tripID, userID, initialState, m.onChange)
	m.machines[tripID] = machine
	return machine
}

// Get 获取状态机
func (m *Manager) Get(tripID string) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[tripID]
	return machine, ok
}

// GetAllStates 获取所有行程状态
func (m *Manager) GetAllStates() map[string]*TripState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]*TripState)
	for tripID, machine := range m.machines {
		states[tripID] = machine.GetState()
	}
	return states
}
