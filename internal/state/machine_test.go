package state

import (
	"testing"
)

func TestMachineLifecycle(t *testing.T) {
	var changes [][2]string
	m := NewMachine("trip-1", "user-1", "", func(_ string, from, to string) {
		changes = append(changes, [2]string{from, to})
	})

	if m.CurrentState() != StateActive {
		t.Fatalf("initial state = %s, want active", m.CurrentState())
	}

	if err := m.Trigger(EventFinalize); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := m.Trigger(EventCompleteAnalysis); err != nil {
		t.Fatalf("complete analysis: %v", err)
	}
	if m.CurrentState() != StateAnalyzed {
		t.Fatalf("state = %s, want analyzed", m.CurrentState())
	}

	// 分析后又来批次，行程重新激活
	if err := m.Trigger(EventReceiveBatch); err != nil {
		t.Fatalf("receive batch: %v", err)
	}
	if m.CurrentState() != StateActive {
		t.Fatalf("state = %s, want active after new batch", m.CurrentState())
	}

	want := [][2]string{
		{StateActive, StateFinalized},
		{StateFinalized, StateAnalyzed},
		{StateAnalyzed, StateActive},
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v", changes)
	}
	for i, w := range want {
		if changes[i] != w {
			t.Errorf("changes[%d] = %v, want %v", i, changes[i], w)
		}
	}
}

func TestMachineInvalidTransition(t *testing.T) {
	m := NewMachine("trip-2", "user-1", StateActive, nil)

	// active 状态下不能直接结束分析两次
	if err := m.Trigger(EventCompleteAnalysis); err != nil {
		t.Fatalf("complete analysis: %v", err)
	}
	if err := m.Trigger(EventCompleteAnalysis); err == nil {
		t.Fatal("duplicate complete_analysis should fail from analyzed state")
	}
	if m.CanTransition(EventCompleteAnalysis) {
		t.Error("CanTransition(complete_analysis) = true in analyzed state")
	}
	if !m.CanTransition(EventReceiveBatch) {
		t.Error("CanTransition(receive_batch) = false in analyzed state")
	}
}

func TestManagerGetOrCreate(t *testing.T) {
	mgr := NewManager(nil)

	m1 := mgr.GetOrCreate("trip-3", "user-1", StateActive)
	m2 := mgr.GetOrCreate("trip-3", "user-1", StateFinalized)
	if m1 != m2 {
		t.Error("GetOrCreate should return the existing machine")
	}

	m1.UpdateState(func(s *TripState) { s.TotalBatches = 4 })

	states := mgr.GetAllStates()
	if states["trip-3"].TotalBatches != 4 {
		t.Errorf("TotalBatches = %d, want 4", states["trip-3"].TotalBatches)
	}
}
