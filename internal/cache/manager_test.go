package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tripscore/internal/analysis"
	"github.com/langchou/tripscore/internal/models"
)

func testTrip(tripID string, finalizedAt time.Time) *models.Trip {
	end := finalizedAt.Add(-time.Minute)
	return &models.Trip{
		TripID:       tripID,
		UserID:       "user-1",
		Status:       "finalized",
		EndTimestamp: &end,
		FinalizedAt:  &finalizedAt,
	}
}

func testResult(tripID string) *analysis.Result {
	return &analysis.Result{
		TripID:           tripID,
		BehaviorScore:    82.5,
		BehaviorCategory: analysis.BehaviorVeryGood,
		AlgorithmVersion: analysis.AlgorithmVersion,
	}
}

// failingStore 所有操作都报错的存储，模拟缓存后端不可用
type failingStore struct{}

func (failingStore) Get(context.Context, string) (*Record, error) {
	return nil, errors.New("connection refused")
}
func (failingStore) Set(context.Context, *Record) error   { return errors.New("connection refused") }
func (failingStore) Delete(context.Context, string) error { return errors.New("connection refused") }

func TestManager_GetOrCompute(t *testing.T) {
	ctx := context.Background()
	finalizedAt := time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC)

	t.Run("miss then hit", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), zap.NewNop())
		trip := testTrip("trip-1", finalizedAt)

		computes := 0
		compute := func(context.Context) (*analysis.Result, error) {
			computes++
			return testResult("trip-1"), nil
		}

		r1, state, err := m.GetOrCompute(ctx, trip, compute)
		if err != nil {
			t.Fatalf("GetOrCompute: %v", err)
		}
		if state != StateMiss {
			t.Errorf("first call state = %s, want miss", state)
		}
		if r1.FromCache {
			t.Error("fresh result marked FromCache")
		}

		r2, state, err := m.GetOrCompute(ctx, trip, compute)
		if err != nil {
			t.Fatalf("GetOrCompute: %v", err)
		}
		if state != StateHit {
			t.Errorf("second call state = %s, want hit", state)
		}
		if !r2.FromCache {
			t.Error("cached result not marked FromCache")
		}
		if computes != 1 {
			t.Errorf("compute ran %d times, want 1", computes)
		}
		if r2.BehaviorScore != r1.BehaviorScore {
			t.Errorf("cached score %v != fresh score %v", r2.BehaviorScore, r1.BehaviorScore)
		}
	})

	t.Run("algorithm version change goes stale", func(t *testing.T) {
		store := NewMemoryStore()
		m := NewManager(store, zap.NewNop())
		trip := testTrip("trip-2", finalizedAt)

		rec := NewRecord(trip.UserID, trip, testResult("trip-2"))
		rec.AlgorithmVersion = "2.0_legacy"
		if err := store.Set(ctx, rec); err != nil {
			t.Fatal(err)
		}

		if _, state := m.Lookup(ctx, trip); state != StateStale {
			t.Errorf("state = %s, want stale", state)
		}

		computes := 0
		_, state, err := m.GetOrCompute(ctx, trip, func(context.Context) (*analysis.Result, error) {
			computes++
			return testResult("trip-2"), nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if state != StateStale || computes != 1 {
			t.Errorf("state = %s computes = %d, want stale recompute", state, computes)
		}
	})

	t.Run("trip modified after caching goes stale", func(t *testing.T) {
		store := NewMemoryStore()
		m := NewManager(store, zap.NewNop())

		trip := testTrip("trip-3", finalizedAt)
		if err := store.Set(ctx, NewRecord(trip.UserID, trip, testResult("trip-3"))); err != nil {
			t.Fatal(err)
		}

		if _, state := m.Lookup(ctx, trip); state != StateHit {
			t.Fatalf("unmodified trip state = %s, want hit", state)
		}

		refinalized := finalizedAt.Add(time.Hour)
		modified := testTrip("trip-3", refinalized)
		if _, state := m.Lookup(ctx, modified); state != StateStale {
			t.Errorf("modified trip state = %s, want stale", state)
		}
	})

	t.Run("missing watermark goes stale", func(t *testing.T) {
		store := NewMemoryStore()
		m := NewManager(store, zap.NewNop())

		trip := &models.Trip{TripID: "trip-4", UserID: "user-1", Status: "active"}
		if err := store.Set(ctx, NewRecord(trip.UserID, trip, testResult("trip-4"))); err != nil {
			t.Fatal(err)
		}

		if _, state := m.Lookup(ctx, trip); state != StateStale {
			t.Errorf("state = %s, want stale for trip without timestamps", state)
		}
	})

	t.Run("store failure degrades to miss", func(t *testing.T) {
		m := NewManager(failingStore{}, zap.NewNop())
		trip := testTrip("trip-5", finalizedAt)

		r, state, err := m.GetOrCompute(ctx, trip, func(context.Context) (*analysis.Result, error) {
			return testResult("trip-5"), nil
		})
		if err != nil {
			t.Fatalf("GetOrCompute should not propagate store errors: %v", err)
		}
		if state != StateMiss {
			t.Errorf("state = %s, want miss", state)
		}
		if r == nil || r.TripID != "trip-5" {
			t.Errorf("result = %+v", r)
		}
	})

	t.Run("compute error propagates", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), zap.NewNop())
		trip := testTrip("trip-6", finalizedAt)

		wantErr := errors.New("no trajectory data")
		_, _, err := m.GetOrCompute(ctx, trip, func(context.Context) (*analysis.Result, error) {
			return nil, wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("err = %v, want %v", err, wantErr)
		}
	})
}

func TestManager_Invalidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, zap.NewNop())

	finalizedAt := time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC)
	trip := testTrip("trip-7", finalizedAt)
	if err := store.Set(ctx, NewRecord(trip.UserID, trip, testResult("trip-7"))); err != nil {
		t.Fatal(err)
	}

	m.Invalidate(ctx, "trip-7")

	if _, state := m.Lookup(ctx, trip); state != StateMiss {
		t.Errorf("state = %s, want miss after invalidation", state)
	}
}

func TestRecordReconstruct(t *testing.T) {
	finalizedAt := time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC)
	trip := testTrip("trip-8", finalizedAt)

	rec := NewRecord(trip.UserID, trip, testResult("trip-8"))

	if rec.TimestampWatermark == nil || !rec.TimestampWatermark.Equal(finalizedAt) {
		t.Errorf("TimestampWatermark = %v, want %v", rec.TimestampWatermark, finalizedAt)
	}
	if rec.Summary.FromCache {
		t.Error("stored summary should not be marked FromCache")
	}

	restored := rec.Reconstruct()
	if !restored.FromCache {
		t.Error("reconstructed result must be marked FromCache")
	}
	if restored.BehaviorScore != 82.5 {
		t.Errorf("BehaviorScore = %v", restored.BehaviorScore)
	}
}
