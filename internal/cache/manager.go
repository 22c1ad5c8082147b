package cache

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/langchou/tripscore/internal/analysis"
	"github.com/langchou/tripscore/internal/models"
)

// State 缓存判定结果
type State string

const (
	StateHit   State = "hit"   // 记录存在且仍然新鲜
	StateStale State = "stale" // 记录存在但算法或数据已更新
	StateMiss  State = "miss"  // 无记录或存储不可用
)

// Manager 分析摘要缓存管理
// 所有存储故障一律按 Miss 降级，缓存挂掉只损失性能不损失功能；
// 同一行程的并发计算经 singleflight 合并成一次
type Manager struct {
	store  Store
	logger *zap.Logger
	group  singleflight.Group
}

// NewManager 创建缓存管理器
func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Lookup 查询缓存并判定新鲜度
// Stale 条件：算法版本不一致、任一侧水位缺失、或行程在缓存写入后又有修改
func (m *Manager) Lookup(ctx context.Context, trip *models.Trip) (*Record, State) {
	rec, err := m.store.Get(ctx, trip.TripID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("Cache lookup failed, treating as miss",
				zap.String("trip_id", trip.TripID),
				zap.Error(err))
		}
		return nil, StateMiss
	}

	if rec.AlgorithmVersion != analysis.AlgorithmVersion {
		m.logger.Debug("Cached summary from older algorithm",
			zap.String("trip_id", trip.TripID),
			zap.String("cached_version", rec.AlgorithmVersion))
		return rec, StateStale
	}

	modified := trip.ModifiedAt()
	if rec.TimestampWatermark == nil || modified.IsZero() {
		return rec, StateStale
	}
	if modified.After(*rec.TimestampWatermark) {
		m.logger.Debug("Trip modified after caching",
			zap.String("trip_id", trip.TripID),
			zap.Time("modified_at", modified),
			zap.Time("watermark", *rec.TimestampWatermark))
		return rec, StateStale
	}

	return rec, StateHit
}

// GetOrCompute 命中直接还原，否则计算并回填
// 回填失败只记日志，本次结果照常返回
func (m *Manager) GetOrCompute(
	ctx context.Context,
	trip *models.Trip,
	compute func(ctx context.Context) (*analysis.Result, error),
) (*analysis.Result, State, error) {
	rec, state := m.Lookup(ctx, trip)
	if state == StateHit {
		return rec.Reconstruct(), StateHit, nil
	}

	v, err, _ := m.group.Do(trip.TripID, func() (interface{}, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		if err := m.store.Set(ctx, NewRecord(trip.UserID, trip, result)); err != nil {
			m.logger.Warn("Cache store failed, result not cached",
				zap.String("trip_id", trip.TripID),
				zap.Error(err))
		}
		return result, nil
	})
	if err != nil {
		return nil, state, err
	}

	return v.(*analysis.Result), state, nil
}

// Invalidate 主动失效一条缓存，删除失败同样降级
func (m *Manager) Invalidate(ctx context.Context, tripID string) {
	if err := m.store.Delete(ctx, tripID); err != nil {
		m.logger.Warn("Cache invalidation failed",
			zap.String("trip_id", tripID),
			zap.Error(err))
	}
}
