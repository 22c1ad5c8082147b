package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tripscore/internal/models"
	"github.com/langchou/tripscore/internal/repository"
	"github.com/langchou/tripscore/internal/state"
	"github.com/langchou/tripscore/pkg/ws"
)

// IngestService 轨迹入库服务
// 批次校验采取宽松策略：掉点比拒收整批损失小，能救的样本都救
type IngestService struct {
	logger       *zap.Logger
	tripRepo     *repository.TripRepository
	batchRepo    *repository.BatchRepository
	stateManager *state.Manager
	wsHub        *ws.Hub
}

// NewIngestService 创建入库服务
func NewIngestService(
	logger *zap.Logger,
	tripRepo *repository.TripRepository,
	batchRepo *repository.BatchRepository,
	stateManager *state.Manager,
	wsHub *ws.Hub,
) *IngestService {
	return &IngestService{
		logger:       logger,
		tripRepo:     tripRepo,
		batchRepo:    batchRepo,
		stateManager: stateManager,
		wsHub:        wsHub,
	}
}

// BatchResult 单批次入库结果
type BatchResult struct {
	TripID        string                 `json:"trip_id"`
	BatchNumber   int                    `json:"batch_number"`
	StoredDeltas  int                    `json:"stored_deltas"`
	DroppedDeltas int                    `json:"dropped_deltas"`
	Statistics    models.BatchStatistics `json:"batch_statistics"`
}

// StoreBatch 清洗并入库一个轨迹批次，同步更新行程元数据和状态机
func (s *IngestService) StoreBatch(ctx context.Context, batch *models.TrajectoryBatch) (*BatchResult, error) {
	if batch.TripID == "" || batch.UserID == "" {
		return nil, fmt.Errorf("batch missing trip_id or user_id")
	}

	originalCount := len(batch.Deltas)
	cleaned, stats := scrubDeltas(batch.Deltas)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("batch %d for trip %s: no valid deltas", batch.BatchNumber, batch.TripID)
	}

	batch.Deltas = cleaned
	batch.OriginalCount = originalCount
	batch.Statistics = stats

	if err := s.batchRepo.Store(ctx, batch); err != nil {
		return nil, fmt.Errorf("store batch: %w", err)
	}
	if err := s.tripRepo.Ensure(ctx, batch.TripID, batch.UserID); err != nil {
		return nil, fmt.Errorf("update trip metadata: %w", err)
	}

	machine := s.stateManager.GetOrCreate(batch.TripID, batch.UserID, state.StateActive)
	if machine.CanTransition(state.EventReceiveBatch) {
		if err := machine.Trigger(state.EventReceiveBatch); err != nil {
			s.logger.Warn("Trip state transition failed",
				zap.String("trip_id", batch.TripID),
				zap.Error(err))
		}
	}
	machine.UpdateState(func(ts *state.TripState) { ts.TotalBatches++ })

	s.logger.Info("Trajectory batch stored",
		zap.String("trip_id", batch.TripID),
		zap.Int("batch_number", batch.BatchNumber),
		zap.Int("stored", len(cleaned)),
		zap.Int("dropped", originalCount-len(cleaned)))

	return &BatchResult{
		TripID:        batch.TripID,
		BatchNumber:   batch.BatchNumber,
		StoredDeltas:  len(cleaned),
		DroppedDeltas: originalCount - len(cleaned),
		Statistics:    stats,
	}, nil
}

// FinalizeRequest 行程结束请求
type FinalizeRequest struct {
	TripID         string
	UserID         string
	StartTimestamp string
	EndTimestamp   string
	Quality        *models.TripQuality
}

// FinalizeTrip 结束行程并打缓存水位
func (s *IngestService) FinalizeTrip(ctx context.Context, req *FinalizeRequest) (*models.Trip, error) {
	if req.TripID == "" || req.UserID == "" {
		return nil, fmt.Errorf("finalize missing trip_id or user_id")
	}

	trip := &models.Trip{
		TripID:  req.TripID,
		UserID:  req.UserID,
		Quality: req.Quality,
	}

	if ts, ok := parseClientTimestamp(req.StartTimestamp); ok {
		trip.StartTimestamp = &ts
	}
	if ts, ok := parseClientTimestamp(req.EndTimestamp); ok {
		trip.EndTimestamp = &ts
	}

	if err := s.tripRepo.Finalize(ctx, trip); err != nil {
		return nil, err
	}

	machine := s.stateManager.GetOrCreate(trip.TripID, trip.UserID, state.StateActive)
	if machine.CanTransition(state.EventFinalize) {
		if err := machine.Trigger(state.EventFinalize); err != nil {
			s.logger.Warn("Trip state transition failed",
				zap.String("trip_id", trip.TripID),
				zap.Error(err))
		}
	}

	s.logger.Info("Trip finalized",
		zap.String("trip_id", trip.TripID),
		zap.String("user_id", trip.UserID))

	return trip, nil
}

// scrubDeltas 剔除无法救回的样本并统计批次质量
// 非法坐标或耗时直接丢样本；非法速度或精度只清字段，样本保留
func scrubDeltas(deltas []models.DeltaSample) ([]models.DeltaSample, models.BatchStatistics) {
	cleaned := make([]models.DeltaSample, 0, len(deltas))
	movement := 0
	stationary := 0

	for _, d := range deltas {
		if !isFinite(d.DeltaLat) || !isFinite(d.DeltaLong) || !isFinite(d.DeltaTimeMs) {
			continue
		}
		if d.SpeedMph != nil && !isFinite(*d.SpeedMph) {
			d.SpeedMph = nil
		}
		if d.GPSAccuracy != nil && !isFinite(*d.GPSAccuracy) {
			d.GPSAccuracy = nil
		}

		if d.DeltaLat != 0 || d.DeltaLong != 0 {
			movement++
		} else {
			stationary++
		}
		cleaned = append(cleaned, d)
	}

	stats := models.BatchStatistics{
		MovementPoints:   movement,
		StationaryPoints: stationary,
	}
	if len(deltas) > 0 {
		stats.AcceptanceRate = float64(len(cleaned)) / float64(len(deltas))
	}
	return cleaned, stats
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// parseClientTimestamp 解析客户端时间戳，无时区后缀按 UTC
func parseClientTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), true
	}
	if ts, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC); err == nil {
		return ts, true
	}
	return time.Time{}, false
}
