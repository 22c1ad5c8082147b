package cache

import (
	"time"

	"github.com/langchou/tripscore/internal/analysis"
	"github.com/langchou/tripscore/internal/models"
)

// Record 缓存的行程分析摘要
// TimestampWatermark 是写入时行程的修改水位（finalized_at 优先，回落 end_timestamp），
// 读取时与行程当前水位比较判定新鲜度
type Record struct {
	TripID             string          `json:"trip_id"`
	UserID             string          `json:"user_id"`
	AlgorithmVersion   string          `json:"algorithm_version"`
	TimestampWatermark *time.Time      `json:"timestamp_watermark,omitempty"`
	CachedAt           time.Time       `json:"analysis_cached_at"`
	Summary            analysis.Result `json:"summary"`
}

// NewRecord 由分析结果和行程元数据构建缓存记录
func NewRecord(userID string, trip *models.Trip, result *analysis.Result) *Record {
	rec := &Record{
		TripID:           result.TripID,
		UserID:           userID,
		AlgorithmVersion: result.AlgorithmVersion,
		CachedAt:         time.Now().UTC(),
		Summary:          *result,
	}
	rec.Summary.FromCache = false

	if trip != nil {
		if watermark := trip.ModifiedAt(); !watermark.IsZero() {
			w := watermark
			rec.TimestampWatermark = &w
		}
	}
	return rec
}

// Reconstruct 从缓存记录还原分析结果
func (r *Record) Reconstruct() *analysis.Result {
	result := r.Summary
	result.FromCache = true
	return &result
}
