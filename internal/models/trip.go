package models

import "time"

// Trip 行程元数据
type Trip struct {
	TripID         string       `json:"trip_id" db:"trip_id"`
	UserID         string       `json:"user_id" db:"user_id"`
	Status         string       `json:"status" db:"status"` // active / finalized
	StartTimestamp *time.Time   `json:"start_timestamp,omitempty" db:"start_timestamp"`
	EndTimestamp   *time.Time   `json:"end_timestamp,omitempty" db:"end_timestamp"`
	FinalizedAt    *time.Time   `json:"finalized_at,omitempty" db:"finalized_at"`
	TotalBatches   int          `json:"total_batches" db:"total_batches"`
	Quality        *TripQuality `json:"trip_quality,omitempty" db:"quality"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	LastUpdated    time.Time    `json:"last_updated" db:"last_updated"`
}

// TripQuality 前端上报的精确行程指标
// 存在且 UseGPSMetrics 为真时，分析管线优先采用这些值而非增量重建
type TripQuality struct {
	UseGPSMetrics       bool    `json:"use_gps_metrics"`
	ActualDistanceMiles float64 `json:"actual_distance_miles"`
	ActualDurationMin   float64 `json:"actual_duration_minutes"`
	GPSMaxSpeedMph      float64 `json:"gps_max_speed_mph"`
	GPSAvgSpeedMph      float64 `json:"gps_avg_speed_mph"`
}

// ModifiedAt 缓存失效比较用的水位时间
// finalized_at 优先，回落到 end_timestamp；两者都缺失返回零值
func (t *Trip) ModifiedAt() time.Time {
	if t.FinalizedAt != nil {
		return *t.FinalizedAt
	}
	if t.EndTimestamp != nil {
		return *t.EndTimestamp
	}
	return time.Time{}
}
