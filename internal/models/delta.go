package models

// DeltaSample 原始轨迹增量采样点
// 由客户端按批次上传，记录相对上一点的位置变化和耗时
type DeltaSample struct {
	DeltaLat    float64  `json:"delta_lat"`
	DeltaLong   float64  `json:"delta_long"`
	DeltaTimeMs float64  `json:"delta_time"`
	SpeedMph    *float64 `json:"speed_mph,omitempty"`    // 客户端测速 (mph)，可选
	GPSAccuracy *float64 `json:"gps_accuracy,omitempty"` // GPS 精度 (米)，可选
	Sequence    int      `json:"sequence"`
	Timestamp   string   `json:"timestamp,omitempty"` // ISO 格式 UTC 时间戳
}

// BatchStatistics 单批次轨迹统计
type BatchStatistics struct {
	MovementPoints   int     `json:"movement_points"`
	StationaryPoints int     `json:"stationary_points"`
	AcceptanceRate   float64 `json:"acceptance_rate"`
}

// TrajectoryBatch 轨迹批次
type TrajectoryBatch struct {
	ID              int64           `json:"id" db:"id"`
	TripID          string          `json:"trip_id" db:"trip_id"`
	UserID          string          `json:"user_id" db:"user_id"`
	BatchNumber     int             `json:"batch_number" db:"batch_number"`
	Deltas          []DeltaSample   `json:"deltas" db:"deltas"`
	OriginalCount   int             `json:"original_deltas_count" db:"original_count"`
	Statistics      BatchStatistics `json:"batch_statistics" db:"statistics"`
	UploadTimestamp string          `json:"upload_timestamp" db:"upload_timestamp"`
}
