package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/langchou/tripscore/internal/models"
)

// BatchRepository 轨迹批次仓库
type BatchRepository struct {
	db *DB
}

// NewBatchRepository 创建批次仓库
func NewBatchRepository(db *DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Store 写入一个批次，同一批次号重传覆盖旧数据
func (r *BatchRepository) Store(ctx context.Context, batch *models.TrajectoryBatch) error {
	deltas, err := json.Marshal(batch.Deltas)
	if err != nil {
		return fmt.Errorf("encode deltas: %w", err)
	}
	stats, err := json.Marshal(batch.Statistics)
	if err != nil {
		return fmt.Errorf("encode batch statistics: %w", err)
	}

	query := `
		INSERT INTO trajectory_batches (trip_id, user_id, batch_number, deltas, original_count, statistics)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (trip_id, batch_number) DO UPDATE SET
			deltas = EXCLUDED.deltas,
			original_count = EXCLUDED.original_count,
			statistics = EXCLUDED.statistics,
			upload_timestamp = NOW()
		RETURNING id
	`
	err = r.db.Pool.QueryRow(ctx, query,
		batch.TripID,
		batch.UserID,
		batch.BatchNumber,
		deltas,
		batch.OriginalCount,
		stats,
	).Scan(&batch.ID)
	if err != nil {
		return fmt.Errorf("insert trajectory batch: %w", err)
	}
	return nil
}

// GetTripDeltas 按批次号顺序合并行程的全部增量
func (r *BatchRepository) GetTripDeltas(ctx context.Context, tripID string) ([]models.DeltaSample, error) {
	query := `
		SELECT deltas FROM trajectory_batches
		WHERE trip_id = $1
		ORDER BY batch_number ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, tripID)
	if err != nil {
		return nil, fmt.Errorf("query trajectory batches: %w", err)
	}
	defer rows.Close()

	var merged []models.DeltaSample
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan batch deltas: %w", err)
		}

		var deltas []models.DeltaSample
		if err := json.Unmarshal(data, &deltas); err != nil {
			return nil, fmt.Errorf("decode batch deltas: %w", err)
		}
		merged = append(merged, deltas...)
	}
	return merged, rows.Err()
}

// CountBatches 行程已入库批次数
func (r *BatchRepository) CountBatches(ctx context.Context, tripID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trajectory_batches WHERE trip_id = $1`, tripID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count batches: %w", err)
	}
	return count, nil
}
