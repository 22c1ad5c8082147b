package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/tripscore/internal/models"
)

// ErrTripNotFound 行程不存在
var ErrTripNotFound = errors.New("trip not found")

// TripRepository 行程元数据仓库
type TripRepository struct {
	db *DB
}

// NewTripRepository 创建行程仓库
func NewTripRepository(db *DB) *TripRepository {
	return &TripRepository{db: db}
}

// Get 获取行程
func (r *TripRepository) Get(ctx context.Context, tripID string) (*models.Trip, error) {
	query := `
		SELECT trip_id, user_id, status, start_timestamp, end_timestamp, finalized_at,
			total_batches, quality, created_at, last_updated
		FROM trips WHERE trip_id = $1
	`

	trip := &models.Trip{}
	var quality []byte

	err := r.db.Pool.QueryRow(ctx, query, tripID).Scan(
		&trip.TripID,
		&trip.UserID,
		&trip.Status,
		&trip.StartTimestamp,
		&trip.EndTimestamp,
		&trip.FinalizedAt,
		&trip.TotalBatches,
		&quality,
		&trip.CreatedAt,
		&trip.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("get trip: %w", err)
	}

	if len(quality) > 0 {
		var q models.TripQuality
		if err := json.Unmarshal(quality, &q); err != nil {
			return nil, fmt.Errorf("decode trip quality: %w", err)
		}
		trip.Quality = &q
	}

	return trip, nil
}

// Ensure 批次到达时创建或更新行程元数据
// 已存在的行程只累计批次数并刷新修改时间，回到 active 状态
func (r *TripRepository) Ensure(ctx context.Context, tripID, userID string) error {
	query := `
		INSERT INTO trips (trip_id, user_id, status, total_batches)
		VALUES ($1, $2, 'active', 1)
		ON CONFLICT (trip_id) DO UPDATE SET
			total_batches = trips.total_batches + 1,
			status = 'active',
			last_updated = NOW()
	`
	if _, err := r.db.Pool.Exec(ctx, query, tripID, userID); err != nil {
		return fmt.Errorf("ensure trip: %w", err)
	}
	return nil
}

// Finalize 结束行程
// 写入起止时间、质量指标并打 finalized_at 水位；重复结束会刷新水位
func (r *TripRepository) Finalize(ctx context.Context, trip *models.Trip) error {
	var quality []byte
	if trip.Quality != nil {
		data, err := json.Marshal(trip.Quality)
		if err != nil {
			return fmt.Errorf("encode trip quality: %w", err)
		}
		quality = data
	}

	query := `
		INSERT INTO trips (trip_id, user_id, status, start_timestamp, end_timestamp, finalized_at, quality)
		VALUES ($1, $2, 'finalized', $3, $4, $5, $6)
		ON CONFLICT (trip_id) DO UPDATE SET
			status = 'finalized',
			start_timestamp = COALESCE(EXCLUDED.start_timestamp, trips.start_timestamp),
			end_timestamp = COALESCE(EXCLUDED.end_timestamp, trips.end_timestamp),
			finalized_at = EXCLUDED.finalized_at,
			quality = COALESCE(EXCLUDED.quality, trips.quality),
			last_updated = NOW()
	`

	finalizedAt := time.Now().UTC()
	trip.FinalizedAt = &finalizedAt
	trip.Status = "finalized"

	if _, err := r.db.Pool.Exec(ctx, query,
		trip.TripID,
		trip.UserID,
		trip.StartTimestamp,
		trip.EndTimestamp,
		finalizedAt,
		quality,
	); err != nil {
		return fmt.Errorf("finalize trip: %w", err)
	}
	return nil
}

// ListIDsByUser 列出用户的全部行程 ID，按创建时间倒序
func (r *TripRepository) ListIDsByUser(ctx context.Context, userID string, limit int) ([]string, error) {
	query := `
		SELECT trip_id FROM trips
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan trip id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
