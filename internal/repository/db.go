package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateUsers,
		migrationCreateTrips,
		migrationCreateTrajectoryBatches,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateUsers = `
CREATE TABLE IF NOT EXISTS users (
    user_id VARCHAR(64) PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    name VARCHAR(255),
    zipcode VARCHAR(10),
    base_point JSONB,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
`

const migrationCreateTrips = `
CREATE TABLE IF NOT EXISTS trips (
    trip_id VARCHAR(128) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    start_timestamp TIMESTAMP WITH TIME ZONE,
    end_timestamp TIMESTAMP WITH TIME ZONE,
    finalized_at TIMESTAMP WITH TIME ZONE,
    total_batches INT NOT NULL DEFAULT 0,
    quality JSONB,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    last_updated TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_trips_user_id ON trips(user_id);
CREATE INDEX IF NOT EXISTS idx_trips_status ON trips(status);
`

const migrationCreateTrajectoryBatches = `
CREATE TABLE IF NOT EXISTS trajectory_batches (
    id BIGSERIAL PRIMARY KEY,
    trip_id VARCHAR(128) NOT NULL,
    user_id VARCHAR(64) NOT NULL,
    batch_number INT NOT NULL,
    deltas JSONB NOT NULL,
    original_count INT NOT NULL DEFAULT 0,
    statistics JSONB,
    upload_timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    UNIQUE (trip_id, batch_number)
);
CREATE INDEX IF NOT EXISTS idx_trajectory_batches_trip_id ON trajectory_batches(trip_id);
CREATE INDEX IF NOT EXISTS idx_trajectory_batches_user_id ON trajectory_batches(user_id);
`
