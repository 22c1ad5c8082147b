package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/tripscore/internal/models"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// UserRepository 用户数据仓库
type UserRepository struct {
	db *DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID 按用户 ID 查询
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT user_id, email, name, zipcode, base_point
		FROM users WHERE user_id = $1
	`
	return r.scanUser(r.db.Pool.QueryRow(ctx, query, userID))
}

// GetByEmail 按邮箱查询
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT user_id, email, name, zipcode, base_point
		FROM users WHERE email = $1
	`
	return r.scanUser(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	var basePoint []byte

	err := row.Scan(&user.UserID, &user.Email, &user.Name, &user.Zipcode, &basePoint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if len(basePoint) > 0 {
		var bp models.BasePoint
		if err := json.Unmarshal(basePoint, &bp); err != nil {
			return nil, fmt.Errorf("decode base point: %w", err)
		}
		user.BasePoint = &bp
	}

	return user, nil
}

// Upsert 创建或更新用户档案
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	var basePoint []byte
	if user.BasePoint != nil {
		data, err := json.Marshal(user.BasePoint)
		if err != nil {
			return fmt.Errorf("encode base point: %w", err)
		}
		basePoint = data
	}

	query := `
		INSERT INTO users (user_id, email, name, zipcode, base_point)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			zipcode = EXCLUDED.zipcode,
			base_point = EXCLUDED.base_point,
			updated_at = NOW()
	`
	if _, err := r.db.Pool.Exec(ctx, query,
		user.UserID, user.Email, user.Name, user.Zipcode, basePoint); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
