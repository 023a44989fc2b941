package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/photovault/internal/domain"
	"gorm.io/gorm"
)

// UserRepository owns user rows and the per-user usage ledger.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user. Returns domain.ErrNotFound when no row matches.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// IncrementUsage adds delta bytes to the user's usage in a single UPDATE,
// so concurrent uploads never lose an increment.
func (r *UserRepository) IncrementUsage(ctx context.Context, id string, delta int64) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		UpdateColumn("quota_usage_in_bytes", gorm.Expr("quota_usage_in_bytes + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("failed to increment usage for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
