package repository

import (
	"context"

	"github.com/ManuelReschke/ChatFox/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// UsageRepository defines the interface for usage counter operations
type UsageRepository interface {
	Get(ctx context.Context, userID uint, kind, period string) (int64, error)
	Increment(ctx context.Context, userID uint, kind, period string, by int64) (int64, error)
}

// QueryCache caches query results outside the process.
type QueryCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
}

// Repositories holds all repository instances
type Repositories struct {
	User  UserRepository
	Usage UsageRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB, queries QueryCache) *Repositories {
	return &Repositories{
		User:  NewUserRepository(db, queries),
		Usage: NewUsageRepository(db),
	}
}
