package repository

import (
	"context"
	"strings"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db      *gorm.DB
	queries QueryCache
}

// NewUserRepository creates a new user repository instance. queries may be
// nil; when set, lookups by id are cached there.
func NewUserRepository(db *gorm.DB, queries QueryCache) UserRepository {
	return &userRepository{db: db, queries: queries}
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	key := cache.UserKey(id)
	if r.queries != nil {
		var cached models.User
		if hit, err := r.queries.GetJSON(ctx, key, &cached); err != nil {
			log.Debugf("[UserRepository] Query cache read failed for user %d: %v", id, err)
		} else if hit {
			return &cached, nil
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}

	if r.queries != nil {
		if err := r.queries.SetJSON(ctx, key, &user); err != nil {
			log.Debugf("[UserRepository] Query cache write failed for user %d: %v", id, err)
		}
	}
	return &user, nil
}

// GetByEmail retrieves a user by email address, ignoring case and
// surrounding whitespace.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	err := r.db.WithContext(ctx).Where("LOWER(TRIM(email)) = ?", normalized).Order("id").First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
