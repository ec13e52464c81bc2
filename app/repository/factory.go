package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db      *gorm.DB
	queries QueryCache
	repos   *Repositories
	once    sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB, queries QueryCache) *Factory {
	return &Factory{
		db:      db,
		queries: queries,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db, f.queries)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetUsageRepository returns the usage repository instance
func (f *Factory) GetUsageRepository() UsageRepository {
	return f.GetRepositories().Usage
}
