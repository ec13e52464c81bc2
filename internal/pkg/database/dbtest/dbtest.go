// Package dbtest opens throwaway SQLite databases for repository tests.
package dbtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/database"
)

// Open returns an in-memory database with the entitlement tables migrated.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Every pooled connection would get its own empty :memory: database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.Models()...))
	return db
}

// CreateUser inserts a user with the given email.
func CreateUser(t testing.TB, db *gorm.DB, name, email string) *models.User {
	t.Helper()
	user := &models.User{Name: name, Email: email}
	require.NoError(t, db.Create(user).Error)
	return user
}
