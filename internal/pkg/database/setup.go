package database

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// Models lists every table owned by the entitlement subsystem.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Subscription{},
		&models.BillingWebhookEvent{},
		&models.Usage{},
	}
}

// DSN builds the MySQL data source name from the environment.
func DSN() string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// SetupDatabase connects to MySQL, retrying while the server starts, and
// migrates the tables.
func SetupDatabase() (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       DSN(),
			DefaultStringSize:         256,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{})
		if err == nil {
			if err = db.AutoMigrate(Models()...); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			return db, nil
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}
