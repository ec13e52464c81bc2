package models

import (
	"time"
)

// User is a local account. The billing pipeline only reads it: by id when a
// webhook carries our user id as external customer id, and by email as the
// fallback identity.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(150)" json:"name"`
	Email     string    `gorm:"uniqueIndex;type:varchar(200)" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
