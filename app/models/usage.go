package models

import "time"

const (
	UsageKindMessage       = "message"
	UsageKindExtremeSearch = "extreme_search"
)

// Usage counts how often a user did something within one period. Daily
// counters use "2006-01-02" periods, monthly ones "2006-01".
type Usage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:ux_usages_user_kind_period,unique,priority:1" json:"user_id"`
	Kind      string    `gorm:"type:varchar(32);not null;index:ux_usages_user_kind_period,unique,priority:2" json:"kind"`
	Period    string    `gorm:"type:varchar(10);not null;index:ux_usages_user_kind_period,unique,priority:3" json:"period"`
	Used      int64     `gorm:"not null;default:0" json:"used"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
