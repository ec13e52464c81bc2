package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SubscriptionStatusActive            = "active"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusRevoked           = "revoked"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusUnpaid            = "unpaid"
)

// Subscription mirrors a billing-provider subscription. The primary key is
// the provider-assigned subscription id, so every webhook event for the same
// subscription lands on the same row.
//
// UserID is the owning local account. Once set it is never cleared by an
// upsert; it can only be replaced by a positively resolved new owner.
type Subscription struct {
	ID                 string         `gorm:"primaryKey;type:varchar(191)" json:"id"`
	UserID             *uint          `gorm:"index" json:"user_id,omitempty"`
	Status             string         `gorm:"type:varchar(32);not null;index" json:"status"`
	Amount             int64          `gorm:"default:0" json:"amount"`
	Currency           string         `gorm:"type:varchar(8);default:''" json:"currency"`
	RecurringInterval  string         `gorm:"type:varchar(16);default:''" json:"recurring_interval"`
	CurrentPeriodStart *time.Time     `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time     `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool           `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt         *time.Time     `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	StartedAt          *time.Time     `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	EndsAt             *time.Time     `gorm:"type:timestamp;default:null" json:"ends_at,omitempty"`
	EndedAt            *time.Time     `gorm:"type:timestamp;default:null" json:"ended_at,omitempty"`
	TrialStart         *time.Time     `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd           *time.Time     `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	CustomerID         string         `gorm:"type:varchar(191);default:'';index" json:"customer_id"`
	ProductID          string         `gorm:"type:varchar(191);default:''" json:"product_id"`
	CheckoutID         string         `gorm:"type:varchar(191);default:''" json:"checkout_id"`
	Metadata           datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasOwner reports whether the subscription is linked to a local account.
func (s *Subscription) HasOwner() bool {
	return s.UserID != nil && *s.UserID != 0
}
