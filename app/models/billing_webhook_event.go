package models

import "time"

const BillingProviderPolar = "polar"

// Webhook receipt outcomes.
const (
	WebhookOutcomeProcessed  = "processed"
	WebhookOutcomeIgnored    = "ignored"
	WebhookOutcomeInvalid    = "invalid_payload"
	WebhookOutcomeFailed     = "failed"
	WebhookOutcomeSuperseded = "superseded"
)

// BillingWebhookEvent stores provider webhook payloads with deduplication
// metadata, so deliveries can be audited and replayed.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	SubscriptionID  string     `gorm:"type:varchar(191);not null;default:'';index" json:"subscription_id"`
	PayloadJSON     string     `gorm:"type:text;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	Outcome         string     `gorm:"type:varchar(32);not null;default:''" json:"outcome"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Succeeded reports whether the delivery was processed without error.
func (e *BillingWebhookEvent) Succeeded() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
