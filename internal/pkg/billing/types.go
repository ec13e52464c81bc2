package billing

import (
	"encoding/json"
	"time"
)

// Customer identifies the paying party of a subscription as seen by the
// billing provider.
type Customer struct {
	// ExternalID is the local user id we passed to checkout, if any.
	ExternalID string
	Email      string
}

// SubscriptionEvent is the normalized form of a provider subscription
// webhook. Timestamps that were absent or unparseable are nil.
type SubscriptionEvent struct {
	Type              string
	ID                string `validate:"required,max=191"`
	Status            string `validate:"required,max=32"`
	Customer          Customer
	Amount            int64
	Currency          string `validate:"max=8"`
	RecurringInterval string `validate:"max=16"`

	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	StartedAt          *time.Time
	EndsAt             *time.Time
	EndedAt            *time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time

	CustomerID string `validate:"max=191"`
	ProductID  string `validate:"max=191"`
	CheckoutID string `validate:"max=191"`
	Metadata   json.RawMessage
}

// Delivery is one webhook request as received over HTTP.
type Delivery struct {
	// ID is the provider's delivery id (webhook-id header). Empty means the
	// body hash is used for deduplication.
	ID             string
	Type           string
	Payload        []byte
	SignatureValid bool
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	SubscriptionID  string
	PayloadJSON     string
	SignatureValid  bool
}
