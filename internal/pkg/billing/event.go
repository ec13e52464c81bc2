package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const subscriptionEventPrefix = "subscription."

// timestampLayouts are tried in order for string timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// IsSubscriptionEventType reports whether a webhook type carries a
// subscription object.
func IsSubscriptionEventType(eventType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(eventType)), subscriptionEventPrefix)
}

// Validate checks the required identity fields of the event.
func (e *SubscriptionEvent) Validate() error {
	v := validator.New()

	return v.Struct(e)
}

// ParseSubscriptionEvent decodes a webhook body. Both the enveloped form
// {"type": "subscription.updated", "data": {...}} and a bare subscription
// object are accepted, with camelCase or snake_case keys.
//
// Envelopes of other event types yield ErrIgnoredEvent. Anything that is not
// a subscription with an id and status yields ErrInvalidPayload.
func ParseSubscriptionEvent(payload []byte) (*SubscriptionEvent, error) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	eventType := strings.TrimSpace(envelope.Type)
	if eventType != "" && !IsSubscriptionEventType(eventType) {
		return nil, fmt.Errorf("%w: %s", ErrIgnoredEvent, eventType)
	}

	data := envelope.Data
	if isNull(data) {
		data = payload
	}

	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: data is not an object: %v", ErrInvalidPayload, err)
	}

	ev := &SubscriptionEvent{
		Type:               eventType,
		ID:                 f.str("id"),
		Status:             strings.ToLower(f.str("status")),
		Amount:             f.number("amount"),
		Currency:           strings.ToLower(f.str("currency")),
		RecurringInterval:  strings.ToLower(f.str("recurringInterval", "recurring_interval")),
		CurrentPeriodStart: parseTimestamp(f.raw("currentPeriodStart", "current_period_start")),
		CurrentPeriodEnd:   parseTimestamp(f.raw("currentPeriodEnd", "current_period_end")),
		CancelAtPeriodEnd:  f.flag("cancelAtPeriodEnd", "cancel_at_period_end"),
		CanceledAt:         parseTimestamp(f.raw("canceledAt", "canceled_at")),
		StartedAt:          parseTimestamp(f.raw("startedAt", "started_at")),
		EndsAt:             parseTimestamp(f.raw("endsAt", "ends_at")),
		EndedAt:            parseTimestamp(f.raw("endedAt", "ended_at")),
		TrialStart:         parseTimestamp(f.raw("trialStart", "trial_start")),
		TrialEnd:           parseTimestamp(f.raw("trialEnd", "trial_end")),
		CustomerID:         f.str("customerId", "customer_id"),
		ProductID:          f.str("productId", "product_id"),
		CheckoutID:         f.str("checkoutId", "checkout_id"),
	}
	if meta := f.raw("metadata"); meta != nil {
		ev.Metadata = append(json.RawMessage(nil), meta...)
	}

	var customer fields
	if raw := f.raw("customer"); raw != nil {
		if err := json.Unmarshal(raw, &customer); err == nil {
			ev.Customer = Customer{
				ExternalID: customer.str("externalId", "external_id"),
				Email:      customer.str("email"),
			}
		}
	}
	if ev.CustomerID == "" && customer != nil {
		ev.CustomerID = customer.str("id")
	}

	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return ev, nil
}

// fields is a JSON object decoded lazily, key by key.
type fields map[string]json.RawMessage

// raw returns the first non-null value among the given keys.
func (f fields) raw(keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := f[k]; ok && !isNull(v) {
			return v
		}
	}
	return nil
}

func (f fields) str(keys ...string) string {
	raw := f.raw(keys...)
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (f fields) number(keys ...string) int64 {
	raw := f.raw(keys...)
	if raw == nil {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if fl, err := n.Float64(); err == nil {
		return int64(math.Round(fl))
	}
	return 0
}

func (f fields) flag(keys ...string) bool {
	raw := f.raw(keys...)
	if raw == nil {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseTimestamp accepts ISO-8601 strings and unix seconds or milliseconds.
// Anything else is treated as absent.
func parseTimestamp(raw json.RawMessage) *time.Time {
	if raw == nil {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t
			}
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixTimestamp(secs)
		}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if secs, err := n.Int64(); err == nil {
			return unixTimestamp(secs)
		}
	}
	return nil
}

func unixTimestamp(v int64) *time.Time {
	if v <= 0 {
		return nil
	}
	var t time.Time
	if v > 1e12 {
		t = time.UnixMilli(v).UTC()
	} else {
		t = time.Unix(v, 0).UTC()
	}
	return &t
}

// PeekSubscriptionID returns the subscription id of a parseable
// subscription event, or "" for anything else.
func PeekSubscriptionID(payload []byte) string {
	ev, err := ParseSubscriptionEvent(payload)
	if err != nil {
		return ""
	}
	return ev.ID
}

// PeekEventType returns the envelope type of a webhook body, or "" when the
// body has none.
func PeekEventType(payload []byte) string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ""
	}
	return strings.TrimSpace(envelope.Type)
}
