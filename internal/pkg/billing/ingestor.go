package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
)

// Webhook outcomes, used as log and metric labels and stored on receipts.
const (
	OutcomeProcessed  = models.WebhookOutcomeProcessed
	OutcomeIgnored    = models.WebhookOutcomeIgnored
	OutcomeInvalid    = models.WebhookOutcomeInvalid
	OutcomeFailed     = models.WebhookOutcomeFailed
	OutcomeSuperseded = models.WebhookOutcomeSuperseded
	OutcomeDuplicate  = "duplicate"
)

// SubscriptionWriter applies a subscription event to durable storage.
type SubscriptionWriter interface {
	Upsert(ctx context.Context, ev *SubscriptionEvent) (*models.Subscription, error)
}

// EventRecorder keeps the receipt log of webhook deliveries.
type EventRecorder interface {
	RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome string, processingErr error) error
	HasLaterAppliedWebhook(ctx context.Context, provider, subscriptionID string, webhookEventID uint) (bool, error)
}

// Ingestor turns provider webhooks into subscription upserts. It never
// returns errors to its caller: the provider must always get an
// acknowledgement, so failures end as log lines.
type Ingestor struct {
	store    SubscriptionWriter
	recorder EventRecorder
	metrics  *metrics.Metrics
	provider string
}

// NewIngestor creates an ingestor. recorder may be nil, in which case
// deliveries are neither logged nor deduplicated.
func NewIngestor(store SubscriptionWriter, recorder EventRecorder, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		store:    store,
		recorder: recorder,
		metrics:  m,
		provider: models.BillingProviderPolar,
	}
}

// Handle applies one raw webhook body.
func (i *Ingestor) Handle(ctx context.Context, raw []byte) {
	i.apply(ctx, raw)
}

// HandleDelivery records the delivery, skips it when an earlier copy was
// already processed successfully, and applies it otherwise.
func (i *Ingestor) HandleDelivery(ctx context.Context, d Delivery) {
	if i.recorder == nil {
		i.apply(ctx, d.Payload)
		return
	}

	created, event, err := i.recordDelivery(ctx, d)
	if err != nil {
		log.Errorf("[Billing] Failed to record webhook %q: %v", d.ID, err)
		i.apply(ctx, d.Payload)
		return
	}
	if !created && event.Succeeded() {
		log.Infof("[Billing] Skipping duplicate webhook %s (%s)", event.ProviderEventID, event.EventType)
		i.metrics.RecordWebhook(OutcomeDuplicate)
		return
	}

	outcome, err := i.apply(ctx, d.Payload)
	i.finish(ctx, event, outcome, err)
}

// Replay re-applies a stored delivery and updates its receipt. A delivery
// is not applied when a later delivery for the same subscription was
// already applied; its receipt is closed as superseded. The outcome and
// processing error are returned so that tools can report them.
func (i *Ingestor) Replay(ctx context.Context, event models.BillingWebhookEvent) (string, error) {
	raw := []byte(event.PayloadJSON)

	if subID := PeekSubscriptionID(raw); subID != "" && i.recorder != nil {
		provider := event.Provider
		if provider == "" {
			provider = i.provider
		}
		later, err := i.recorder.HasLaterAppliedWebhook(ctx, provider, subID, event.ID)
		if err != nil {
			// Left pending; the next replay tries again.
			log.Errorf("[Billing] Failed to check webhook %d for newer deliveries: %v", event.ID, err)
			return OutcomeFailed, err
		}
		if later {
			log.Infof("[Billing] Webhook %d for subscription %s superseded by a newer delivery", event.ID, subID)
			i.metrics.RecordWebhook(OutcomeSuperseded)
			i.finish(ctx, &event, OutcomeSuperseded, nil)
			return OutcomeSuperseded, nil
		}
	}

	outcome, err := i.apply(ctx, raw)
	i.finish(ctx, &event, outcome, err)
	return outcome, err
}

func (i *Ingestor) recordDelivery(ctx context.Context, d Delivery) (created bool, event *models.BillingWebhookEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while recording webhook: %v", r)
		}
	}()
	eventType := d.Type
	if eventType == "" {
		eventType = PeekEventType(d.Payload)
	}
	return i.recorder.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        i.provider,
		ProviderEventID: d.ID,
		EventType:       eventType,
		SubscriptionID:  PeekSubscriptionID(d.Payload),
		PayloadJSON:     string(d.Payload),
		SignatureValid:  d.SignatureValid,
	})
}

func (i *Ingestor) finish(ctx context.Context, event *models.BillingWebhookEvent, outcome string, processingErr error) {
	if i.recorder == nil || event == nil || event.ID == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Billing] Panic while marking webhook %d processed: %v", event.ID, r)
		}
	}()
	if err := i.recorder.MarkWebhookProcessed(ctx, event.ID, outcome, processingErr); err != nil {
		log.Errorf("[Billing] Failed to mark webhook %d processed: %v", event.ID, err)
	}
}

// apply parses and upserts one body, logging the outcome. Only failures
// that a retry can fix are returned as errors; ignored and malformed
// bodies are final.
func (i *Ingestor) apply(ctx context.Context, raw []byte) (string, error) {
	outcome, err := i.process(ctx, raw)
	i.metrics.RecordWebhook(outcome)

	switch outcome {
	case OutcomeIgnored:
		log.Debugf("[Billing] Ignoring webhook: %v", err)
		return outcome, nil
	case OutcomeInvalid:
		log.Warnf("[Billing] Dropping webhook: %v", err)
		return outcome, nil
	case OutcomeFailed:
		var storeErr *DurableStoreError
		if errors.As(err, &storeErr) {
			log.Errorf("[Billing] Durable store failure during %s: %v", storeErr.Op, storeErr.Err)
		} else {
			log.Errorf("[Billing] Webhook processing failed: %v", err)
		}
	}
	return outcome, err
}

func (i *Ingestor) process(ctx context.Context, raw []byte) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeFailed
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ev, err := ParseSubscriptionEvent(raw)
	switch {
	case errors.Is(err, ErrIgnoredEvent):
		return OutcomeIgnored, err
	case err != nil:
		return OutcomeInvalid, err
	}

	if _, err := i.store.Upsert(ctx, ev); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeProcessed, nil
}
