package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChatFox/internal/pkg/billing"
)

const webhookProcessingTimeout = 15 * time.Second

// WebhookIngestor applies webhook deliveries. *billing.Ingestor implements it.
type WebhookIngestor interface {
	HandleDelivery(ctx context.Context, d billing.Delivery)
}

// BillingController receives billing provider webhooks.
type BillingController struct {
	ingestor WebhookIngestor
	secret   string
	now      func() time.Time
}

// NewBillingController creates the webhook controller. An empty secret
// disables signature verification.
func NewBillingController(ingestor WebhookIngestor, secret string) *BillingController {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		log.Warn("[Billing] BILLING_WEBHOOK_SECRET is empty, webhook signatures are not verified")
	}
	return &BillingController{ingestor: ingestor, secret: secret, now: time.Now}
}

// HandleWebhook acknowledges every delivery with a valid signature, whether
// or not it could be applied. Failures are logged and kept in the receipt
// log for replay.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	eventID := firstHeaderValue(c, "webhook-id")

	signatureValid := false
	if bc.secret != "" {
		err := billing.VerifyWebhookSignature(rawBody, eventID,
			c.Get("webhook-timestamp"), c.Get("webhook-signature"), bc.secret, bc.now())
		if err != nil {
			log.Warnf("[Billing] Rejecting webhook %q: %v", eventID, err)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid_signature"})
		}
		signatureValid = true
	}

	// Detached from the request so a disconnecting client cannot abort a write.
	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessingTimeout)
	defer cancel()

	bc.ingestor.HandleDelivery(ctx, billing.Delivery{
		ID:             eventID,
		Payload:        rawBody,
		SignatureValid: signatureValid,
	})
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
