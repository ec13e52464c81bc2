package controllers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChatFox/internal/pkg/billing"
)

type recordingIngestor struct {
	deliveries []billing.Delivery
}

func (r *recordingIngestor) HandleDelivery(ctx context.Context, d billing.Delivery) {
	r.deliveries = append(r.deliveries, d)
}

func newWebhookApp(ing WebhookIngestor, secret string, now time.Time) *fiber.App {
	bc := NewBillingController(ing, secret)
	bc.now = func() time.Time { return now }

	app := fiber.New()
	app.Post("/webhook", bc.HandleWebhook)
	return app
}

func webhookRequest(payload []byte, id string, sentAt time.Time, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("webhook-id", id)
	req.Header.Set("webhook-timestamp", strconv.FormatInt(sentAt.Unix(), 10))
	req.Header.Set("webhook-signature", signature)
	return req
}

func TestHandleWebhook_ValidSignature(t *testing.T) {
	now := time.Unix(1760000000, 0)
	payload := []byte(`{"type":"subscription.active","data":{"id":"sub_1","status":"active"}}`)
	ing := &recordingIngestor{}
	app := newWebhookApp(ing, "top-secret", now)

	resp, err := app.Test(webhookRequest(payload, "msg_1", now, billing.SignWebhook(payload, "msg_1", now, "top-secret")), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	require.Len(t, ing.deliveries, 1)
	assert.Equal(t, "msg_1", ing.deliveries[0].ID)
	assert.Equal(t, payload, ing.deliveries[0].Payload)
	assert.True(t, ing.deliveries[0].SignatureValid)
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	now := time.Unix(1760000000, 0)
	payload := []byte(`{"type":"subscription.active","data":{"id":"sub_1"}}`)
	ing := &recordingIngestor{}
	app := newWebhookApp(ing, "top-secret", now)

	cases := map[string]*http.Request{
		"wrong secret": webhookRequest(payload, "msg_1", now, billing.SignWebhook(payload, "msg_1", now, "other")),
		"stale":        webhookRequest(payload, "msg_1", now.Add(-time.Hour), billing.SignWebhook(payload, "msg_1", now.Add(-time.Hour), "top-secret")),
		"unsigned":     webhookRequest(payload, "msg_1", now, ""),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		})
	}
	assert.Empty(t, ing.deliveries)
}

func TestHandleWebhook_AcknowledgesUnparseablePayload(t *testing.T) {
	now := time.Unix(1760000000, 0)
	payload := []byte(`not json`)
	ing := &recordingIngestor{}
	app := newWebhookApp(ing, "top-secret", now)

	resp, err := app.Test(webhookRequest(payload, "msg_2", now, billing.SignWebhook(payload, "msg_2", now, "top-secret")), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, ing.deliveries, 1)
}

func TestHandleWebhook_NoSecretSkipsVerification(t *testing.T) {
	ing := &recordingIngestor{}
	app := newWebhookApp(ing, "  ", time.Now())

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{}`)))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, ing.deliveries, 1)
	assert.False(t, ing.deliveries[0].SignatureValid)
}
