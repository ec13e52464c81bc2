package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// WebhookTolerance is how far a webhook-timestamp may drift from our clock.
const WebhookTolerance = 5 * time.Minute

const secretPrefix = "whsec_"

var (
	ErrMissingSignature   = errors.New("missing webhook signature headers")
	ErrSignatureTimestamp = errors.New("webhook timestamp outside tolerance")
	ErrSignatureMismatch  = errors.New("webhook signature mismatch")
)

// VerifyWebhookSignature checks a Standard Webhooks signature: the
// webhook-signature header holds space separated "v1,<base64>" entries, each
// an HMAC-SHA256 over "<webhook-id>.<webhook-timestamp>.<body>".
func VerifyWebhookSignature(payload []byte, id, timestamp, signatureHeader, secret string, now time.Time) error {
	id = strings.TrimSpace(id)
	timestamp = strings.TrimSpace(timestamp)
	signatureHeader = strings.TrimSpace(signatureHeader)
	if id == "" || timestamp == "" || signatureHeader == "" {
		return ErrMissingSignature
	}

	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrSignatureTimestamp
	}
	sentAt := time.Unix(secs, 0)
	if now.Sub(sentAt) > WebhookTolerance || sentAt.Sub(now) > WebhookTolerance {
		return ErrSignatureTimestamp
	}

	expected := computeSignature(webhookKey(secret), id, timestamp, payload)
	for _, candidate := range strings.Fields(signatureHeader) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// SignWebhook produces the webhook-signature header value for a payload.
func SignWebhook(payload []byte, id string, sentAt time.Time, secret string) string {
	ts := strconv.FormatInt(sentAt.Unix(), 10)
	sig := computeSignature(webhookKey(secret), id, ts, payload)
	return "v1," + base64.StdEncoding.EncodeToString(sig)
}

func computeSignature(key []byte, id, timestamp string, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// webhookKey decodes "whsec_" prefixed secrets; any other secret is used as
// raw bytes.
func webhookKey(secret string) []byte {
	secret = strings.TrimSpace(secret)
	if strings.HasPrefix(secret, secretPrefix) {
		if key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix)); err == nil {
			return key
		}
	}
	return []byte(secret)
}
