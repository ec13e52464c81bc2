package constants

// Route constants
const (
	BillingWebhookRoute = "/api/webhooks/billing"
	MetricsRoute        = "/metrics"
	APIRoute            = "/api"
	// Relative to APIRoute
	APIV1Path = "/v1"
)
