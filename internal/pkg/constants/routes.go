package constants

// Static route constants
const (
	APIRoute            = "/api"
	BillingWebhookRoute = "/billing/webhook"
	AssetsRoute         = "/assets"
	AssetByUUIDRoute    = "/assets/:uuid"
	AccountUsageRoute   = "/account/usage"
)
