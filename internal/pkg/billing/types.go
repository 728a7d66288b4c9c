package billing

import "time"

// Subscription lifecycle event kinds delivered by the billing provider.
const (
	EventSubscriptionCreated        = "subscription_created"
	EventSubscriptionUpdated        = "subscription_updated"
	EventSubscriptionCancelled      = "subscription_cancelled"
	EventSubscriptionExpired        = "subscription_expired"
	EventSubscriptionPaymentSuccess = "subscription_payment_success"
	EventSubscriptionPaymentFailed  = "subscription_payment_failed"
)

// Event is the provider-agnostic shape of a verified webhook delivery used
// by the reconciler when applying subscription state to an account.
type Event struct {
	EventID        string
	Kind           string
	AccountID      uint // from checkout custom data, 0 when absent
	CustomerID     string
	SubscriptionID string
	Status         string
	VariantName    string
	EndsAt         *time.Time
	RawPayload     string
}

// IsSubscriptionEvent reports whether kind is one of the lifecycle kinds the
// reconciler knows how to apply.
func IsSubscriptionEvent(kind string) bool {
	switch kind {
	case EventSubscriptionCreated, EventSubscriptionUpdated,
		EventSubscriptionCancelled, EventSubscriptionExpired,
		EventSubscriptionPaymentSuccess, EventSubscriptionPaymentFailed:
		return true
	default:
		return false
	}
}
