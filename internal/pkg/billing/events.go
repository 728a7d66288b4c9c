package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/frameloft/FrameLoft/app/models"
)

type webhookPayload struct {
	Meta struct {
		EventName  string `json:"event_name"`
		CustomData struct {
			AccountID string `json:"account_id"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			CustomerID  json.Number `json:"customer_id"`
			Status      string      `json:"status"`
			VariantName string      `json:"variant_name"`
			EndsAt      *string     `json:"ends_at"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseWebhookEvent decodes a raw provider payload into the normalized Event.
// Signature verification has already happened on the raw bytes by the time
// this is called.
func ParseWebhookEvent(raw []byte) (*Event, error) {
	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("billing: invalid webhook payload: %w", err)
	}

	kind := strings.ToLower(strings.TrimSpace(p.Meta.EventName))
	if kind == "" {
		return nil, fmt.Errorf("billing: webhook payload carries no event_name")
	}

	ev := &Event{
		Kind:           kind,
		CustomerID:     p.Data.Attributes.CustomerID.String(),
		SubscriptionID: strings.TrimSpace(p.Data.ID),
		Status:         normalizeSubscriptionStatus(p.Data.Attributes.Status),
		VariantName:    strings.TrimSpace(p.Data.Attributes.VariantName),
		RawPayload:     string(raw),
	}
	if ev.CustomerID == "" || ev.CustomerID == "0" {
		ev.CustomerID = ""
	}

	if id := strings.TrimSpace(p.Meta.CustomData.AccountID); id != "" {
		parsed, err := strconv.ParseUint(id, 10, 64)
		if err == nil && parsed > 0 {
			ev.AccountID = uint(parsed)
		}
	}

	if p.Data.Attributes.EndsAt != nil && strings.TrimSpace(*p.Data.Attributes.EndsAt) != "" {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(*p.Data.Attributes.EndsAt))
		if err != nil {
			return nil, fmt.Errorf("billing: invalid ends_at %q: %w", *p.Data.Attributes.EndsAt, err)
		}
		ev.EndsAt = &t
	}

	return ev, nil
}

// normalizeSubscriptionStatus maps the provider status to the local enum.
// Unknown or empty statuses fall back to active, matching the provider's
// behavior of only delivering events for live subscriptions.
func normalizeSubscriptionStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusOnTrial:
		return models.SubscriptionStatusOnTrial
	case models.SubscriptionStatusPastDue:
		return models.SubscriptionStatusPastDue
	case models.SubscriptionStatusUnpaid:
		return models.SubscriptionStatusUnpaid
	case models.SubscriptionStatusCancelled:
		return models.SubscriptionStatusCancelled
	case models.SubscriptionStatusExpired:
		return models.SubscriptionStatusExpired
	default:
		return models.SubscriptionStatusActive
	}
}
