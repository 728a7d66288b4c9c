package controllers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/frameloft/FrameLoft/internal/pkg/billing"
	"github.com/frameloft/FrameLoft/internal/pkg/database"
	"github.com/frameloft/FrameLoft/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleBillingWebhook receives subscription lifecycle events from the
// billing provider. The signature is verified over the raw body before
// anything is persisted; an unverifiable delivery leaves no trace beyond a
// log line so the provider's retry/alerting fires.
func HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	eventType := strings.TrimSpace(c.Get("X-Event-Name"))
	eventID := firstHeaderValue(c, "X-Event-ID", "X-Delivery-ID")
	signature := strings.TrimSpace(c.Get("X-Signature"))
	secret := env.GetEnv("BILLING_WEBHOOK_SECRET", "")

	if !billing.VerifyWebhookSignature(rawBody, signature, secret) {
		log.Warnf("[Billing] Rejected webhook with invalid signature (event_type=%s)", eventType)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	// Providers occasionally omit a delivery id; fall back to a payload hash
	// so the idempotency key space stays total.
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	outcome, err := svc.ProcessEvent(ctx, eventID, eventType, rawBody)
	if err != nil {
		if outcome == billing.OutcomeIgnored {
			// malformed payload, closed out; a retry would send the same bytes
			log.Warnf("[Billing] Event %s had an unusable payload: %v", eventID, err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed_payload"})
		}
		log.Errorf("[Billing] Processing event %s failed: %v", eventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	switch outcome {
	case billing.OutcomeDuplicate:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	case billing.OutcomeInFlight:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "in_flight": true})
	case billing.OutcomeIgnored:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	case billing.OutcomeUnresolved:
		// Acknowledged so the provider stops retrying; retries add no information.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	default:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}
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
