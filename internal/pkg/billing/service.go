package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frameloft/FrameLoft/app/models"
	"github.com/frameloft/FrameLoft/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ErrAccountUnresolved means the event carried neither a usable custom
// account id nor a known customer reference. The delivery is acknowledged so
// the provider stops retrying, but no account state changes: we do not guess
// and must not apply a paid plan to the wrong tenant.
var ErrAccountUnresolved = errors.New("billing: event not attributable to an account")

// staleClaimAfter is how long a claim may sit unprocessed before a
// redelivery is allowed to re-take it (crash between claim and processed).
const staleClaimAfter = 5 * time.Minute

// Outcome describes what processing a delivery amounted to.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeInFlight   Outcome = "in_flight"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnresolved Outcome = "unresolved"
)

// Service interprets verified billing-provider events and brings the Account
// row into the state each event implies. It is the only writer of the
// plan/storage_limit pair.
type Service struct {
	repo Repository
}

// NewService creates a reconciler from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a reconciler from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ProcessEvent runs the full pipeline for one verified delivery: claim,
// parse, resolve, apply, mark processed. The caller has already verified the
// signature over the raw body; nothing here may run before that happened.
//
// Transient failures leave the event claimed-but-unprocessed so a later
// redelivery retries; every transition is idempotent, which makes that safe.
func (s *Service) ProcessEvent(ctx context.Context, eventID, eventType string, raw []byte) (Outcome, error) {
	result, stored, err := s.repo.ClaimWebhookEvent(&models.WebhookEvent{
		EventID:   eventID,
		EventType: eventType,
		Payload:   string(raw),
	}, time.Now().Add(-staleClaimAfter))
	if err != nil {
		return OutcomeInFlight, fmt.Errorf("billing: claim failed: %w", err)
	}
	switch result {
	case AlreadyProcessed:
		log.Infof("[Billing] Duplicate delivery of event %s recorded (delivery %d)", eventID, stored.DeliveryCount)
		return OutcomeDuplicate, nil
	case AlreadyInFlight:
		log.Warnf("[Billing] Event %s is already being processed", eventID)
		return OutcomeInFlight, nil
	}

	event, err := ParseWebhookEvent(raw)
	if err != nil {
		// A malformed payload will not improve on retry; close it out.
		if markErr := s.repo.MarkWebhookProcessed(eventID, err.Error()); markErr != nil {
			return OutcomeIgnored, markErr
		}
		return OutcomeIgnored, err
	}
	event.EventID = eventID

	if !IsSubscriptionEvent(event.Kind) {
		if err := s.repo.MarkWebhookProcessed(eventID, "ignored event kind "+event.Kind); err != nil {
			return OutcomeIgnored, err
		}
		return OutcomeIgnored, nil
	}

	if err := s.ApplyEvent(ctx, event); err != nil {
		if errors.Is(err, ErrAccountUnresolved) {
			log.Warnf("[Billing] Event %s (%s) could not be attributed to an account", eventID, event.Kind)
			if markErr := s.repo.MarkWebhookProcessed(eventID, "no resolvable account"); markErr != nil {
				return OutcomeUnresolved, markErr
			}
			return OutcomeUnresolved, nil
		}
		if recErr := s.repo.RecordWebhookFailure(eventID, err.Error()); recErr != nil {
			log.Errorf("[Billing] Failed to record processing error for %s: %v", eventID, recErr)
		}
		return OutcomeInFlight, err
	}

	if err := s.repo.MarkWebhookProcessed(eventID, ""); err != nil {
		return OutcomeApplied, err
	}
	return OutcomeApplied, nil
}

// ApplyEvent resolves the target account and applies the event's state
// transition. Re-applying the same event yields the same account state.
func (s *Service) ApplyEvent(ctx context.Context, event *Event) error {
	account, err := s.resolveAccount(event)
	if err != nil {
		return err
	}

	updates, err := s.transitionUpdates(event)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	if err := s.repo.UpdateAccountSubscription(account.ID, updates); err != nil {
		return fmt.Errorf("billing: applying %s to account %d: %w", event.Kind, account.ID, err)
	}
	log.Infof("[Billing] Applied %s to account %d", event.Kind, account.ID)
	return nil
}

// resolveAccount implements the attribution waterfall: the explicit account
// id from checkout custom data wins, then a lookup by billing_customer_id.
func (s *Service) resolveAccount(event *Event) (*models.Account, error) {
	if event.AccountID != 0 {
		account, err := s.repo.GetAccountByID(event.AccountID)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if event.CustomerID != "" {
		account, err := s.repo.GetAccountByCustomerID(event.CustomerID)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrAccountUnresolved
}

// transitionUpdates builds the multi-column update for one event kind.
// plan and storage_limit are always written together, derived from the same
// catalog lookup the admission check uses.
func (s *Service) transitionUpdates(event *Event) (map[string]interface{}, error) {
	switch event.Kind {
	case EventSubscriptionCreated:
		plan := entitlements.PlanFromVariant(event.VariantName)
		return map[string]interface{}{
			"plan":                    string(plan),
			"storage_limit":           entitlements.StorageLimitBytes(plan),
			"subscription_status":     event.Status,
			"billing_customer_id":     event.CustomerID,
			"billing_subscription_id": event.SubscriptionID,
			"subscription_ends_at":    event.EndsAt,
		}, nil

	case EventSubscriptionUpdated:
		plan := entitlements.PlanFromVariant(event.VariantName)
		return map[string]interface{}{
			"plan":                    string(plan),
			"storage_limit":           entitlements.StorageLimitBytes(plan),
			"subscription_status":     event.Status,
			"billing_subscription_id": event.SubscriptionID,
			"subscription_ends_at":    event.EndsAt,
		}, nil

	case EventSubscriptionCancelled:
		// Plan and ceiling stay; the ledger evaluates the grace period
		// lazily against subscription_ends_at at admission time.
		return map[string]interface{}{
			"subscription_status":  models.SubscriptionStatusCancelled,
			"subscription_ends_at": event.EndsAt,
		}, nil

	case EventSubscriptionExpired:
		return map[string]interface{}{
			"subscription_status":  models.SubscriptionStatusExpired,
			"subscription_ends_at": event.EndsAt,
		}, nil

	case EventSubscriptionPaymentSuccess:
		// Authoritative proof of paid status even if the created event was
		// lost; plan and ceiling are re-derived from the event's variant.
		plan := entitlements.PlanFromVariant(event.VariantName)
		updates := map[string]interface{}{
			"plan":                string(plan),
			"storage_limit":       entitlements.StorageLimitBytes(plan),
			"subscription_status": models.SubscriptionStatusActive,
		}
		if event.CustomerID != "" {
			updates["billing_customer_id"] = event.CustomerID
		}
		if event.EndsAt != nil {
			// renewal moves the period end forward; a stale cancellation
			// date must not linger on a now-active row
			updates["subscription_ends_at"] = event.EndsAt
		}
		return updates, nil

	case EventSubscriptionPaymentFailed:
		// First failure does not shrink the quota.
		return map[string]interface{}{
			"subscription_status": models.SubscriptionStatusPastDue,
		}, nil

	default:
		return nil, fmt.Errorf("billing: unhandled event kind %q", event.Kind)
	}
}
