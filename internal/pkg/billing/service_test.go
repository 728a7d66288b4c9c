package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/frameloft/FrameLoft/app/models"
	"github.com/frameloft/FrameLoft/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// fakeRepository mirrors the claim and update semantics of the GORM
// repository in memory.
type fakeRepository struct {
	events   map[string]*models.WebhookEvent
	accounts map[uint]*models.Account
}

func newFakeRepository(accounts ...*models.Account) *fakeRepository {
	r := &fakeRepository{
		events:   make(map[string]*models.WebhookEvent),
		accounts: make(map[uint]*models.Account),
	}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *fakeRepository) ClaimWebhookEvent(event *models.WebhookEvent, staleBefore time.Time) (ClaimResult, *models.WebhookEvent, error) {
	stored, ok := r.events[event.EventID]
	if !ok {
		event.DeliveryCount = 1
		r.events[event.EventID] = event
		stored = event
	} else {
		stored.DeliveryCount++
	}

	if stored.ProcessedAt != nil {
		return AlreadyProcessed, stored, nil
	}
	if stored.ClaimedAt != nil && stored.ClaimedAt.After(staleBefore) {
		return AlreadyInFlight, stored, nil
	}
	now := time.Now()
	stored.ClaimedAt = &now
	return Claimed, stored, nil
}

func (r *fakeRepository) MarkWebhookProcessed(eventID string, note string) error {
	stored, ok := r.events[eventID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	stored.ProcessedAt = &now
	stored.ProcessingError = note
	return nil
}

func (r *fakeRepository) RecordWebhookFailure(eventID string, processingError string) error {
	stored, ok := r.events[eventID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.ProcessingError = processingError
	return nil
}

func (r *fakeRepository) GetAccountByID(accountID uint) (*models.Account, error) {
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return a, nil
}

func (r *fakeRepository) GetAccountByCustomerID(customerID string) (*models.Account, error) {
	for _, a := range r.accounts {
		if a.BillingCustomerID == customerID {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) UpdateAccountSubscription(accountID uint, updates map[string]interface{}) error {
	a, ok := r.accounts[accountID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for column, value := range updates {
		switch column {
		case "plan":
			a.Plan = value.(string)
		case "storage_limit":
			a.StorageLimit = value.(int64)
		case "subscription_status":
			a.SubscriptionStatus = value.(string)
		case "billing_customer_id":
			a.BillingCustomerID = value.(string)
		case "billing_subscription_id":
			a.BillingSubscriptionID = value.(string)
		case "subscription_ends_at":
			if value == nil {
				a.SubscriptionEndsAt = nil
			} else {
				a.SubscriptionEndsAt = value.(*time.Time)
			}
		default:
			return fmt.Errorf("unexpected update column %q", column)
		}
	}
	return nil
}

func freshAccount() *models.Account {
	return &models.Account{
		ID:                 42,
		Plan:               string(entitlements.PlanFree),
		SubscriptionStatus: models.SubscriptionStatusFree,
		StorageLimit:       entitlements.StorageLimitBytes(entitlements.PlanFree),
	}
}

func createdPayload(eventID string) (string, []byte) {
	return eventID, []byte(`{
		"meta": {
			"event_name": "subscription_created",
			"custom_data": { "account_id": "42" }
		},
		"data": {
			"id": "sub_123",
			"attributes": {
				"customer_id": 99,
				"status": "active",
				"variant_name": "Pro Monthly"
			}
		}
	}`)
}

func TestProcessEventSubscriptionCreated(t *testing.T) {
	account := freshAccount()
	repo := newFakeRepository(account)
	svc := NewService(repo)

	eventID, raw := createdPayload("evt_1")
	outcome, err := svc.ProcessEvent(context.Background(), eventID, EventSubscriptionCreated, raw)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("outcome = %q, want applied", outcome)
	}

	if account.Plan != string(entitlements.PlanPro) {
		t.Fatalf("plan = %q, want pro", account.Plan)
	}
	if account.StorageLimit != entitlements.StorageLimitBytes(entitlements.PlanPro) {
		t.Fatalf("storage_limit = %d, want pro ceiling", account.StorageLimit)
	}
	if account.SubscriptionStatus != models.SubscriptionStatusActive {
		t.Fatalf("status = %q, want active", account.SubscriptionStatus)
	}
	if account.BillingCustomerID != "99" || account.BillingSubscriptionID != "sub_123" {
		t.Fatalf("billing ids not set: customer=%q sub=%q", account.BillingCustomerID, account.BillingSubscriptionID)
	}
	if !repo.events["evt_1"].Processed() {
		t.Fatalf("event not marked processed")
	}
}

func TestProcessEventIsIdempotent(t *testing.T) {
	account := freshAccount()
	repo := newFakeRepository(account)
	svc := NewService(repo)

	eventID, raw := createdPayload("evt_1")
	if _, err := svc.ProcessEvent(context.Background(), eventID, EventSubscriptionCreated, raw); err != nil {
		t.Fatalf("first process failed: %v", err)
	}
	snapshot := *account

	outcome, err := svc.ProcessEvent(context.Background(), eventID, EventSubscriptionCreated, raw)
	if err != nil {
		t.Fatalf("second process failed: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %q, want duplicate", outcome)
	}
	if *account != snapshot {
		t.Fatalf("duplicate delivery changed account state")
	}
	if repo.events["evt_1"].DeliveryCount != 2 {
		t.Fatalf("delivery_count = %d, want 2", repo.events["evt_1"].DeliveryCount)
	}
}

func TestApplyEventTwiceYieldsSameState(t *testing.T) {
	account := freshAccount()
	svc := NewService(newFakeRepository(account))

	_, raw := createdPayload("evt_1")
	event, err := ParseWebhookEvent(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if err := svc.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	snapshot := *account
	if err := svc.ApplyEvent(context.Background(), event); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if *account != snapshot {
		t.Fatalf("re-application changed account state")
	}
}

func TestCancelledThenPaymentRestoresActive(t *testing.T) {
	account := freshAccount()
	account.Plan = string(entitlements.PlanPro)
	account.StorageLimit = entitlements.StorageLimitBytes(entitlements.PlanPro)
	account.SubscriptionStatus = models.SubscriptionStatusActive
	account.BillingCustomerID = "99"
	svc := NewService(newFakeRepository(account))
	ctx := context.Background()

	cancelled := []byte(`{
		"meta": { "event_name": "subscription_cancelled", "custom_data": { "account_id": "42" } },
		"data": { "id": "sub_123", "attributes": { "customer_id": 99, "status": "cancelled", "ends_at": "2026-10-01T00:00:00Z" } }
	}`)
	if outcome, err := svc.ProcessEvent(ctx, "evt_cancel", EventSubscriptionCancelled, cancelled); err != nil || outcome != OutcomeApplied {
		t.Fatalf("cancel: outcome=%q err=%v", outcome, err)
	}
	if account.SubscriptionStatus != models.SubscriptionStatusCancelled {
		t.Fatalf("status after cancel = %q", account.SubscriptionStatus)
	}
	if account.Plan != string(entitlements.PlanPro) {
		t.Fatalf("cancel must not downgrade plan immediately, got %q", account.Plan)
	}
	if account.SubscriptionEndsAt == nil {
		t.Fatalf("cancel must set subscription_ends_at")
	}

	payment := []byte(`{
		"meta": { "event_name": "subscription_payment_success", "custom_data": { "account_id": "42" } },
		"data": { "id": "sub_123", "attributes": { "customer_id": 99, "variant_name": "Pro Monthly" } }
	}`)
	if outcome, err := svc.ProcessEvent(ctx, "evt_pay", EventSubscriptionPaymentSuccess, payment); err != nil || outcome != OutcomeApplied {
		t.Fatalf("payment: outcome=%q err=%v", outcome, err)
	}
	if account.SubscriptionStatus != models.SubscriptionStatusActive {
		t.Fatalf("status after payment = %q, want active", account.SubscriptionStatus)
	}
	if account.StorageLimit != entitlements.StorageLimitBytes(entitlements.PlanPro) {
		t.Fatalf("payment must re-derive storage_limit, got %d", account.StorageLimit)
	}
}

func TestPaymentAdvancesPeriodEndAfterCancellation(t *testing.T) {
	account := freshAccount()
	account.Plan = string(entitlements.PlanPro)
	account.StorageLimit = entitlements.StorageLimitBytes(entitlements.PlanPro)
	account.SubscriptionStatus = models.SubscriptionStatusActive
	account.BillingCustomerID = "99"
	svc := NewService(newFakeRepository(account))
	ctx := context.Background()

	cancelled := []byte(`{
		"meta": { "event_name": "subscription_cancelled", "custom_data": { "account_id": "42" } },
		"data": { "id": "sub_123", "attributes": { "customer_id": 99, "status": "cancelled", "ends_at": "2026-10-01T00:00:00Z" } }
	}`)
	if outcome, err := svc.ProcessEvent(ctx, "evt_cancel_2", EventSubscriptionCancelled, cancelled); err != nil || outcome != OutcomeApplied {
		t.Fatalf("cancel: outcome=%q err=%v", outcome, err)
	}

	payment := []byte(`{
		"meta": { "event_name": "subscription_payment_success", "custom_data": { "account_id": "42" } },
		"data": { "id": "sub_123", "attributes": { "customer_id": 99, "variant_name": "Pro Monthly", "ends_at": "2026-11-01T00:00:00Z" } }
	}`)
	if outcome, err := svc.ProcessEvent(ctx, "evt_pay_2", EventSubscriptionPaymentSuccess, payment); err != nil || outcome != OutcomeApplied {
		t.Fatalf("payment: outcome=%q err=%v", outcome, err)
	}

	want := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	if account.SubscriptionEndsAt == nil || !account.SubscriptionEndsAt.Equal(want) {
		t.Fatalf("renewal must replace the stale cancellation date, got %v", account.SubscriptionEndsAt)
	}
}

func TestPaymentFailedKeepsPlanAndLimit(t *testing.T) {
	account := freshAccount()
	account.Plan = string(entitlements.PlanBasic)
	account.StorageLimit = entitlements.StorageLimitBytes(entitlements.PlanBasic)
	account.SubscriptionStatus = models.SubscriptionStatusActive
	account.BillingCustomerID = "99"
	svc := NewService(newFakeRepository(account))

	failed := []byte(`{
		"meta": { "event_name": "subscription_payment_failed" },
		"data": { "id": "sub_123", "attributes": { "customer_id": 99 } }
	}`)
	outcome, err := svc.ProcessEvent(context.Background(), "evt_fail", EventSubscriptionPaymentFailed, failed)
	if err != nil || outcome != OutcomeApplied {
		t.Fatalf("outcome=%q err=%v", outcome, err)
	}
	if account.SubscriptionStatus != models.SubscriptionStatusPastDue {
		t.Fatalf("status = %q, want past_due", account.SubscriptionStatus)
	}
	if account.Plan != string(entitlements.PlanBasic) || account.StorageLimit != entitlements.StorageLimitBytes(entitlements.PlanBasic) {
		t.Fatalf("payment failure must not shrink quota")
	}
}

func TestProcessEventUnresolvedAccountAcks(t *testing.T) {
	account := freshAccount()
	repo := newFakeRepository(account)
	svc := NewService(repo)
	snapshot := *account

	raw := []byte(`{
		"meta": { "event_name": "subscription_created" },
		"data": { "id": "sub_9", "attributes": { "customer_id": 12345, "variant_name": "Pro" } }
	}`)
	outcome, err := svc.ProcessEvent(context.Background(), "evt_orphan", EventSubscriptionCreated, raw)
	if err != nil {
		t.Fatalf("unresolved events must not error: %v", err)
	}
	if outcome != OutcomeUnresolved {
		t.Fatalf("outcome = %q, want unresolved", outcome)
	}
	if *account != snapshot {
		t.Fatalf("unresolved event changed account state")
	}
	if !repo.events["evt_orphan"].Processed() {
		t.Fatalf("unresolved event must still be acknowledged as processed")
	}
}

func TestProcessEventResolvesByCustomerID(t *testing.T) {
	account := freshAccount()
	account.BillingCustomerID = "99"
	svc := NewService(newFakeRepository(account))

	// No custom_data account id; attribution falls through to the customer ref.
	raw := []byte(`{
		"meta": { "event_name": "subscription_payment_success" },
		"data": { "id": "sub_123", "attributes": { "customer_id": 99, "variant_name": "Basic" } }
	}`)
	outcome, err := svc.ProcessEvent(context.Background(), "evt_cust", EventSubscriptionPaymentSuccess, raw)
	if err != nil || outcome != OutcomeApplied {
		t.Fatalf("outcome=%q err=%v", outcome, err)
	}
	if account.Plan != string(entitlements.PlanBasic) {
		t.Fatalf("plan = %q, want basic", account.Plan)
	}
}

func TestProcessEventIgnoresUnknownKind(t *testing.T) {
	account := freshAccount()
	repo := newFakeRepository(account)
	svc := NewService(repo)
	snapshot := *account

	raw := []byte(`{"meta": { "event_name": "order_created" }, "data": { "id": "ord_1" }}`)
	outcome, err := svc.ProcessEvent(context.Background(), "evt_order", "order_created", raw)
	if err != nil {
		t.Fatalf("ignored events must not error: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Fatalf("outcome = %q, want ignored", outcome)
	}
	if *account != snapshot {
		t.Fatalf("ignored event changed account state")
	}
}

func TestProcessEventRetryAfterFailure(t *testing.T) {
	account := freshAccount()
	repo := newFakeRepository(account)
	svc := NewService(repo)

	eventID, raw := createdPayload("evt_retry")
	if _, err := svc.ProcessEvent(context.Background(), eventID, EventSubscriptionCreated, raw); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	// Simulate a crash between claim and processed: clear the processed stamp
	// and age the claim past the staleness window.
	stored := repo.events[eventID]
	stored.ProcessedAt = nil
	stale := time.Now().Add(-2 * staleClaimAfter)
	stored.ClaimedAt = &stale

	outcome, err := svc.ProcessEvent(context.Background(), eventID, EventSubscriptionCreated, raw)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("outcome = %q, want applied on stale-claim retry", outcome)
	}
	if !stored.Processed() {
		t.Fatalf("retried event not marked processed")
	}
}
