package notifier

import (
	"context"
	"fmt"
	"sort"

	"github.com/frameloft/FrameLoft/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// Sender delivers a threshold alert to the account owner. Delivery is best
// effort: a failure must never roll back the threshold state that triggered
// it.
type Sender interface {
	Send(account *models.Account, threshold int, usagePercent float64) error
}

// Service scans the quota ledger and alerts each account at most once per
// threshold crossing. The state machine per account is
// below -> crossed (notify once) -> above (silent) -> below again (re-armed),
// tracked by the last_alert_threshold column rather than a selection band.
type Service struct {
	repo       Repository
	sender     Sender
	thresholds []int // ascending usage percentages, e.g. 70, 90
}

// NewService creates a notifier service. Thresholds are sorted ascending.
func NewService(repo Repository, sender Sender, thresholds []int) *Service {
	ts := append([]int(nil), thresholds...)
	sort.Ints(ts)
	return &Service{repo: repo, sender: sender, thresholds: ts}
}

// RunScan performs one pass over the alert candidates.
func (s *Service) RunScan(ctx context.Context) error {
	if len(s.thresholds) == 0 {
		return nil
	}

	accounts, err := s.repo.ListAlertCandidates(ctx, s.thresholds[0])
	if err != nil {
		return fmt.Errorf("notifier: listing candidates: %w", err)
	}

	for i := range accounts {
		account := &accounts[i]
		if err := s.scanAccount(ctx, account); err != nil {
			log.Errorf("[Notifier] Account %d scan failed: %v", account.ID, err)
		}
	}
	return nil
}

func (s *Service) scanAccount(ctx context.Context, account *models.Account) error {
	usage := account.UsagePercent()
	target := s.highestCrossedThreshold(usage)

	switch {
	case target > account.LastAlertThreshold:
		return s.alert(ctx, account, target, usage)
	case target < account.LastAlertThreshold:
		// Usage dropped below the recorded threshold; re-arm silently.
		return s.repo.RearmAlertThreshold(ctx, account.ID, target)
	default:
		return nil
	}
}

func (s *Service) alert(ctx context.Context, account *models.Account, threshold int, usage float64) error {
	// The conditional advance guards the at-most-once send: replicas racing
	// on the same scan interval lose the row update, not a local check.
	won, err := s.repo.AdvanceAlertThreshold(ctx, account.ID, threshold)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	content := fmt.Sprintf("Your gallery storage is %.0f%% full (%d%% threshold).", usage, threshold)
	if err := s.repo.CreateNotification(ctx, account.ID, content); err != nil {
		log.Errorf("[Notifier] Could not record notification for account %d: %v", account.ID, err)
	}
	if err := s.sender.Send(account, threshold, usage); err != nil {
		log.Errorf("[Notifier] Alert delivery to account %d failed: %v", account.ID, err)
	}
	log.Infof("[Notifier] Account %d crossed %d%% storage usage", account.ID, threshold)
	return nil
}

// highestCrossedThreshold returns the largest configured threshold at or
// below the usage percentage, 0 when none is crossed.
func (s *Service) highestCrossedThreshold(usage float64) int {
	crossed := 0
	for _, t := range s.thresholds {
		if usage >= float64(t) {
			crossed = t
		}
	}
	return crossed
}
