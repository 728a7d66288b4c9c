package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frameloft/FrameLoft/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrQuotaExceeded is returned when a reservation would push storage_used
// past the account's effective limit. It is user-facing and never retried
// automatically; callers offer an upgrade path instead.
var ErrQuotaExceeded = errors.New("quota: storage limit exceeded")

// Service is the single writer of Account.storage_used. Every write-path
// request must pass TryReserve before a byte is persisted; all other code
// is forbidden from touching the column.
type Service struct {
	repo Repository
}

// NewService creates a quota service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a quota service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Reservation is a durable, already-persisted debit against an account's
// quota. It converts to a permanent debit via Commit or is reversed via
// Release when the upload does not land.
type Reservation struct {
	ID        string
	AccountID uint
	Bytes     int64
	CreatedAt time.Time
}

// TryReserve atomically debits bytes against the account's storage quota.
// The check and the debit are one indivisible statement against the store;
// a loser of two racing reservations observes ErrQuotaExceeded and must
// resubmit a fresh TryReserve rather than re-checking usage itself.
// A zero-byte reservation always succeeds and is a no-op.
func (s *Service) TryReserve(ctx context.Context, accountID uint, bytes int64) (*Reservation, error) {
	if bytes < 0 {
		return nil, fmt.Errorf("quota: negative reservation of %d bytes", bytes)
	}

	res := &Reservation{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Bytes:     bytes,
		CreatedAt: time.Now(),
	}
	if bytes == 0 {
		return res, nil
	}

	applied, err := s.repo.ReserveStorage(ctx, accountID, bytes, time.Now())
	if err != nil {
		return nil, fmt.Errorf("quota: reserve failed: %w", err)
	}
	if !applied {
		// Zero rows can mean a missing account as well as an exceeded limit.
		if _, lookupErr := s.repo.GetAccount(ctx, accountID); lookupErr != nil {
			return nil, fmt.Errorf("quota: account %d: %w", accountID, lookupErr)
		}
		return nil, ErrQuotaExceeded
	}
	return res, nil
}

// Commit marks a reservation as a permanent debit. The reserve already
// persisted the debit, so this is a no-op today; it exists so callers can
// express "the upload definitely happened" should reservation and debit
// ever be decoupled.
func (s *Service) Commit(res *Reservation) {
	if res == nil {
		return
	}
	log.Debugf("[Quota] Committed reservation %s (%d bytes) for account %d", res.ID, res.Bytes, res.AccountID)
}

// Release credits bytes back to the account, floored at zero. Used after a
// confirmed delete and as the compensating step when an upload fails after
// a successful reservation.
func (s *Service) Release(ctx context.Context, accountID uint, bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	if err := s.repo.ReleaseStorage(ctx, accountID, bytes); err != nil {
		return fmt.Errorf("quota: release failed: %w", err)
	}
	return nil
}

// ReleaseReservation undoes a reservation after a failed or ambiguous upload.
func (s *Service) ReleaseReservation(ctx context.Context, res *Reservation) error {
	if res == nil {
		return nil
	}
	return s.Release(ctx, res.AccountID, res.Bytes)
}

// Account loads the account backing the ledger, for read-only reporting.
func (s *Service) Account(ctx context.Context, accountID uint) (*models.Account, error) {
	return s.repo.GetAccount(ctx, accountID)
}

// UsagePercent returns the account's storage usage as a percentage,
// 0 for unlimited plans.
func (s *Service) UsagePercent(ctx context.Context, accountID uint) (float64, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.UsagePercent(), nil
}
