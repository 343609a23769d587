package service

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/scalpel-app/scalpel/internal/models"
	"github.com/scalpel-app/scalpel/internal/repository"
)

// QuotaError reports a rejected reservation along with the exact number of
// files still available, so callers can tell "none left" from "batch too
// large for what remains".
type QuotaError struct {
	Requested int
	Remaining int
}

func (e *QuotaError) Error() string {
	if e.Remaining == 0 {
		return "file limit reached"
	}
	return fmt.Sprintf("batch of %d exceeds remaining quota of %d", e.Requested, e.Remaining)
}

// QuotaService charges batches of files against an account's plan limit.
type QuotaService struct {
	userRepo *repository.UserRepository
}

func NewQuotaService(userRepo *repository.UserRepository) *QuotaService {
	return &QuotaService{userRepo: userRepo}
}

// Reserve charges count files to the account. The check and increment happen
// in a single conditional update, so concurrent batches for the same account
// cannot both pass on the same remaining quota. A failed reservation is never
// retried here; the caller gets a *QuotaError with the remaining count.
func (s *QuotaService) Reserve(userID string, count int) error {
	ok, err := s.userRepo.ReserveFiles(userID, count)
	if err != nil {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}
	if ok {
		return nil
	}

	// Reservation lost. Re-read the account for an accurate remaining count;
	// the number is informational, the rejection itself already happened
	// atomically.
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unknown account %s", userID)
		}
		return fmt.Errorf("failed to load account: %w", err)
	}
	return &QuotaError{Requested: count, Remaining: user.Remaining()}
}

// PlanInfo returns the account's current plan snapshot for reporting.
func (s *QuotaService) PlanInfo(userID string) (*models.PlanInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	return &models.PlanInfo{
		Plan:      user.Plan,
		FileLimit: user.FileLimit,
		FilesUsed: user.FilesUsed,
	}, nil
}
