package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scalpel-app/scalpel/internal/models"
	"github.com/scalpel-app/scalpel/internal/repository"
	"github.com/scalpel-app/scalpel/pkg/testutil"
)

func createQuotaUser(t *testing.T, repo *repository.UserRepository, limit int) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        uuid.New().String() + "@example.com",
		PasswordHash: "$2a$10$fakehash",
		Role:         "user",
		Plan:         models.PlanFree,
		FileLimit:    limit,
		CreatedAt:    time.Now(),
	}
	if err := repo.Create(user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestQuotaService_ReserveWithinLimit(t *testing.T) {
	db, cleanup := testutil.SetupTest(t)
	defer cleanup()

	userRepo := repository.NewUserRepository(db)
	svc := NewQuotaService(userRepo)
	user := createQuotaUser(t, userRepo, 10)

	if err := svc.Reserve(user.ID, 10); err != nil {
		t.Fatalf("expected exact-fit reservation to pass, got %v", err)
	}

	info, err := svc.PlanInfo(user.ID)
	if err != nil {
		t.Fatalf("plan info: %v", err)
	}
	if info.FilesUsed != 10 {
		t.Fatalf("expected files_used=10, got %d", info.FilesUsed)
	}
}

func TestQuotaService_RejectionReportsRemaining(t *testing.T) {
	db, cleanup := testutil.SetupTest(t)
	defer cleanup()

	userRepo := repository.NewUserRepository(db)
	svc := NewQuotaService(userRepo)
	user := createQuotaUser(t, userRepo, 10)

	if err := svc.Reserve(user.ID, 7); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	err := svc.Reserve(user.ID, 5)
	var qerr *QuotaError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected QuotaError, got %v", err)
	}
	if qerr.Remaining != 3 || qerr.Requested != 5 {
		t.Fatalf("expected remaining=3 requested=5, got %+v", qerr)
	}

	// The failed batch must not have consumed anything.
	if err := svc.Reserve(user.ID, 3); err != nil {
		t.Fatalf("expected remaining quota to be intact, got %v", err)
	}

	err = svc.Reserve(user.ID, 1)
	if !errors.As(err, &qerr) {
		t.Fatalf("expected QuotaError, got %v", err)
	}
	if qerr.Remaining != 0 {
		t.Fatalf("expected remaining=0, got %d", qerr.Remaining)
	}
	if qerr.Error() != "file limit reached" {
		t.Fatalf("expected zero-remaining message, got %q", qerr.Error())
	}
}

func TestQuotaService_LapsedProPeriodIsMetered(t *testing.T) {
	db, cleanup := testutil.SetupTest(t)
	defer cleanup()

	userRepo := repository.NewUserRepository(db)
	svc := NewQuotaService(userRepo)
	user := createQuotaUser(t, userRepo, 5)

	expiry := time.Now().Add(-time.Hour).UTC()
	if err := userRepo.UpgradeToPro(user.ID, 5, &expiry); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	err := svc.Reserve(user.ID, 100)
	var qerr *QuotaError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected QuotaError after the pro period lapsed, got %v", err)
	}
	if qerr.Remaining != 5 {
		t.Fatalf("expected remaining=5, got %d", qerr.Remaining)
	}

	if err := svc.Reserve(user.ID, 5); err != nil {
		t.Fatalf("expected metered reservation within the limit to pass, got %v", err)
	}
}

func TestQuotaService_ConcurrentReservationsNeverOverspend(t *testing.T) {
	db, cleanup := testutil.SetupTest(t)
	defer cleanup()

	userRepo := repository.NewUserRepository(db)
	svc := NewQuotaService(userRepo)

	const limit = 20
	const attempts = 40
	user := createQuotaUser(t, userRepo, limit)

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Reserve(user.ID, 1)
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var qerr *QuotaError
		if !errors.As(err, &qerr) {
			t.Fatalf("unexpected error type: %v", err)
		}
	}
	if successes != limit {
		t.Fatalf("expected exactly %d successful reservations, got %d", limit, successes)
	}

	stored, err := userRepo.GetByID(user.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if stored.FilesUsed != limit {
		t.Fatalf("expected files_used=%d, got %d", limit, stored.FilesUsed)
	}
}
