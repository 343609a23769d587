package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scalpel-app/scalpel/internal/config"
	"github.com/scalpel-app/scalpel/internal/models"
	"github.com/scalpel-app/scalpel/internal/repository"
	"github.com/scalpel-app/scalpel/pkg/logger"
)

// ErrInvalidPromoCode is returned for any unrecognized code. The message
// deliberately carries no detail beyond "invalid".
var ErrInvalidPromoCode = errors.New("invalid code")

// PlanService owns the free -> pro transitions: promo redemption and
// verified payment events. Plans never move back to free here; a pro period
// simply lapses when its expiry passes.
type PlanService struct {
	userRepo    *repository.UserRepository
	webhookRepo *repository.WebhookEventRepository
	config      *config.Config
	promoCodes  map[string]struct{}
}

func NewPlanService(
	userRepo *repository.UserRepository,
	webhookRepo *repository.WebhookEventRepository,
	cfg *config.Config,
) *PlanService {
	codes := make(map[string]struct{}, len(cfg.Plans.PromoCodes))
	for _, code := range cfg.Plans.PromoCodes {
		codes[strings.ToUpper(code)] = struct{}{}
	}
	return &PlanService{
		userRepo:    userRepo,
		webhookRepo: webhookRepo,
		config:      cfg,
		promoCodes:  codes,
	}
}

// RedeemPromo upgrades the account to lifetime pro if the code is in the
// server-held set. Codes match case-insensitively. Redeeming while already
// pro is a no-op success.
func (s *PlanService) RedeemPromo(userID, code string) (*models.User, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := s.promoCodes[normalized]; !ok {
		return nil, ErrInvalidPromoCode
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if user.IsPro() {
		return user, nil
	}

	if err := s.userRepo.UpgradeToPro(userID, s.config.Plans.ProFileLimit, nil); err != nil {
		return nil, fmt.Errorf("failed to upgrade account: %w", err)
	}

	logger.Audit("promo_redeemed", userID, map[string]string{
		"code": normalized,
	})

	return s.userRepo.GetByID(userID)
}

// ApplyPaymentEvent upgrades the account identified by email to a pro
// period. The paymentID keys idempotency: a replayed event is acknowledged
// without re-applying the upgrade. Returns false when the email has no
// account or the event was already processed.
func (s *PlanService) ApplyPaymentEvent(paymentID, email string) (bool, error) {
	if paymentID == "" || email == "" {
		return false, errors.New("payment event missing id or email")
	}

	first, err := s.webhookRepo.MarkProcessed(paymentID)
	if err != nil {
		return false, fmt.Errorf("failed to record payment event: %w", err)
	}
	if !first {
		logger.Info().Str("payment_id", paymentID).Msg("Duplicate payment event ignored")
		return false, nil
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logger.Warn().Str("payment_id", paymentID).Msg("Payment event for unknown account email")
			return false, nil
		}
		s.releaseEventClaim(paymentID)
		return false, fmt.Errorf("failed to load account: %w", err)
	}

	// A new period extends from the later of now and the current expiry.
	// Lifetime pro (nil expiry) is never shortened by a payment.
	var expiry *time.Time
	if !user.IsPro() || user.ProExpiresAt != nil {
		base := time.Now().UTC()
		if user.IsPro() && user.ProExpiresAt.After(base) {
			base = user.ProExpiresAt.UTC()
		}
		e := base.Add(time.Duration(s.config.Plans.ProPeriodDays) * 24 * time.Hour)
		expiry = &e
	}

	if err := s.userRepo.UpgradeToPro(user.ID, s.config.Plans.ProFileLimit, expiry); err != nil {
		s.releaseEventClaim(paymentID)
		return false, fmt.Errorf("failed to upgrade account: %w", err)
	}

	expiresAt := "lifetime"
	if expiry != nil {
		expiresAt = expiry.Format(time.RFC3339)
	}
	logger.Audit("payment_upgrade", user.ID, map[string]string{
		"payment_id": paymentID,
		"expires_at": expiresAt,
	})

	return true, nil
}

// releaseEventClaim drops the idempotency record for a failed upgrade so the
// provider's retry of the same event is processed instead of short-circuited.
func (s *PlanService) releaseEventClaim(paymentID string) {
	if err := s.webhookRepo.Delete(paymentID); err != nil {
		logger.Error().Err(err).Str("payment_id", paymentID).Msg("Failed to release webhook event claim")
	}
}
