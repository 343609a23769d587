package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/scalpel-app/scalpel/internal/service"
	"github.com/scalpel-app/scalpel/pkg/logger"
	"github.com/scalpel-app/scalpel/pkg/response"
)

type PlanHandler struct {
	planSvc *service.PlanService
}

func NewPlanHandler(planSvc *service.PlanService) *PlanHandler {
	return &PlanHandler{planSvc: planSvc}
}

type redeemRequest struct {
	Code string `json:"code"`
	// Older clients send promoCode; either field works.
	PromoCode string `json:"promoCode"`
}

// RedeemPromo handles POST /redeem-promo. Invalid codes get a flat
// "Invalid code" with nothing to distinguish near-misses.
func (h *PlanHandler) RedeemPromo(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return response.Unauthorized(c, "authentication required")
	}

	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	code := req.Code
	if code == "" {
		code = req.PromoCode
	}
	if code == "" {
		return response.BadRequest(c, "code is required")
	}

	user, err := h.planSvc.RedeemPromo(userID, code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPromoCode) {
			return response.BadRequest(c, "Invalid code")
		}
		logger.Error().Err(err).Str("user_id", userID).Msg("Promo redemption failed")
		return response.InternalError(c, "redemption failed")
	}

	RecordPlanUpgrade("promo")

	return response.Success(c, newAccountResponse(user))
}
