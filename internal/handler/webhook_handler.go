package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/scalpel-app/scalpel/internal/config"
	"github.com/scalpel-app/scalpel/internal/service"
	"github.com/scalpel-app/scalpel/pkg/logger"
	"github.com/scalpel-app/scalpel/pkg/response"
)

const signatureHeader = "X-Razorpay-Signature"

// WebhookHandler receives Razorpay payment notifications. Authenticity rests
// entirely on the HMAC signature over the raw body; no session or CSRF
// checks apply here.
type WebhookHandler struct {
	planSvc *service.PlanService
	secret  string
}

func NewWebhookHandler(planSvc *service.PlanService, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{planSvc: planSvc, secret: cfg.Payments.WebhookSecret}
}

// paymentEvent mirrors the slice of the Razorpay payload we act on. Unknown
// fields are ignored.
type paymentEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID    string `json:"id"`
				Notes struct {
					Email         string `json:"email"`
					CustomerEmail string `json:"customer_email"`
				} `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleRazorpay handles POST /webhook/razorpay.
func (h *WebhookHandler) HandleRazorpay(c *fiber.Ctx) error {
	signature := c.Get(signatureHeader)
	if h.secret == "" || signature == "" {
		return response.BadRequest(c, "missing secret or signature")
	}

	body := c.Body()
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		logger.Warn().Str("ip", c.IP()).Msg("Webhook signature mismatch")
		return response.Unauthorized(c, "invalid signature")
	}

	var event paymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return response.BadRequest(c, "invalid payload")
	}

	// Only capture/authorize events carry a payment to honor. Everything
	// else is acknowledged and dropped.
	if event.Event != "payment.captured" && event.Event != "payment.authorized" {
		return response.Success(c, fiber.Map{"handled": false})
	}

	entity := event.Payload.Payment.Entity
	email := entity.Notes.Email
	if email == "" {
		email = entity.Notes.CustomerEmail
	}
	if entity.ID == "" || email == "" {
		logger.Warn().Str("event", event.Event).Msg("Payment event missing id or email")
		return response.Success(c, fiber.Map{"handled": false})
	}

	applied, err := h.planSvc.ApplyPaymentEvent(entity.ID, email)
	if err != nil {
		logger.Error().Err(err).Str("payment_id", entity.ID).Msg("Failed to apply payment event")
		return response.InternalError(c, "failed to process event")
	}
	if applied {
		RecordPlanUpgrade("payment")
	}

	return response.Success(c, fiber.Map{"handled": applied})
}
