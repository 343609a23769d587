package handler

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/scalpel-app/scalpel/internal/config"
	"github.com/scalpel-app/scalpel/internal/models"
	"github.com/scalpel-app/scalpel/internal/service"
	"github.com/scalpel-app/scalpel/pkg/logger"
	"github.com/scalpel-app/scalpel/pkg/response"
)

// emailRegex provides additional validation beyond net/mail
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return false
	}
	return emailRegex.MatchString(email)
}

type AuthHandler struct {
	authSvc  *service.AuthService
	quotaSvc *service.QuotaService
	config   *config.Config
}

func NewAuthHandler(authSvc *service.AuthService, quotaSvc *service.QuotaService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, quotaSvc: quotaSvc, config: cfg}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// accountResponse is the public view of an account. The pro flag is derived
// at read time so a lapsed period reads as free immediately.
type accountResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Pro   bool   `json:"pro"`
}

func newAccountResponse(user *models.User) accountResponse {
	return accountResponse{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
		Pro:   user.IsPro(),
	}
}

func (h *AuthHandler) setSessionCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.config.Auth.CookieSecure,
		SameSite: h.config.Auth.CookieSameSite,
		MaxAge:   h.config.Auth.SessionDays * 24 * 3600,
	})
}

func (h *AuthHandler) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.config.Auth.CookieSecure,
		SameSite: h.config.Auth.CookieSameSite,
		Expires:  time.Now().Add(-time.Hour),
	})
}

// Register handles POST /register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return response.BadRequest(c, "email and password are required")
	}
	if !isValidEmail(req.Email) {
		return response.BadRequest(c, "invalid email format")
	}
	if len(req.Password) > 128 {
		return response.BadRequest(c, "password is too long")
	}

	user, token, err := h.authSvc.Register(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			return response.Error(c, fiber.StatusConflict, "email already registered")
		}
		if strings.Contains(err.Error(), "password must be") || strings.Contains(err.Error(), "email address") {
			return response.BadRequest(c, err.Error())
		}
		logger.Error().Err(err).Msg("Registration failed")
		return response.InternalError(c, "registration failed")
	}

	logger.Audit("register_success", user.ID, map[string]string{
		"email": user.Email,
	})

	h.setSessionCookie(c, token)
	IssueCSRFCookie(c)

	return response.Success(c, newAccountResponse(user))
}

// Login handles POST /login. Every failure is the same generic 401.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return response.BadRequest(c, "email and password are required")
	}
	if len(req.Password) > 128 {
		return response.BadRequest(c, "password is too long")
	}

	user, token, err := h.authSvc.Login(req.Email, req.Password)
	if err != nil {
		RecordAuthFailure("invalid_credentials")
		logger.Audit("login_failed", "", map[string]string{
			"ip": c.IP(),
		})
		return response.Unauthorized(c, "invalid credentials")
	}

	logger.Audit("login_success", user.ID, map[string]string{
		"email": user.Email,
	})

	h.setSessionCookie(c, token)
	IssueCSRFCookie(c)

	return response.Success(c, newAccountResponse(user))
}

// Logout handles POST /logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.clearSessionCookie(c)
	return response.Success(c, fiber.Map{"loggedOut": true})
}

// GetAccount handles GET /account.
func (h *AuthHandler) GetAccount(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return response.Unauthorized(c, "authentication required")
	}

	user, err := h.authSvc.GetUserByID(userID)
	if err != nil {
		return response.Unauthorized(c, "user not found")
	}

	return response.Success(c, newAccountResponse(user))
}

// CheckPlan handles POST /check-plan.
func (h *AuthHandler) CheckPlan(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return response.Unauthorized(c, "authentication required")
	}

	info, err := h.quotaSvc.PlanInfo(userID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load plan info")
		return response.InternalError(c, "failed to load plan")
	}

	return response.Success(c, info)
}
