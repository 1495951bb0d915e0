package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"

	"vpanel/internal/middleware"
	"vpanel/internal/models"
)

// AuthHandler implements the panel login gate. Session refresh and audit
// trails are handled elsewhere; the cron API only needs a valid token.
type AuthHandler struct {
	db *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{db: db}
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totp_code,omitempty"`
}

type LoginResponse struct {
	Token       string        `json:"token,omitempty"`
	User        *UserResponse `json:"user,omitempty"`
	Requires2FA bool          `json:"requires_2fa,omitempty"`
}

type UserResponse struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

func userResponse(u *models.User) *UserResponse {
	return &UserResponse{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Role:             u.Role,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	var user models.User
	if err := h.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		return Fail(c, fiber.StatusUnauthorized, CodeUnauthorized, "invalid credentials", nil)
	}
	if !user.CheckPassword(req.Password) {
		return Fail(c, fiber.StatusUnauthorized, CodeUnauthorized, "invalid credentials", nil)
	}

	if user.TwoFactorEnabled {
		if req.TOTPCode == "" {
			return OK(c, LoginResponse{Requires2FA: true})
		}
		if !totp.Validate(req.TOTPCode, user.TwoFactorSecret) {
			return Fail(c, fiber.StatusUnauthorized, CodeUnauthorized, "invalid 2FA code", nil)
		}
	}

	token, err := middleware.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return Fail(c, fiber.StatusInternalServerError, CodeInternal, "failed to generate token", nil)
	}

	c.Cookie(&fiber.Cookie{
		Name:     "token",
		Value:    token,
		HTTPOnly: true,
		MaxAge:   86400,
		Path:     "/",
	})

	return OK(c, LoginResponse{Token: token, User: userResponse(&user)})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     "token",
		Value:    "",
		HTTPOnly: true,
		MaxAge:   -1,
		Path:     "/",
	})
	return OK(c, nil)
}

func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return Fail(c, fiber.StatusNotFound, CodeNotFound, "user not found", nil)
	}
	return OK(c, userResponse(&user))
}

func (h *AuthHandler) Setup2FA(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return Fail(c, fiber.StatusNotFound, CodeNotFound, "user not found", nil)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "VPanel",
		AccountName: user.Username,
	})
	if err != nil {
		return Fail(c, fiber.StatusInternalServerError, CodeInternal, "failed to generate 2FA secret", nil)
	}

	user.TwoFactorSecret = key.Secret()
	if err := h.db.Save(&user).Error; err != nil {
		return Fail(c, fiber.StatusInternalServerError, CodeInternal, "failed to store 2FA secret", nil)
	}

	return OK(c, fiber.Map{
		"secret": key.Secret(),
		"url":    key.URL(),
	})
}

type Verify2FARequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *AuthHandler) Verify2FA(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	var req Verify2FARequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return Fail(c, fiber.StatusNotFound, CodeNotFound, "user not found", nil)
	}
	if user.TwoFactorSecret == "" {
		return Fail(c, fiber.StatusBadRequest, CodeBadRequest, "2FA setup not started", nil)
	}
	if !totp.Validate(req.Code, user.TwoFactorSecret) {
		return Fail(c, fiber.StatusUnauthorized, CodeUnauthorized, "invalid 2FA code", nil)
	}

	user.TwoFactorEnabled = true
	if err := h.db.Save(&user).Error; err != nil {
		return Fail(c, fiber.StatusInternalServerError, CodeInternal, "failed to enable 2FA", nil)
	}
	return OK(c, nil)
}

func (h *AuthHandler) Disable2FA(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return Fail(c, fiber.StatusNotFound, CodeNotFound, "user not found", nil)
	}

	user.TwoFactorEnabled = false
	user.TwoFactorSecret = ""
	if err := h.db.Save(&user).Error; err != nil {
		return Fail(c, fiber.StatusInternalServerError, CodeInternal, "failed to disable 2FA", nil)
	}
	return OK(c, nil)
}
