//go:build !windows

package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vpanel/internal/config"
	"vpanel/internal/middleware"
	"vpanel/internal/models"
	"vpanel/internal/services/cron"
)

func newAuthTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	config.AppConfig = &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", Expiry: time.Hour},
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.CronJob{}, &models.CronJobLog{}))

	store := cron.NewStore(db, time.Hour)
	executor := cron.NewExecutor(store, zerolog.Nop(), 0, 0)
	authHandler := NewAuthHandler(db)
	cronHandler := NewCronHandler(store, executor, config.CronConfig{
		LogDefaultLimit: 50,
		LogMaxLimit:     500,
	})

	app := fiber.New()
	api := app.Group("/api")
	api.Post("/auth/login", authHandler.Login)

	protected := api.Group("/", middleware.AuthRequired())
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/profile", authHandler.Profile)
	protected.Get("/cron/jobs", cronHandler.List)

	return app, db
}

func seedPanelUser(t *testing.T, db *gorm.DB, username, password string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@localhost", Role: "admin"}
	require.NoError(t, u.SetPassword(password))
	require.NoError(t, db.Create(u).Error)
	return u
}

func doAuthedRequest(t *testing.T, app *fiber.App, method, path, token string) (*http.Response, testEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var env testEnvelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	return resp, env
}

func TestLoginIssuesToken(t *testing.T) {
	app, db := newAuthTestApp(t)
	seedPanelUser(t, db, "admin", "hunter22")

	resp, env := doRequest(t, app, fiber.MethodPost, "/api/auth/login", fiber.Map{
		"username": "admin",
		"password": "hunter22",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, env.Success)

	var login LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)
	require.NotNil(t, login.User)
	assert.Equal(t, "admin", login.User.Username)
	assert.False(t, login.Requires2FA)

	resp, env = doAuthedRequest(t, app, fiber.MethodGet, "/api/cron/jobs", login.Token)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	app, db := newAuthTestApp(t)
	seedPanelUser(t, db, "admin", "hunter22")

	for _, body := range []fiber.Map{
		{"username": "admin", "password": "wrong"},
		{"username": "ghost", "password": "hunter22"},
	} {
		resp, env := doRequest(t, app, fiber.MethodPost, "/api/auth/login", body)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, CodeUnauthorized, env.Error.Code)
	}
}

func TestLoginRequiresSecondFactor(t *testing.T) {
	app, db := newAuthTestApp(t)
	u := seedPanelUser(t, db, "admin", "hunter22")

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "VPanel", AccountName: u.Username})
	require.NoError(t, err)
	u.TwoFactorEnabled = true
	u.TwoFactorSecret = key.Secret()
	require.NoError(t, db.Save(u).Error)

	// The password alone only gets the 2FA challenge, never a token.
	resp, env := doRequest(t, app, fiber.MethodPost, "/api/auth/login", fiber.Map{
		"username": "admin", "password": "hunter22",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var challenge LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &challenge))
	assert.True(t, challenge.Requires2FA)
	assert.Empty(t, challenge.Token)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	resp, env = doRequest(t, app, fiber.MethodPost, "/api/auth/login", fiber.Map{
		"username": "admin", "password": "hunter22", "totp_code": code,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.NotEmpty(t, login.Token)

	stale, err := totp.GenerateCode(key.Secret(), time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	resp, env = doRequest(t, app, fiber.MethodPost, "/api/auth/login", fiber.Map{
		"username": "admin", "password": "hunter22", "totp_code": stale,
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeUnauthorized, env.Error.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app, db := newAuthTestApp(t)
	seedPanelUser(t, db, "admin", "hunter22")

	resp, env := doAuthedRequest(t, app, fiber.MethodGet, "/api/cron/jobs", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeUnauthorized, env.Error.Code)

	resp, env = doAuthedRequest(t, app, fiber.MethodGet, "/api/cron/jobs", "not-a-token")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeUnauthorized, env.Error.Code)
}

func TestCookieTokenAccepted(t *testing.T) {
	app, db := newAuthTestApp(t)
	u := seedPanelUser(t, db, "admin", "hunter22")

	token, err := middleware.GenerateToken(u.ID, u.Username, u.Role)
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodGet, "/api/auth/profile", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var env testEnvelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)

	var profile UserResponse
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "admin", profile.Username)
	assert.Equal(t, u.ID, profile.ID)
}
