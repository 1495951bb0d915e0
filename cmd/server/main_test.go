package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vpanel/internal/config"
	"vpanel/internal/models"
)

func newAdminTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "admin.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func TestCreateDefaultAdmin(t *testing.T) {
	db := newAdminTestDB(t)
	cfg := &config.Config{Admin: config.AdminConfig{
		Username: "admin", Password: "admin123", Email: "admin@localhost",
	}}

	createDefaultAdmin(db, cfg, zerolog.Nop())

	var admin models.User
	require.NoError(t, db.First(&admin, "username = ?", "admin").Error)
	assert.True(t, admin.CheckPassword("admin123"))
	assert.Equal(t, "admin", admin.Role)

	// A second boot must not add another account.
	createDefaultAdmin(db, cfg, zerolog.Nop())
	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestCreateDefaultAdminSkipsUnhashablePassword(t *testing.T) {
	db := newAdminTestDB(t)
	// bcrypt rejects passwords longer than 72 bytes.
	cfg := &config.Config{Admin: config.AdminConfig{
		Username: "admin", Password: strings.Repeat("x", 80), Email: "admin@localhost",
	}}

	createDefaultAdmin(db, cfg, zerolog.Nop())

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Zero(t, count, "no account may be seeded with an empty hash")
}
