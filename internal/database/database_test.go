package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"home-services-api/internal/auth"
	"home-services-api/internal/config"
	"home-services-api/internal/models"
)

func TestOpenMigrates(t *testing.T) {
	cfg := config.DatabaseConfig{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	}
	db, err := Open(cfg, zerolog.Nop())
	require.NoError(t, err)

	for _, m := range Models() {
		assert.True(t, db.Migrator().HasTable(m))
	}

	acct := models.Account{Username: "alice", PasswordHash: "x", Role: "User"}
	require.NoError(t, db.Create(&acct).Error)
	assert.NotZero(t, acct.ID)
}

func TestEnsureAdmin(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "a.db"), LogLevel: "silent"}, zerolog.Nop())
	require.NoError(t, err)

	created, err := EnsureAdmin(db, "root", "hunter22")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureAdmin(db, "root", "other")
	require.NoError(t, err)
	assert.False(t, created)

	var admin models.Account
	require.NoError(t, db.Where("username = ?", "root").First(&admin).Error)
	assert.Equal(t, auth.RoleAdmin, admin.Role)
	assert.NoError(t, auth.CheckPassword(admin.PasswordHash, "hunter22"))
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, GormLevel("silent"))
	assert.Equal(t, logger.Error, GormLevel("error"))
	assert.Equal(t, logger.Info, GormLevel("info"))
	assert.Equal(t, logger.Warn, GormLevel("warn"))
	assert.Equal(t, logger.Warn, GormLevel(""))
}
