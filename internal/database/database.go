package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"home-services-api/internal/auth"
	"home-services-api/internal/config"
	"home-services-api/internal/models"
)

// Models lists every table AutoMigrate manages.
func Models() []any {
	return []any{
		&models.Account{},
		&models.Booking{},
		&models.Notification{},
		&models.Conversation{},
		&models.ChatMessage{},
	}
}

// Open connects to the SQLite database and runs migrations.
// glebarez/sqlite is a pure Go driver, so no CGO is required.
func Open(cfg config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: NewGormLogger(log, cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", cfg.Path, err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log.Info().Str("path", cfg.Path).Msg("Database connected and migrated")
	return db, nil
}

// EnsureAdmin creates the admin account unless the username already exists.
// It reports whether an account was created.
func EnsureAdmin(db *gorm.DB, username, password string) (bool, error) {
	var existing models.Account
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("look up admin: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	admin := models.Account{Username: username, PasswordHash: hash, Role: auth.RoleAdmin, DisplayName: "Administrator"}
	if err := db.Create(&admin).Error; err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}

// gormWriter forwards gorm's printf-style output to zerolog.
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Info().Msgf(format, args...)
}

// NewGormLogger maps a config level name onto gorm's logger.
func NewGormLogger(log zerolog.Logger, level string) logger.Interface {
	return logger.New(gormWriter{log: log.With().Str("component", "gorm").Logger()}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  GormLevel(level),
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func GormLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}
