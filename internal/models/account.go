package models

import (
	"time"

	"gorm.io/gorm"

	"home-services-api/internal/auth"
	"home-services-api/internal/presence"
)

// Account is a User, Helper or Admin login.
type Account struct {
	ID           int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string         `json:"username" gorm:"uniqueIndex;not null"`
	PasswordHash string         `json:"-" gorm:"not null"`
	Role         auth.Role      `json:"role" gorm:"not null;index"`
	DisplayName  string         `json:"displayName"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"-"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName specifies the table name for Account Model
func (Account) TableName() string {
	return "accounts"
}

// Identity is only valid for User and Helper accounts.
func (a Account) Identity() (presence.Identity, error) {
	return presence.NewIdentity(string(a.Role), a.ID)
}
