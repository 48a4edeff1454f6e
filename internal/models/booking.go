package models

import (
	"time"

	"gorm.io/gorm"
)

// BookingStatus represents the lifecycle of a booking
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingAccepted  BookingStatus = "accepted"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingAccepted, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

// CanMoveTo reports whether the transition is allowed. Completed and
// cancelled are terminal.
func (s BookingStatus) CanMoveTo(next BookingStatus) bool {
	switch s {
	case BookingPending:
		return next == BookingAccepted || next == BookingCancelled
	case BookingAccepted:
		return next == BookingCompleted || next == BookingCancelled
	}
	return false
}

// Booking is a service request made by a user. HelperID is zero until a
// helper accepts it.
type Booking struct {
	ID          int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      int64          `json:"userId" gorm:"column:user_id;index;not null"`
	HelperID    int64          `json:"helperId,omitempty" gorm:"column:helper_id;index"`
	ServiceType string         `json:"serviceType" gorm:"column:service_type;not null"`
	Location    string         `json:"location" gorm:"not null"`
	Description string         `json:"description"`
	ScheduledAt *time.Time     `json:"scheduledAt,omitempty" gorm:"column:scheduled_at"`
	Status      BookingStatus  `json:"status" gorm:"not null;default:'pending'"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName specifies the table name for Booking Model
func (Booking) TableName() string {
	return "bookings"
}
