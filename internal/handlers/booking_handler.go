package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"home-services-api/internal/auth"
	"home-services-api/internal/envelope"
	"home-services-api/internal/middleware"
	"home-services-api/internal/models"
	"home-services-api/internal/presence"
	"home-services-api/internal/realtime"
)

// CreateBookingRequest represents the request payload for creating a booking
type CreateBookingRequest struct {
	ServiceType string     `json:"serviceType" binding:"required"`
	Location    string     `json:"location" binding:"required"`
	Description string     `json:"description"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// UpdateBookingStatusRequest represents a minimal request to change status
type UpdateBookingStatusRequest struct {
	Status models.BookingStatus `json:"status" binding:"required"`
}

// Notification types pushed for bookings.
const (
	NotificationBookingCreated = "booking_created"
	NotificationBookingStatus  = "booking_status_changed"
)

/*
*
CreateBooking handles POST /api/bookings
Persists the booking and alerts every helper listening on the matching
service type and location groups.
*/
func (h *Handler) CreateBooking(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking := models.Booking{
		UserID:      user.ID,
		ServiceType: strings.TrimSpace(req.ServiceType),
		Location:    strings.TrimSpace(req.Location),
		Description: req.Description,
		ScheduledAt: req.ScheduledAt,
		Status:      models.BookingPending,
	}
	if booking.ServiceType == "" || booking.Location == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "serviceType and location must not be blank"})
		return
	}
	if err := h.db.Create(&booking).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create booking"})
		return
	}

	ref := booking.ID
	// Nobody owns a booking request yet, so the alert goes out transient.
	alert := realtime.NewEvent(realtime.EventReceiveNotification, realtime.Alert(
		"New booking request",
		fmt.Sprintf("%s requested in %s", booking.ServiceType, booking.Location),
		NotificationBookingCreated,
		&ref,
		booking.CreatedAt,
	))
	h.dispatch.ToServiceTypeGroup(c.Request.Context(), booking.ServiceType, alert)
	h.dispatch.ToLocationGroup(c.Request.Context(), booking.Location, alert)

	c.JSON(http.StatusCreated, booking)
}

// ListBookings handles GET /api/bookings
// Users see their own bookings, helpers the ones assigned to them and
// admins everything. Optional query param: status.
func (h *Handler) ListBookings(c *gin.Context) {
	p := parsePage(c)
	query := h.db.Model(&models.Booking{})

	if auth.Role(c.GetString(middleware.RoleKey)) != auth.RoleAdmin {
		id, ok := caller(c)
		if !ok {
			return
		}
		if id.Kind == presence.KindHelper {
			query = query.Where("helper_id = ?", id.ID)
		} else {
			query = query.Where("user_id = ?", id.ID)
		}
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count bookings"})
		return
	}

	var bookings []models.Booking
	err := query.Session(&gorm.Session{}).Order("created_at desc, id desc").Limit(p.Limit).Offset(p.Offset()).Find(&bookings).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bookings"})
		return
	}

	c.JSON(http.StatusOK, envelope.Page[models.Booking]{
		Value:    bookings,
		Count:    total,
		NextLink: nextLink(c, p, total),
	})
}

/*
*
UpdateBookingStatus handles PATCH /api/bookings/:id/status
Helpers accept pending bookings and complete or cancel the ones assigned to
them. Users may only cancel their own. The other party is notified.
*/
func (h *Handler) UpdateBookingStatus(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	bookingID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	var booking models.Booking
	if err := h.db.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch booking"})
		}
		return
	}

	if !mayChangeBooking(actor, booking, req.Status) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed to change this booking"})
		return
	}
	if !booking.Status.CanMoveTo(req.Status) {
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("Cannot move booking from %s to %s", booking.Status, req.Status),
		})
		return
	}

	booking.Status = req.Status
	if actor.Kind == presence.KindHelper && booking.HelperID == 0 {
		booking.HelperID = actor.ID
	}
	if err := h.db.Save(&booking).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update booking"})
		return
	}

	if counterpart, ok := bookingCounterpart(actor, booking); ok {
		ref := booking.ID
		h.notify(c, models.NewNotification(counterpart,
			"Booking "+string(booking.Status),
			fmt.Sprintf("Your %s booking is now %s", booking.ServiceType, booking.Status),
			NotificationBookingStatus, &ref))
	}

	c.JSON(http.StatusOK, booking)
}

func mayChangeBooking(actor presence.Identity, b models.Booking, next models.BookingStatus) bool {
	if actor.Kind == presence.KindUser {
		return b.UserID == actor.ID && next == models.BookingCancelled
	}
	if b.Status == models.BookingPending && next == models.BookingAccepted {
		return b.HelperID == 0 || b.HelperID == actor.ID
	}
	return b.HelperID == actor.ID
}

func bookingCounterpart(actor presence.Identity, b models.Booking) (presence.Identity, bool) {
	if actor.Kind == presence.KindHelper {
		return presence.Identity{Kind: presence.KindUser, ID: b.UserID}, true
	}
	if b.HelperID == 0 {
		return presence.Identity{}, false
	}
	return presence.Identity{Kind: presence.KindHelper, ID: b.HelperID}, true
}

// notify persists n and pushes it to every live connection of its recipient.
// Push problems are logged; the REST outcome never depends on them.
func (h *Handler) notify(c *gin.Context, n models.Notification) {
	if err := h.db.Create(&n).Error; err != nil {
		h.logger.Error().Err(err).Stringer("recipient", n.Recipient()).Msg("Failed to persist notification")
		return
	}
	if h.dispatch.Notify(c.Request.Context(), n.Recipient(), n.Payload()) == 0 {
		return
	}
	sent := time.Now()
	if err := h.db.Model(&n).Update("sent_at", sent).Error; err != nil {
		h.logger.Warn().Err(err).Int64("notification", n.ID).Msg("Failed to record sent time")
	}
}
