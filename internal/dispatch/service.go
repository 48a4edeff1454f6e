// Package dispatch is the server-side entry point business code uses to push
// already persisted payloads to live clients. Delivery is best effort: every
// failure is logged and swallowed so it can never undo the business write
// that triggered it.
package dispatch

import (
	"context"
	"time"

	"home-services-api/internal/presence"
	"home-services-api/internal/realtime"

	"github.com/rs/zerolog"
)

const defaultTimeout = 5 * time.Second

// Pusher is the subset of the hub that dispatch delivers through.
type Pusher interface {
	SendDirect(ctx context.Context, target presence.Identity, ev realtime.Event) (int, error)
	SendToGroup(ctx context.Context, group string, ev realtime.Event) error
	SendToAll(ctx context.Context, ev realtime.Event) error
}

// Service fans payloads out to identities, groups and broad categories.
type Service struct {
	registry *presence.Registry
	pusher   Pusher
	logger   zerolog.Logger
	timeout  time.Duration
}

// New builds a dispatch service. A timeout <= 0 selects the default.
func New(registry *presence.Registry, pusher Pusher, timeout time.Duration, logger zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{
		registry: registry,
		pusher:   pusher,
		logger:   logger.With().Str("component", "Dispatch").Logger(),
		timeout:  timeout,
	}
}

// pushContext keeps request values (for logging) but drops the caller's
// cancellation, so a finished HTTP request does not cut a push short.
func (s *Service) pushContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

// ToIdentity delivers ev to every live connection of id and returns the
// number of successful deliveries. Offline identities receive nothing.
func (s *Service) ToIdentity(ctx context.Context, id presence.Identity, ev realtime.Event) int {
	ctx, cancel := s.pushContext(ctx)
	defer cancel()

	n, err := s.pusher.SendDirect(ctx, id, ev)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity", id.String()).Str("event", ev.Target).Int("delivered", n).Msg("Push to identity failed.")
	}
	return n
}

// ToGroup broadcasts ev to a named group.
func (s *Service) ToGroup(ctx context.Context, group string, ev realtime.Event) {
	ctx, cancel := s.pushContext(ctx)
	defer cancel()

	if err := s.pusher.SendToGroup(ctx, group, ev); err != nil {
		s.logger.Warn().Err(err).Str("group", group).Str("event", ev.Target).Msg("Push to group failed.")
	}
}

func (s *Service) ToAllUsers(ctx context.Context, ev realtime.Event) {
	s.ToGroup(ctx, realtime.GroupUsers, ev)
}

func (s *Service) ToAllHelpers(ctx context.Context, ev realtime.Event) {
	s.ToGroup(ctx, realtime.GroupHelpers, ev)
}

func (s *Service) ToServiceTypeGroup(ctx context.Context, serviceType string, ev realtime.Event) {
	s.ToGroup(ctx, realtime.ServiceTypeGroup(serviceType), ev)
}

func (s *Service) ToLocationGroup(ctx context.Context, place string, ev realtime.Event) {
	s.ToGroup(ctx, realtime.LocationGroup(place), ev)
}

// NotifyPresenceChanged tells every connection that id went online or offline.
// Its signature matches realtime.PresenceListener.
func (s *Service) NotifyPresenceChanged(ctx context.Context, id presence.Identity, online bool) {
	ctx, cancel := s.pushContext(ctx)
	defer cancel()

	ev := realtime.NewEvent(realtime.EventUserStatusChanged, realtime.StatusChange{Identity: id, IsOnline: online})
	if err := s.pusher.SendToAll(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("identity", id.String()).Bool("online", online).Msg("Presence broadcast failed.")
	}
}

// IsOnline reports live presence without pushing anything.
func (s *Service) IsOnline(id presence.Identity) bool {
	return s.registry.IsOnline(id)
}

// LastSeen reports when id last went offline, if remembered.
func (s *Service) LastSeen(id presence.Identity) (time.Time, bool) {
	return s.registry.LastSeen(id)
}

// Notify pushes a persisted notification to its recipient.
func (s *Service) Notify(ctx context.Context, id presence.Identity, n realtime.Notification) int {
	return s.ToIdentity(ctx, id, realtime.NewEvent(realtime.EventReceiveNotification, n))
}

// Chat pushes a persisted chat message to its recipient.
func (s *Service) Chat(ctx context.Context, msg realtime.ChatMessage) int {
	return s.ToIdentity(ctx, msg.Recipient, realtime.NewEvent(realtime.EventReceiveChatMessage, msg))
}

// MessagesRead tells the other party of a conversation that messages were read.
func (s *Service) MessagesRead(ctx context.Context, to presence.Identity, receipt realtime.ReadReceipt) {
	s.ToIdentity(ctx, to, realtime.NewEvent(realtime.EventMessagesMarkedAsRead, receipt))
}
