package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"home-services-api/internal/presence"

	"github.com/rs/zerolog"
)

var (
	ErrUnauthenticated     = errors.New("missing or invalid identity claims")
	ErrInvalidState        = errors.New("session is not in the expected state")
	ErrNotActive           = errors.New("session is not active")
	ErrEmptyGroupName      = errors.New("group name must not be empty")
	ErrInvalidConversation = errors.New("conversation id must be positive")
	ErrUnknownTarget       = errors.New("unknown invocation target")
	ErrBadArguments        = errors.New("invalid invocation arguments")
	ErrOperationFailed     = errors.New("operation failed")
)

// Claims are the identity claims presented when a connection opens.
type Claims struct {
	Role    string
	Subject string
}

// Transport is what the hub needs from the connection layer. The transport
// owns live sockets and group membership.
type Transport interface {
	Send(ctx context.Context, handle presence.Handle, ev Event) error
	SendGroup(ctx context.Context, group string, ev Event) error
	SendAll(ctx context.Context, ev Event) error
	AddToGroup(ctx context.Context, handle presence.Handle, group string) error
	RemoveFromGroup(ctx context.Context, handle presence.Handle, group string) error
	// Abort closes the connection after already queued frames are flushed.
	Abort(handle presence.Handle)
}

// PresenceListener observes identities going online or offline.
type PresenceListener func(ctx context.Context, id presence.Identity, online bool)

// Hub runs the per-connection state machine and the client-invoked
// operations. It is the only writer into the registry on connect and
// disconnect.
type Hub struct {
	registry  *presence.Registry
	transport Transport
	logger    zerolog.Logger

	mu        sync.RWMutex
	listeners []PresenceListener

	handlers map[string]invokeFunc
}

// NewHub wires a hub to the registry and the transport.
func NewHub(registry *presence.Registry, transport Transport, logger zerolog.Logger) *Hub {
	h := &Hub{
		registry:  registry,
		transport: transport,
		logger:    logger.With().Str("component", "PresenceHub").Logger(),
	}
	h.handlers = h.invocationTable()
	return h
}

// OnPresenceChange registers fn to run whenever an identity's first handle
// connects or its last handle disconnects.
func (h *Hub) OnPresenceChange(fn PresenceListener) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

// OnConnect authenticates a new session and, on success, registers it,
// joins its broad group and acknowledges it. On failure the caller receives
// an Error event and the transport is aborted; the registry is not touched.
func (h *Hub) OnConnect(ctx context.Context, s *Session, claims Claims) error {
	if !s.transition(StateConnecting, StateAuthenticating) {
		return fmt.Errorf("%w: connect from %s", ErrInvalidState, s.State())
	}

	id, err := presence.ParseIdentity(claims.Role, claims.Subject)
	if err != nil {
		s.swap(StateRejected)
		h.logger.Warn().Err(err).Str("handle", string(s.handle)).Msg("Rejecting connection without valid identity claims.")
		h.emit(ctx, s.handle, ErrorEvent("Unauthorized: role and numeric id claims are required"))
		h.transport.Abort(s.handle)
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	s.identity = id

	cameOnline := h.registry.AddConnection(id, s.handle)
	if !s.transition(StateAuthenticating, StateActive) {
		// OnDisconnect ran first and skipped cleanup because the session was
		// not active yet.
		h.registry.RemoveConnection(id, s.handle)
		return fmt.Errorf("%w: disconnected while authenticating", ErrInvalidState)
	}
	if err := h.transport.AddToGroup(ctx, s.handle, BroadGroup(id.Kind)); err != nil {
		h.logger.Warn().Err(err).Str("identity", id.String()).Msg("Failed to join broad group.")
	}

	h.emit(ctx, s.handle, NewEvent(EventConnected, "Connected to notification hub as "+id.String()))
	h.logger.Info().Str("identity", id.String()).Str("handle", string(s.handle)).Msg("Connection active.")

	if cameOnline {
		h.notifyPresence(ctx, id, true)
	}
	return nil
}

// OnDisconnect ends a session. Registry cleanup runs before anything else and
// on every path; calling it twice is harmless.
func (h *Hub) OnDisconnect(ctx context.Context, s *Session, cause error) {
	prev := s.swap(StateDisconnected)
	if prev != StateActive {
		return
	}

	wentOffline := h.registry.RemoveConnection(s.identity, s.handle)

	ev := h.logger.Info()
	if cause != nil {
		ev = h.logger.Warn().Err(cause)
	}
	ev.Str("identity", s.identity.String()).Str("handle", string(s.handle)).Bool("offline", wentOffline).Msg("Connection closed.")

	if wentOffline {
		h.notifyPresence(ctx, s.identity, false)
	}
}

// Disconnect force-closes every connection of id (logout, ban) and returns
// how many were closed.
func (h *Hub) Disconnect(ctx context.Context, id presence.Identity) int {
	handles := h.registry.RemoveAllConnections(id)
	for _, handle := range handles {
		h.transport.Abort(handle)
	}
	if len(handles) > 0 {
		h.logger.Info().Str("identity", id.String()).Int("connections", len(handles)).Msg("Forced disconnect.")
		h.notifyPresence(ctx, id, false)
	}
	return len(handles)
}

// JoinGroup adds the session to an arbitrary named group.
func (h *Hub) JoinGroup(ctx context.Context, s *Session, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyGroupName
	}
	if err := h.transport.AddToGroup(ctx, s.handle, name); err != nil {
		return fmt.Errorf("join group %q: %w", name, err)
	}
	h.emit(ctx, s.handle, NewEvent(EventJoinedGroup, name))
	return nil
}

// LeaveGroup removes the session from a named group.
func (h *Hub) LeaveGroup(ctx context.Context, s *Session, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyGroupName
	}
	if err := h.transport.RemoveFromGroup(ctx, s.handle, name); err != nil {
		return fmt.Errorf("leave group %q: %w", name, err)
	}
	h.emit(ctx, s.handle, NewEvent(EventLeftGroup, name))
	return nil
}

func (h *Hub) JoinConversation(ctx context.Context, s *Session, id int64) error {
	if id <= 0 {
		return ErrInvalidConversation
	}
	if err := h.transport.AddToGroup(ctx, s.handle, ConversationGroup(id)); err != nil {
		return fmt.Errorf("join conversation %d: %w", id, err)
	}
	h.emit(ctx, s.handle, NewEvent(EventJoinedConversation, id))
	return nil
}

func (h *Hub) LeaveConversation(ctx context.Context, s *Session, id int64) error {
	if id <= 0 {
		return ErrInvalidConversation
	}
	if err := h.transport.RemoveFromGroup(ctx, s.handle, ConversationGroup(id)); err != nil {
		return fmt.Errorf("leave conversation %d: %w", id, err)
	}
	h.emit(ctx, s.handle, NewEvent(EventLeftConversation, id))
	return nil
}

// SendDirect pushes ev to every live handle of target and returns how many
// deliveries succeeded. An offline target is not an error. Per-handle
// failures are joined into the returned error.
func (h *Hub) SendDirect(ctx context.Context, target presence.Identity, ev Event) (int, error) {
	handles := h.registry.GetConnections(target)
	delivered := 0
	var errs []error
	for _, handle := range handles {
		if err := h.transport.Send(ctx, handle, ev); err != nil {
			errs = append(errs, fmt.Errorf("handle %s: %w", handle, err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// SendToConversation pushes ev to every connection in the conversation room.
func (h *Hub) SendToConversation(ctx context.Context, conversationID int64, ev Event) error {
	if conversationID <= 0 {
		return ErrInvalidConversation
	}
	return h.transport.SendGroup(ctx, ConversationGroup(conversationID), ev)
}

// SendToGroup pushes ev to every connection in group.
func (h *Hub) SendToGroup(ctx context.Context, group string, ev Event) error {
	if strings.TrimSpace(group) == "" {
		return ErrEmptyGroupName
	}
	return h.transport.SendGroup(ctx, group, ev)
}

// SendToAll pushes ev to every live connection.
func (h *Hub) SendToAll(ctx context.Context, ev Event) error {
	return h.transport.SendAll(ctx, ev)
}

// relay is SendDirect for client-invoked sends: delivery failures are the
// target's problem and are only logged.
func (h *Hub) relay(ctx context.Context, from *Session, target presence.Identity, ev Event) {
	n, err := h.SendDirect(ctx, target, ev)
	if err != nil {
		h.logger.Warn().Err(err).Str("from", from.identity.String()).Str("to", target.String()).Str("event", ev.Target).Msg("Relay partially failed.")
	}
	h.logger.Debug().Str("from", from.identity.String()).Str("to", target.String()).Str("event", ev.Target).Int("delivered", n).Msg("Relayed.")
}

func (h *Hub) emit(ctx context.Context, handle presence.Handle, ev Event) {
	if err := h.transport.Send(ctx, handle, ev); err != nil {
		h.logger.Debug().Err(err).Str("handle", string(handle)).Str("event", ev.Target).Msg("Failed to emit to caller.")
	}
}

func (h *Hub) notifyPresence(ctx context.Context, id presence.Identity, online bool) {
	h.mu.RLock()
	listeners := append([]PresenceListener(nil), h.listeners...)
	h.mu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.Error().Interface("panic", r).Str("identity", id.String()).Msg("Presence listener panicked.")
				}
			}()
			fn(ctx, id, online)
		}()
	}
}
