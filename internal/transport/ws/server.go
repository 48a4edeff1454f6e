// Package ws terminates websocket connections with gorilla/websocket and
// implements realtime.Transport on top of them. It owns the set of live
// sockets and the group membership table; the hub drives the lifecycle.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"home-services-api/internal/presence"
	"home-services-api/internal/realtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrNotConnected = errors.New("connection not found")
	ErrSlowConsumer = errors.New("send buffer full")
)

// Config holds socket timings and limits.
type Config struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxMessageSize  int64
	SendBuffer      int
	ReadBufferSize  int
	WriteBufferSize int
	// AllowedOrigins restricts the Origin header; empty allows any origin.
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		WriteWait:       5 * time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      30 * time.Second,
		MaxMessageSize:  64 * 1024,
		SendBuffer:      64,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	return c
}

// SessionHandler is the lifecycle the server drives for every socket.
// *realtime.Hub satisfies it.
type SessionHandler interface {
	OnConnect(ctx context.Context, s *realtime.Session, claims realtime.Claims) error
	Invoke(ctx context.Context, s *realtime.Session, frame []byte)
	OnDisconnect(ctx context.Context, s *realtime.Session, cause error)
}

// Server holds every live socket of this process.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu          sync.RWMutex
	clients     map[presence.Handle]*client
	groups      map[string]map[presence.Handle]struct{}
	memberships map[presence.Handle]map[string]struct{}
}

func NewServer(cfg Config, logger zerolog.Logger) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:         cfg,
		logger:      logger.With().Str("component", "WebSocketServer").Logger(),
		clients:     make(map[presence.Handle]*client),
		groups:      make(map[string]map[presence.Handle]struct{}),
		memberships: make(map[presence.Handle]map[string]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// Serve upgrades the request and runs the socket until it closes. It blocks
// for the lifetime of the connection.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, handler SessionHandler, claims realtime.Claims) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed.")
		return
	}

	c := newClient(presence.Handle(uuid.NewString()), conn, s.cfg.SendBuffer)
	s.attach(c)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.writePump(c)
	}()

	ctx := r.Context()
	session := realtime.NewSession(c.handle)
	var cause error
	defer func() {
		if rec := recover(); rec != nil {
			cause = fmt.Errorf("panic in connection loop: %v", rec)
			s.logger.Error().Err(cause).Str("handle", string(c.handle)).Msg("Recovered connection panic.")
		}
		handler.OnDisconnect(context.WithoutCancel(ctx), session, cause)
		s.detach(c.handle)
		c.abort()
		<-pumpDone
	}()

	if err := handler.OnConnect(ctx, session, claims); err != nil {
		// The handler already reported the rejection and requested an abort.
		return
	}

	conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				cause = err
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handler.Invoke(ctx, session, frame)
	}
}

func (s *Server) attach(c *client) {
	s.mu.Lock()
	s.clients[c.handle] = c
	s.mu.Unlock()
}

// detach forgets the socket and its group memberships.
func (s *Server) detach(handle presence.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, handle)
	for group := range s.memberships[handle] {
		s.removeMemberLocked(group, handle)
	}
	delete(s.memberships, handle)
}

func (s *Server) removeMemberLocked(group string, handle presence.Handle) {
	members, ok := s.groups[group]
	if !ok {
		return
	}
	delete(members, handle)
	if len(members) == 0 {
		delete(s.groups, group)
	}
}

func (s *Server) lookup(handle presence.Handle) (*client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[handle]
	return c, ok
}

func (s *Server) deliver(c *client, frame []byte) error {
	err := c.enqueue(frame)
	if errors.Is(err, ErrSlowConsumer) {
		s.logger.Warn().Str("handle", string(c.handle)).Msg("Send buffer full, dropping connection.")
		c.abort()
	}
	return err
}

func (s *Server) Send(ctx context.Context, handle presence.Handle, ev realtime.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Target, err)
	}
	c, ok := s.lookup(handle)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, handle)
	}
	return s.deliver(c, frame)
}

func (s *Server) SendGroup(ctx context.Context, group string, ev realtime.Event) error {
	s.mu.RLock()
	targets := make([]*client, 0, len(s.groups[group]))
	for handle := range s.groups[group] {
		if c, ok := s.clients[handle]; ok {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()
	return s.broadcast(ctx, targets, ev)
}

func (s *Server) SendAll(ctx context.Context, ev realtime.Event) error {
	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.RUnlock()
	return s.broadcast(ctx, targets, ev)
}

func (s *Server) broadcast(ctx context.Context, targets []*client, ev realtime.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Target, err)
	}
	var errs []error
	for _, c := range targets {
		if err := s.deliver(c, frame); err != nil {
			errs = append(errs, fmt.Errorf("handle %s: %w", c.handle, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) AddToGroup(_ context.Context, handle presence.Handle, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[handle]; !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, handle)
	}
	if s.groups[group] == nil {
		s.groups[group] = make(map[presence.Handle]struct{})
	}
	s.groups[group][handle] = struct{}{}
	if s.memberships[handle] == nil {
		s.memberships[handle] = make(map[string]struct{})
	}
	s.memberships[handle][group] = struct{}{}
	return nil
}

func (s *Server) RemoveFromGroup(_ context.Context, handle presence.Handle, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[handle]; !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, handle)
	}
	s.removeMemberLocked(group, handle)
	delete(s.memberships[handle], group)
	return nil
}

func (s *Server) Abort(handle presence.Handle) {
	if c, ok := s.lookup(handle); ok {
		c.abort()
	}
}

// CloseAll aborts every live socket and returns how many there were. Each
// socket still runs its normal disconnect path.
func (s *Server) CloseAll() int {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.abort()
	}
	return len(clients)
}

// Connections returns the number of live sockets.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// GroupSizes returns member counts per group.
func (s *Server) GroupSizes() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.groups))
	for name, members := range s.groups {
		out[name] = len(members)
	}
	return out
}

var _ realtime.Transport = (*Server)(nil)
