package realtime

import (
	"sync/atomic"

	"home-services-api/internal/presence"
)

// State is the lifecycle position of one connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateRejected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateRejected:
		return "rejected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Session is the hub-side view of one transport connection. The identity is
// set once during authentication and read-only afterwards.
type Session struct {
	handle   presence.Handle
	identity presence.Identity
	state    atomic.Int32
}

// NewSession starts a session in the Connecting state.
func NewSession(handle presence.Handle) *Session {
	return &Session{handle: handle}
}

func (s *Session) Handle() presence.Handle     { return s.handle }
func (s *Session) Identity() presence.Identity { return s.identity }
func (s *Session) State() State                { return State(s.state.Load()) }

func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) swap(to State) State {
	return State(s.state.Swap(int32(to)))
}
