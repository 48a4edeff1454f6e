package testutil

import (
	"context"
	"errors"
	"sync"

	"home-services-api/internal/presence"
	"home-services-api/internal/realtime"
)

// ErrDeliveryFailed is returned by RecordingTransport for handles marked as failing.
var ErrDeliveryFailed = errors.New("delivery failed")

// Delivery is one frame pushed to one handle.
type Delivery struct {
	Handle presence.Handle
	Event  realtime.Event
}

// RecordingTransport is an in-memory realtime.Transport that records every
// delivery and keeps group membership like a real transport would.
type RecordingTransport struct {
	mu         sync.Mutex
	connected  map[presence.Handle]bool
	groups     map[string]map[presence.Handle]struct{}
	deliveries []Delivery
	aborted    []presence.Handle
	failing    map[presence.Handle]bool
}

func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{
		connected: make(map[presence.Handle]bool),
		groups:    make(map[string]map[presence.Handle]struct{}),
		failing:   make(map[presence.Handle]bool),
	}
}

// Connect marks handle as a live socket.
func (t *RecordingTransport) Connect(handle presence.Handle) {
	t.mu.Lock()
	t.connected[handle] = true
	t.mu.Unlock()
}

// Drop removes handle from the live set and from every group.
func (t *RecordingTransport) Drop(handle presence.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.connected, handle)
	for _, members := range t.groups {
		delete(members, handle)
	}
}

// FailFor makes every Send to handle fail.
func (t *RecordingTransport) FailFor(handle presence.Handle) {
	t.mu.Lock()
	t.failing[handle] = true
	t.mu.Unlock()
}

func (t *RecordingTransport) Send(_ context.Context, handle presence.Handle, ev realtime.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sendLocked(handle, ev)
}

func (t *RecordingTransport) sendLocked(handle presence.Handle, ev realtime.Event) error {
	if t.failing[handle] {
		return ErrDeliveryFailed
	}
	t.deliveries = append(t.deliveries, Delivery{Handle: handle, Event: ev})
	return nil
}

func (t *RecordingTransport) SendGroup(_ context.Context, group string, ev realtime.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	for handle := range t.groups[group] {
		errs = append(errs, t.sendLocked(handle, ev))
	}
	return errors.Join(errs...)
}

func (t *RecordingTransport) SendAll(_ context.Context, ev realtime.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	for handle := range t.connected {
		errs = append(errs, t.sendLocked(handle, ev))
	}
	return errors.Join(errs...)
}

func (t *RecordingTransport) AddToGroup(_ context.Context, handle presence.Handle, group string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.groups[group] == nil {
		t.groups[group] = make(map[presence.Handle]struct{})
	}
	t.groups[group][handle] = struct{}{}
	return nil
}

func (t *RecordingTransport) RemoveFromGroup(_ context.Context, handle presence.Handle, group string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.groups[group], handle)
	return nil
}

func (t *RecordingTransport) Abort(handle presence.Handle) {
	t.mu.Lock()
	t.aborted = append(t.aborted, handle)
	t.mu.Unlock()
}

// Deliveries returns every recorded delivery in order.
func (t *RecordingTransport) Deliveries() []Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Delivery(nil), t.deliveries...)
}

// EventsFor returns the events delivered to handle, optionally filtered by name.
func (t *RecordingTransport) EventsFor(handle presence.Handle, target string) []realtime.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []realtime.Event
	for _, d := range t.deliveries {
		if d.Handle == handle && (target == "" || d.Event.Target == target) {
			out = append(out, d.Event)
		}
	}
	return out
}

// InGroup reports whether handle is a member of group.
func (t *RecordingTransport) InGroup(handle presence.Handle, group string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.groups[group][handle]
	return ok
}

// Aborted returns the handles passed to Abort.
func (t *RecordingTransport) Aborted() []presence.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]presence.Handle(nil), t.aborted...)
}

// Reset forgets recorded deliveries.
func (t *RecordingTransport) Reset() {
	t.mu.Lock()
	t.deliveries = nil
	t.mu.Unlock()
}
