package envelope

import (
	"net/http"
	"strings"
)

// UnknownStatusMessage is used when neither an override nor the default
// table knows the status code.
const UnknownStatusMessage = "Unknown status code"

var defaultMessages = map[int]string{
	http.StatusOK:                  "Request completed successfully",
	http.StatusCreated:             "Resource created successfully",
	http.StatusAccepted:            "Request accepted for processing",
	http.StatusNoContent:           "Request completed with no content",
	http.StatusBadRequest:          "Bad request",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Resource not found",
	http.StatusMethodNotAllowed:    "Method not allowed",
	http.StatusConflict:            "Conflict",
	http.StatusUnprocessableEntity: "Validation failed",
	http.StatusTooManyRequests:     "Too many requests",
	http.StatusInternalServerError: "Internal server error",
	http.StatusServiceUnavailable:  "Service unavailable",
}

// Overrides maps status codes to endpoint specific messages.
type Overrides map[int]string

// Messages is the declarative override table. It is filled while routes are
// registered and only read afterwards, so it needs no locking.
type Messages struct {
	endpoints map[string]Overrides
	groups    map[string]Overrides
}

func NewMessages() *Messages {
	return &Messages{
		endpoints: make(map[string]Overrides),
		groups:    make(map[string]Overrides),
	}
}

func endpointKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Endpoint sets overrides for one route, e.g. ("POST", "/api/bookings").
func (m *Messages) Endpoint(method, path string, o Overrides) *Messages {
	m.endpoints[endpointKey(method, path)] = o
	return m
}

// Group sets overrides for every route under a path prefix. Endpoint
// overrides win over group overrides.
func (m *Messages) Group(prefix string, o Overrides) *Messages {
	m.groups[strings.TrimSuffix(prefix, "/")] = o
	return m
}

// Resolve picks the message for a response: endpoint override, then the
// longest matching group override, then the default table.
func (m *Messages) Resolve(method, path string, status int) string {
	if m != nil {
		if msg, ok := m.endpoints[endpointKey(method, path)][status]; ok {
			return msg
		}
		best := -1
		var msg string
		for prefix, o := range m.groups {
			if len(prefix) <= best || !hasPathPrefix(path, prefix) {
				continue
			}
			if candidate, ok := o[status]; ok {
				best, msg = len(prefix), candidate
			}
		}
		if best >= 0 {
			return msg
		}
	}
	return DefaultMessage(status)
}

// DefaultMessage returns the generic message for status.
func DefaultMessage(status int) string {
	if msg, ok := defaultMessages[status]; ok {
		return msg
	}
	return UnknownStatusMessage
}

func hasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
