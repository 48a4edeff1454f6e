package presence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidIdentity is returned when a kind or id cannot name a recipient.
var ErrInvalidIdentity = errors.New("invalid identity")

// Kind discriminates the two populations that can hold live connections.
type Kind string

const (
	KindUser   Kind = "User"
	KindHelper Kind = "Helper"
)

// ParseKind accepts "User"/"Helper" in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return KindUser, nil
	case "helper":
		return KindHelper, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidIdentity, s)
}

// Identity is a logical recipient. It outlives any single connection.
type Identity struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

// NewIdentity validates kind and id.
func NewIdentity(kind string, id int64) (Identity, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Identity{}, err
	}
	if id <= 0 {
		return Identity{}, fmt.Errorf("%w: id must be positive, got %d", ErrInvalidIdentity, id)
	}
	return Identity{Kind: k, ID: id}, nil
}

// ParseIdentity builds an identity from string claims, e.g. ("Helper", "17").
func ParseIdentity(kind, id string) (Identity, error) {
	if strings.TrimSpace(id) == "" {
		return Identity{}, fmt.Errorf("%w: missing id", ErrInvalidIdentity)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: id %q is not numeric", ErrInvalidIdentity, id)
	}
	return NewIdentity(kind, n)
}

func (i Identity) String() string {
	return string(i.Kind) + ":" + strconv.FormatInt(i.ID, 10)
}

// MarshalText lets identities key JSON objects ("User:42").
func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Identity) UnmarshalText(b []byte) error {
	kind, id, ok := strings.Cut(string(b), ":")
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, b)
	}
	parsed, err := ParseIdentity(kind, id)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Handle identifies one live duplex session.
type Handle string
