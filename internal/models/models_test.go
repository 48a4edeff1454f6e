package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-services-api/internal/auth"
	"home-services-api/internal/presence"
)

func TestBookingStatusTransitions(t *testing.T) {
	assert.True(t, BookingPending.CanMoveTo(BookingAccepted))
	assert.True(t, BookingPending.CanMoveTo(BookingCancelled))
	assert.False(t, BookingPending.CanMoveTo(BookingCompleted))
	assert.True(t, BookingAccepted.CanMoveTo(BookingCompleted))
	assert.False(t, BookingCompleted.CanMoveTo(BookingCancelled))
	assert.False(t, BookingCancelled.CanMoveTo(BookingAccepted))
	assert.False(t, BookingStatus("archived").Valid())
}

func TestConversationCounterpart(t *testing.T) {
	conv := Conversation{ID: 1, UserID: 10, HelperID: 20}
	user := presence.Identity{Kind: presence.KindUser, ID: 10}
	helper := presence.Identity{Kind: presence.KindHelper, ID: 20}

	assert.True(t, conv.Participant(user))
	assert.True(t, conv.Participant(helper))
	assert.False(t, conv.Participant(presence.Identity{Kind: presence.KindHelper, ID: 10}))
	assert.Equal(t, helper, conv.Counterpart(user))
	assert.Equal(t, user, conv.Counterpart(helper))
}

func TestNotificationPayload(t *testing.T) {
	ref := int64(99)
	n := NewNotification(presence.Identity{Kind: presence.KindHelper, ID: 3}, "New booking", "Plumbing in Leeds", "booking", &ref)
	n.ID = 12

	p := n.Payload()
	assert.Equal(t, int64(12), p.ID)
	require.NotNil(t, p.RecipientHelperID)
	assert.Equal(t, int64(3), *p.RecipientHelperID)
	assert.Nil(t, p.RecipientUserID)
	assert.Equal(t, &ref, p.ReferenceID)
}

func TestAccountIdentity(t *testing.T) {
	id, err := Account{ID: 4, Role: auth.RoleUser}.Identity()
	require.NoError(t, err)
	assert.Equal(t, presence.Identity{Kind: presence.KindUser, ID: 4}, id)

	_, err = Account{ID: 4, Role: auth.RoleAdmin}.Identity()
	require.ErrorIs(t, err, presence.ErrInvalidIdentity)
}
