package handlers

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"home-services-api/internal/auth"
)

func TestGetPresence(t *testing.T) {
	f := newFixture(t)
	_, token := f.account(t, auth.RoleUser, "asker")
	helper, _ := f.account(t, auth.RoleHelper, "hank")
	path := "/api/presence/Helper/" + strconv.FormatInt(helper.ID, 10)

	resp := decode[PresenceResponse](t, f.do(t, http.MethodGet, path, token, nil))
	require.False(t, resp.IsOnline)
	require.Nil(t, resp.LastSeen)

	s := f.connect(t, "h1", helper)
	resp = decode[PresenceResponse](t, f.do(t, http.MethodGet, path, token, nil))
	require.True(t, resp.IsOnline)
	require.Equal(t, identityOf(t, helper), resp.Identity)

	f.deps.Hub.OnDisconnect(context.Background(), s, nil)
	resp = decode[PresenceResponse](t, f.do(t, http.MethodGet, path, token, nil))
	require.False(t, resp.IsOnline)
	require.NotNil(t, resp.LastSeen)
}

func TestGetPresence_BadIdentity(t *testing.T) {
	f := newFixture(t)
	_, token := f.account(t, auth.RoleUser, "asker")

	for _, path := range []string{"/api/presence/Plumber/1", "/api/presence/User/abc", "/api/presence/User/0"} {
		w := f.do(t, http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}
