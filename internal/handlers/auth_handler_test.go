package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"home-services-api/internal/auth"
)

func TestRegister_CreatesAccountAndToken(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "alice",
		"password": "sha256-from-fe",
		"role":     "Helper",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[LoginResponse](t, w)
	require.NotEmpty(t, resp.Token)
	require.Equal(t, auth.RoleHelper, resp.Role)

	claims, err := f.deps.Tokens.ValidateToken(resp.Token)
	require.NoError(t, err)
	id, err := claims.AccountID()
	require.NoError(t, err)
	require.Equal(t, resp.ID, id)
}

func TestRegister_Rejections(t *testing.T) {
	f := newFixture(t)
	f.account(t, auth.RoleUser, "taken")

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"duplicate username", map[string]string{"username": "taken", "password": "secret1", "role": "User"}, http.StatusConflict},
		{"admin self signup", map[string]string{"username": "boss", "password": "secret1", "role": "Admin"}, http.StatusBadRequest},
		{"unknown role", map[string]string{"username": "carl", "password": "secret1", "role": "Plumber"}, http.StatusBadRequest},
		{"short password", map[string]string{"username": "dana", "password": "123", "role": "User"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/register", "", tt.body)
			require.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	acct, _ := f.account(t, auth.RoleUser, "bob")

	w := f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "bob", "password": "password"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[LoginResponse](t, w)
	require.Equal(t, acct.ID, resp.ID)
	require.NotEmpty(t, resp.Token)

	w = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "bob", "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "ghost", "password": "password"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "bob"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
