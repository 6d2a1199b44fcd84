package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronozoom/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testTokens = TokenService{Secret: []byte("test-secret"), Issuer: "chronozoom-test", Duration: time.Hour}

func alice() *models.User {
	return &models.User{ID: uuid.New(), DisplayName: "Alice", NameIdentifier: "alice", IdentityProvider: "idp"}
}

// =============================================================================
// CanModify
// =============================================================================

func TestCanModify(t *testing.T) {
	owner := alice()
	sameIdentityOtherRow := &models.User{ID: uuid.New(), NameIdentifier: "alice", IdentityProvider: "idp"}
	otherProvider := &models.User{ID: owner.ID, NameIdentifier: "alice", IdentityProvider: "other"}
	bob := &models.User{ID: uuid.New(), NameIdentifier: "bob", IdentityProvider: "idp"}

	tests := []struct {
		name   string
		acting *models.User
		owner  *models.User
		want   bool
	}{
		{"unowned, anonymous", nil, nil, true},
		{"unowned, identified", bob, nil, true},
		{"owned, anonymous", nil, owner, false},
		{"owned, owner", owner, owner, true},
		{"owned, same identity pair", sameIdentityOtherRow, owner, true},
		{"owned, same id but other provider", otherProvider, owner, false},
		{"owned, other user", bob, owner, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanModify(tt.acting, tt.owner))
		})
	}
}

// =============================================================================
// TokenService
// =============================================================================

func TestTokenService_RoundTrip(t *testing.T) {
	token, exp, err := testTokens.Sign(alice())
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := testTokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.NameIdentifier)
	assert.Equal(t, "idp", claims.IdentityProvider)
	assert.Equal(t, "Alice", claims.User().DisplayName)
}

func TestTokenService_RejectsWrongSecret(t *testing.T) {
	token, _, err := testTokens.Sign(alice())
	require.NoError(t, err)

	other := testTokens
	other.Secret = []byte("different")
	_, err = other.Parse(token)
	assert.Error(t, err)
}

func TestTokenService_RejectsMissingIdentity(t *testing.T) {
	token, _, err := testTokens.Sign(&models.User{NameIdentifier: "anonymous"})
	require.NoError(t, err)

	_, err = testTokens.Parse(token)
	assert.Error(t, err)
}

func TestTokenService_RejectsExpired(t *testing.T) {
	expired := testTokens
	expired.Duration = -time.Minute
	token, _, err := expired.Sign(alice())
	require.NoError(t, err)

	_, err = testTokens.Parse(token)
	assert.Error(t, err)
}

// =============================================================================
// IdentityMiddleware
// =============================================================================

type stubUsers struct {
	user *models.User
	err  error
}

func (s stubUsers) UserByIdentity(_ context.Context, _, _ string) (*models.User, error) {
	return s.user, s.err
}

func runMiddleware(t *testing.T, users UserLookup, header string) (*httptest.ResponseRecorder, *models.User, bool) {
	t.Helper()
	var (
		seen   *models.User
		called bool
	)
	r := gin.New()
	r.Use(IdentityMiddleware(testTokens, users, zerolog.Nop()))
	r.GET("/", func(c *gin.Context) {
		called = true
		seen = CurrentUser(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w, seen, called
}

func TestIdentityMiddleware_Anonymous(t *testing.T) {
	w, user, called := runMiddleware(t, nil, "")

	assert.True(t, called)
	assert.Nil(t, user)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestIdentityMiddleware_ResolvesStoredUser(t *testing.T) {
	stored := alice()
	token, _, err := testTokens.Sign(stored)
	require.NoError(t, err)

	_, user, called := runMiddleware(t, stubUsers{user: stored}, "Bearer "+token)

	require.True(t, called)
	require.NotNil(t, user)
	assert.Equal(t, stored.ID, user.ID)
}

func TestIdentityMiddleware_UnknownUserKeepsClaims(t *testing.T) {
	token, _, err := testTokens.Sign(alice())
	require.NoError(t, err)

	_, user, called := runMiddleware(t, stubUsers{}, "bearer "+token)

	require.True(t, called)
	require.NotNil(t, user)
	assert.Equal(t, uuid.Nil, user.ID)
	assert.Equal(t, "alice", user.NameIdentifier)
}

func TestIdentityMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"basic auth", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _, called := runMiddleware(t, nil, tt.header)
			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestIdentityMiddleware_LookupFailure(t *testing.T) {
	token, _, err := testTokens.Sign(alice())
	require.NoError(t, err)

	w, _, called := runMiddleware(t, stubUsers{err: errors.New("db down")}, "Bearer "+token)

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
