package gatekeeper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginIssuesTokenBoundToSession(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.seedAccount(t, RoleUser, "learner@lernio.test")

	ctx := WithClientIP(context.Background(), "203.0.113.50")
	res, err := env.engine.Login(ctx, LoginRequest{
		Email:     "  Learner@Lernio.test",
		Password:  testPassword,
		Role:      RoleUser,
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.NotNil(t, res.Session.Session)
	assert.False(t, res.Session.LimitExceeded)
	assert.Equal(t, "203.0.113.50", res.Session.Session.IP)

	payload, err := env.engine.Authenticate(ctx, res.Token, RoleUser)
	require.NoError(t, err)
	assert.Equal(t, id, payload.UserID)
	assert.Equal(t, "learner@lernio.test", payload.Email)
	assert.Equal(t, res.Session.Session.SessionID, payload.SessionID)

	require.NoError(t, env.engine.Logout(ctx, payload))
	_, err = env.engine.Authenticate(ctx, res.Token, RoleUser)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, RoleUser, "learner@lernio.test")
	ctx := context.Background()

	_, wrongPassword := env.engine.Login(ctx, LoginRequest{Email: "learner@lernio.test", Password: "wrong-password-1", Role: RoleUser})
	_, unknownEmail := env.engine.Login(ctx, LoginRequest{Email: "ghost@lernio.test", Password: testPassword, Role: RoleUser})
	_, wrongTable := env.engine.Login(ctx, LoginRequest{Email: "learner@lernio.test", Password: testPassword, Role: RoleAdmin})

	for _, err := range []error{wrongPassword, unknownEmail, wrongTable} {
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, KindUnauthorized, KindOf(err))
	}
	assert.Equal(t, uint64(3), env.engine.MetricsSnapshot().Counters[MetricLoginFailure])
}

func TestLoginUnknownRole(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.Login(context.Background(), LoginRequest{Email: "a@b.c", Password: testPassword, Role: "ROOT"})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestLoginAtSessionLimitReturnsActiveSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, RoleAdministrator, "boss@lernio.test")
	ctx := context.Background()
	req := LoginRequest{Email: "boss@lernio.test", Password: testPassword, Role: RoleAdministrator}

	for i := 0; i < 2; i++ {
		res, err := env.engine.Login(ctx, req)
		require.NoError(t, err)
		require.NotEmpty(t, res.Token)
	}

	res, err := env.engine.Login(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Session.LimitExceeded)
	assert.Empty(t, res.Token)
	assert.Len(t, res.Session.ActiveSessions, 2)

	n, err := env.engine.CountActiveSessions(ctx, "boss@lernio.test", RoleAdministrator)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
