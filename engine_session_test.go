package gatekeeper

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newSessionEngine(t *testing.T, mutate func(*Config)) (*Engine, func(time.Duration)) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, mr.FastForward
}

func createSession(t *testing.T, e *Engine, identity, role string) *SessionResult {
	t.Helper()
	res, err := e.CreateSession(context.Background(), SessionRequest{
		Identity:  identity,
		Role:      role,
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15",
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return res
}

func TestCreateSessionEnforcesRoleLimit(t *testing.T) {
	engine, _ := newSessionEngine(t, nil)

	for i := 0; i < 3; i++ {
		res := createSession(t, engine, "ada@lernio.test", RoleAdmin)
		if res.LimitExceeded || res.Session == nil {
			t.Fatalf("create %d: expected a session, got %+v", i, res)
		}
	}

	res := createSession(t, engine, "ada@lernio.test", RoleAdmin)
	if !res.LimitExceeded {
		t.Fatal("expected LimitExceeded on the fourth ADMIN session")
	}
	if res.Session != nil {
		t.Fatal("limit-exceeded result must not carry a session")
	}
	if len(res.ActiveSessions) != 3 {
		t.Fatalf("expected 3 active sessions, got %d", len(res.ActiveSessions))
	}

	n, err := engine.CountActiveSessions(context.Background(), "ada@lernio.test", RoleAdmin)
	if err != nil {
		t.Fatalf("CountActiveSessions failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("rejected create must not be persisted, count=%d", n)
	}
	if got := engine.MetricsSnapshot().Counters[MetricSessionLimitExceeded]; got != 1 {
		t.Fatalf("expected one limit-exceeded metric, got %d", got)
	}
}

func TestCreateSessionLimitIsPerRole(t *testing.T) {
	engine, _ := newSessionEngine(t, nil)

	createSession(t, engine, "ada@lernio.test", RoleAdministrator)
	createSession(t, engine, "ada@lernio.test", RoleAdministrator)
	if res := createSession(t, engine, "ada@lernio.test", RoleAdministrator); !res.LimitExceeded {
		t.Fatal("expected ADMINISTRATOR limit of 2")
	}
	if res := createSession(t, engine, "ada@lernio.test", RoleUser); res.LimitExceeded {
		t.Fatal("USER sessions are counted separately")
	}
}

func TestCreateSessionAtomicLimit(t *testing.T) {
	engine, _ := newSessionEngine(t, func(c *Config) { c.Session.AtomicLimit = true })

	createSession(t, engine, "bob@lernio.test", RoleAdministrator)
	createSession(t, engine, "bob@lernio.test", RoleAdministrator)
	res := createSession(t, engine, "bob@lernio.test", RoleAdministrator)
	if !res.LimitExceeded {
		t.Fatal("expected LimitExceeded with AtomicLimit")
	}
	if len(res.ActiveSessions) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(res.ActiveSessions))
	}
}

func TestCreateSessionNormalizesIdentityAndDescribesDevice(t *testing.T) {
	engine, _ := newSessionEngine(t, nil)

	res := createSession(t, engine, "  Ada@Lernio.TEST ", RoleUser)
	if res.Session.Identity != "ada@lernio.test" {
		t.Fatalf("expected normalized identity, got %q", res.Session.Identity)
	}
	if res.Session.Device == "" {
		t.Fatal("expected device derived from user agent")
	}

	ok, err := engine.ValidateSession(context.Background(), res.Session.SessionID, "ADA@lernio.test", RoleUser)
	if err != nil || !ok {
		t.Fatalf("expected session to validate under any identity casing, ok=%v err=%v", ok, err)
	}
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	engine, _ := newSessionEngine(t, nil)

	if _, err := engine.CreateSession(context.Background(), SessionRequest{Identity: "a@b.c", Role: "GUEST"}); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if _, err := engine.CreateSession(context.Background(), SessionRequest{Identity: "  ", Role: RoleUser}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateSessionUsesContextClientInfo(t *testing.T) {
	engine, _ := newSessionEngine(t, nil)

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.4"), "curl/8.4.0")
	res, err := engine.CreateSession(ctx, SessionRequest{Identity: "ctx@lernio.test", Role: RoleUser})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if res.Session.IP != "198.51.100.4" || res.Session.UserAgent != "curl/8.4.0" {
		t.Fatalf("expected context client info, got ip=%q ua=%q", res.Session.IP, res.Session.UserAgent)
	}
}

func TestGetActiveSessionsNewestFirst(t *testing.T) {
	engine, _ := newSessionEngine(t, nil)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		engine.now = func() time.Time { return at }
		ids = append(ids, createSession(t, engine, "list@lernio.test", RoleUser).Session.SessionID)
	}

	list, err := engine.GetActiveSessions(context.Background(), "list@lernio.test", RoleUser)
	if err != nil {
		t.Fatalf("GetActiveSessions failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	for i, want := range []string{ids[2], ids[1], ids[0]} {
		if list[i].SessionID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, list[i].SessionID)
		}
	}
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	engine, fastForward := newSessionEngine(t, func(c *Config) { c.Session.TTL = time.Hour })

	sid := createSession(t, engine, "ttl@lernio.test", RoleUser).Session.SessionID
	fastForward(59 * time.Minute)

	if err := engine.UpdateSessionActivity(context.Background(), sid, "ttl@lernio.test", RoleUser); err != nil {
		t.Fatalf("UpdateSessionActivity failed: %v", err)
	}
	fastForward(59 * time.Minute)

	ok, err := engine.ValidateSession(context.Background(), sid, "ttl@lernio.test", RoleUser)
	if err != nil || !ok {
		t.Fatalf("activity should have refreshed the TTL, ok=%v err=%v", ok, err)
	}

	fastForward(2 * time.Hour)
	ok, err = engine.ValidateSession(context.Background(), sid, "ttl@lernio.test", RoleUser)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if ok {
		t.Fatal("expected session to expire")
	}
	if err := engine.UpdateSessionActivity(context.Background(), sid, "ttl@lernio.test", RoleUser); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestUpdateSessionActivityRewritesLastActiveWhenEnabled(t *testing.T) {
	engine, _ := newSessionEngine(t, func(c *Config) { c.Session.RewriteLastActive = true })

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return start }
	sid := createSession(t, engine, "stamp@lernio.test", RoleUser).Session.SessionID

	later := start.Add(10 * time.Minute)
	engine.now = func() time.Time { return later }
	if err := engine.UpdateSessionActivity(context.Background(), sid, "stamp@lernio.test", RoleUser); err != nil {
		t.Fatalf("UpdateSessionActivity failed: %v", err)
	}

	list, err := engine.GetActiveSessions(context.Background(), "stamp@lernio.test", RoleUser)
	if err != nil {
		t.Fatalf("GetActiveSessions failed: %v", err)
	}
	if !list[0].LastActiveAt.Equal(later) {
		t.Fatalf("expected LastActiveAt=%v, got %v", later, list[0].LastActiveAt)
	}
}

func TestInvalidateSession(t *testing.T) {
	engine, _ := newSessionEngine(t, nil)

	sid := createSession(t, engine, "out@lernio.test", RoleUser).Session.SessionID
	if err := engine.InvalidateSession(context.Background(), sid, "out@lernio.test", RoleUser); err != nil {
		t.Fatalf("InvalidateSession failed: %v", err)
	}
	if err := engine.InvalidateSession(context.Background(), sid, "out@lernio.test", RoleUser); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second invalidate, got %v", err)
	}
	ok, _ := engine.ValidateSession(context.Background(), sid, "out@lernio.test", RoleUser)
	if ok {
		t.Fatal("invalidated session still validates")
	}
}

func TestInvalidateAllSessionsLeavesOtherIdentities(t *testing.T) {
	engine, _ := newSessionEngine(t, nil)

	for i := 0; i < 3; i++ {
		createSession(t, engine, "all@lernio.test", RoleUser)
	}
	other := createSession(t, engine, "all@lernio.test.evil", RoleUser).Session.SessionID
	admin := createSession(t, engine, "all@lernio.test", RoleAdmin).Session.SessionID

	n, err := engine.InvalidateAllSessions(context.Background(), "all@lernio.test", RoleUser)
	if err != nil {
		t.Fatalf("InvalidateAllSessions failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}

	list, err := engine.GetActiveSessions(context.Background(), "all@lernio.test", RoleUser)
	if err != nil {
		t.Fatalf("GetActiveSessions failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no sessions left, got %d", len(list))
	}

	if ok, _ := engine.ValidateSession(context.Background(), other, "all@lernio.test.evil", RoleUser); !ok {
		t.Fatal("identity sharing a key prefix must not be touched")
	}
	if ok, _ := engine.ValidateSession(context.Background(), admin, "all@lernio.test", RoleAdmin); !ok {
		t.Fatal("other role must not be touched")
	}
}

func TestValidateSessionRejectsMalformedID(t *testing.T) {
	engine, _ := newSessionEngine(t, nil)

	ok, err := engine.ValidateSession(context.Background(), "*", "glob@lernio.test", RoleUser)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ok {
		t.Fatal("malformed id must not validate")
	}
}

func TestSessionStoreOutageIsReported(t *testing.T) {
	mr, rdb := newTestRedis(t)
	engine, err := New().WithConfig(testConfig()).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	mr.Close()
	_, err = engine.CreateSession(context.Background(), SessionRequest{Identity: "down@lernio.test", Role: RoleUser})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if KindOf(err) != KindInternal {
		t.Fatalf("expected KindInternal, got %v", KindOf(err))
	}
}
