package gatekeeper

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lernio/gatekeeper/internal/database"
	"github.com/lernio/gatekeeper/mail"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse-battery"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	cfg.AdminRequest.NotifyEmails = []string{"ops@lernio.test"}
	return cfg
}

// recordingMailer captures every message instead of delivering it.
type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	fail error
	ch   chan mail.Message
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{ch: make(chan mail.Message, 64)}
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, msg)
	m.ch <- msg
	return nil
}

// waitFor blocks until a message addressed to `to` is delivered.
func (m *recordingMailer) waitFor(t *testing.T, to string) mail.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-m.ch:
			for _, rcpt := range msg.To {
				if strings.EqualFold(rcpt, to) {
					return msg
				}
			}
		case <-deadline:
			t.Fatalf("no mail delivered to %s", to)
			return mail.Message{}
		}
	}
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	accounts *database.AccountRepository
	requests *database.AdminRequestRepository
	mailer   *recordingMailer
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	db, err := database.Open(database.Options{
		Driver:       database.DriverSQLite,
		DSN:          ":memory:",
		AutoMigrate:  true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		mr:       mr,
		accounts: database.NewAccountRepository(db),
		requests: database.NewAdminRequestRepository(db),
		mailer:   newRecordingMailer(),
	}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(env.accounts).
		WithAdminRequests(env.requests).
		WithMailer(env.mailer).
		WithDatabasePing(func(ctx context.Context) error { return database.Ping(ctx, db) }).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// seedAccount inserts an account with testPassword and returns its ID.
func (env *testEnv) seedAccount(t *testing.T, role, email string) string {
	t.Helper()
	hash, err := env.engine.passwordHash.Hash(testPassword)
	require.NoError(t, err)
	id, err := env.accounts.CreateAccount(context.Background(), role, database.NewAccount{
		Email:        email,
		FullName:     "Test " + role,
		PasswordHash: hash,
	})
	require.NoError(t, err)
	return id
}

// administrator logs an ADMINISTRATOR in and returns the verified payload.
func (env *testEnv) administrator(t *testing.T) *TokenPayload {
	t.Helper()
	env.seedAccount(t, RoleAdministrator, "root@lernio.test")
	res, err := env.engine.Login(context.Background(), LoginRequest{
		Email:    "root@lernio.test",
		Password: testPassword,
		Role:     RoleAdministrator,
	})
	require.NoError(t, err)
	payload, ok := env.engine.VerifyToken(res.Token)
	require.True(t, ok)
	return payload
}
