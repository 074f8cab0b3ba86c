package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lernio/gatekeeper/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTestBadCredentials = errors.New("invalid credentials")
	errTestNoAccount      = errors.New("no account")
	errTestResetInvalid   = errors.New("reset invalid")
	errTestPolicy         = errors.New("password policy")
)

type fakeAccounts struct {
	accounts map[string]LoginAccount
	updates  map[string]string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		accounts: map[string]LoginAccount{
			"USER|ada@example.com": {
				ID:           "u-1",
				Email:        "ada@example.com",
				FullName:     "Ada Lovelace",
				Role:         "USER",
				PasswordHash: "legacy:correct horse",
			},
		},
		updates: map[string]string{},
	}
}

func (f *fakeAccounts) find(_ context.Context, role, email string) (LoginAccount, error) {
	acc, ok := f.accounts[role+"|"+email]
	if !ok {
		return LoginAccount{}, errTestNoAccount
	}
	return acc, nil
}

func (f *fakeAccounts) update(_ context.Context, role, email, hash string) error {
	key := role + "|" + email
	acc, ok := f.accounts[key]
	if !ok {
		return errTestNoAccount
	}
	acc.PasswordHash = hash
	f.accounts[key] = acc
	f.updates[key] = hash
	return nil
}

func newLoginDeps(accounts *fakeAccounts, created *[]SessionRequest) LoginDeps {
	return LoginDeps{
		UpgradeOnLogin:    true,
		FindAccount:       accounts.find,
		IsAccountNotFound: func(err error) bool { return errors.Is(err, errTestNoAccount) },
		VerifyPassword: func(pw, hash string) (bool, error) {
			return hash == "legacy:"+pw || hash == "new:"+pw, nil
		},
		NeedsUpgrade: func(hash string) (bool, error) {
			return len(hash) > 7 && hash[:7] == "legacy:", nil
		},
		HashPassword:       func(pw string) (string, error) { return "new:" + pw, nil },
		UpdatePasswordHash: accounts.update,
		CreateSession: func(_ context.Context, req SessionRequest) (*SessionResult, error) {
			*created = append(*created, req)
			sess := &session.Session{SessionID: "sid-1", Identity: req.Identity, Role: req.Role, LoginAt: time.Now()}
			return &SessionResult{Session: sess, ActiveSessions: []*session.Session{sess}}, nil
		},
		IssueToken: func(acc LoginAccount, sid string) (string, error) {
			return "token:" + acc.ID + ":" + sid, nil
		},
		Errors: LoginErrors{
			EngineNotReady:     errTestNotReady,
			InvalidCredentials: errTestBadCredentials,
		},
	}
}

func TestLoginIssuesTokenAndUpgradesHash(t *testing.T) {
	accounts := newFakeAccounts()
	var created []SessionRequest
	deps := newLoginDeps(accounts, &created)

	res, err := RunLogin(context.Background(), LoginRequest{
		Email:     " ADA@example.com",
		Password:  "correct horse",
		Role:      "USER",
		IP:        "203.0.113.7",
		UserAgent: "curl",
	}, deps)
	require.NoError(t, err)

	assert.Equal(t, "token:u-1:sid-1", res.Token)
	require.Len(t, created, 1)
	assert.Equal(t, "ada@example.com", created[0].Identity)
	assert.Equal(t, "203.0.113.7", created[0].IP)
	assert.Equal(t, "new:correct horse", accounts.updates["USER|ada@example.com"])
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	accounts := newFakeAccounts()
	var created []SessionRequest
	deps := newLoginDeps(accounts, &created)

	cases := []LoginRequest{
		{Email: "ada@example.com", Password: "wrong", Role: "USER"},
		{Email: "nobody@example.com", Password: "correct horse", Role: "USER"},
		{Email: "ada@example.com", Password: "correct horse", Role: "ADMIN"},
		{Email: "", Password: "x", Role: "USER"},
	}
	for _, req := range cases {
		_, err := RunLogin(context.Background(), req, deps)
		assert.ErrorIs(t, err, errTestBadCredentials, "%+v", req)
	}
	assert.Empty(t, created)
}

func TestLoginLimitExceededIssuesNoToken(t *testing.T) {
	accounts := newFakeAccounts()
	var created []SessionRequest
	deps := newLoginDeps(accounts, &created)
	deps.CreateSession = func(context.Context, SessionRequest) (*SessionResult, error) {
		return &SessionResult{LimitExceeded: true, ActiveSessions: []*session.Session{{SessionID: "old"}}}, nil
	}
	deps.IssueToken = func(LoginAccount, string) (string, error) {
		t.Fatal("token must not be issued")
		return "", nil
	}

	res, err := RunLogin(context.Background(), LoginRequest{Email: "ada@example.com", Password: "correct horse", Role: "USER"}, deps)
	require.NoError(t, err)
	assert.True(t, res.Session.LimitExceeded)
	assert.Empty(t, res.Token)
}

type memResetStore struct {
	records map[string]PasswordResetRecord
}

func newPasswordResetDeps(accounts *fakeAccounts, store *memResetStore, invalidated *[]string, sent *[]string) PasswordResetDeps {
	return PasswordResetDeps{
		ResetTTL:          15 * time.Minute,
		MinPasswordBytes:  10,
		MaxPasswordBytes:  64,
		ValidRole:         func(r string) bool { return r == "USER" || r == "ADMIN" },
		FindAccount:       accounts.find,
		IsAccountNotFound: func(err error) bool { return errors.Is(err, errTestNoAccount) },
		NewToken:          func() (string, error) { return "tok-1", nil },
		SaveResetRecord: func(_ context.Context, token string, rec PasswordResetRecord, _ time.Duration) error {
			store.records[token] = rec
			return nil
		},
		ConsumeResetRecord: func(_ context.Context, token string) (PasswordResetRecord, error) {
			rec, ok := store.records[token]
			if !ok {
				return PasswordResetRecord{}, errTestNotFound
			}
			delete(store.records, token)
			return rec, nil
		},
		IsRecordNotFound:   func(err error) bool { return errors.Is(err, errTestNotFound) },
		HashPassword:       func(pw string) (string, error) { return "new:" + pw, nil },
		UpdatePasswordHash: accounts.update,
		InvalidateAll: func(_ context.Context, identity, role string) error {
			*invalidated = append(*invalidated, role+"|"+identity)
			return nil
		},
		SendResetLink: func(_ context.Context, acc LoginAccount, token string, _ time.Duration) {
			*sent = append(*sent, acc.Email+"|"+token)
		},
		Errors: PasswordResetErrors{
			EngineNotReady:           errTestNotReady,
			PasswordResetInvalid:     errTestResetInvalid,
			PasswordResetUnavailable: errTestStore,
			PasswordPolicy:           errTestPolicy,
		},
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	accounts := newFakeAccounts()
	store := &memResetStore{records: map[string]PasswordResetRecord{}}
	var invalidated, sent []string
	deps := newPasswordResetDeps(accounts, store, &invalidated, &sent)

	token, err := RunRequestPasswordReset(context.Background(), "Ada@Example.com", "USER", deps)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, []string{"ada@example.com|tok-1"}, sent)
	assert.Equal(t, PasswordResetRecord{Email: "ada@example.com", Stakeholder: "USER"}, store.records["tok-1"])

	_, err = RunCompletePasswordReset(context.Background(), token, "short", deps)
	assert.ErrorIs(t, err, errTestPolicy)
	assert.Contains(t, store.records, "tok-1", "policy failure must not burn the token")

	rec, err := RunCompletePasswordReset(context.Background(), token, "a much better passphrase", deps)
	require.NoError(t, err)
	assert.Equal(t, "USER", rec.Stakeholder)
	assert.Equal(t, "new:a much better passphrase", accounts.accounts["USER|ada@example.com"].PasswordHash)
	assert.Equal(t, []string{"USER|ada@example.com"}, invalidated)

	_, err = RunCompletePasswordReset(context.Background(), token, "a much better passphrase", deps)
	assert.ErrorIs(t, err, errTestResetInvalid)
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	accounts := newFakeAccounts()
	store := &memResetStore{records: map[string]PasswordResetRecord{}}
	var invalidated, sent []string
	deps := newPasswordResetDeps(accounts, store, &invalidated, &sent)

	token, err := RunRequestPasswordReset(context.Background(), "nobody@example.com", "USER", deps)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Empty(t, sent)
	assert.Empty(t, store.records)

	_, err = RunRequestPasswordReset(context.Background(), "ada@example.com", "GUEST", deps)
	assert.ErrorIs(t, err, errTestResetInvalid)
}
