package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm used for issued tokens.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret. It is the default.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with the public key.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrMissingIdentity is returned when a token lacks userId, email, role or sessionId.
	ErrMissingIdentity = errors.New("token missing identity claims")
	ErrUnknownKey      = errors.New("token signed with an unknown key")
	ErrIssuedInFuture  = errors.New("token issued too far in the future")
	ErrNoSigningKey    = errors.New("manager has no signing key")
)

const (
	defaultMaxFutureIAT = 10 * time.Minute
	maxLeeway           = 2 * time.Minute
	minSecretBytes      = 32
)

// Config controls issuance and verification.
//
// For HS256, PrivateKey is the shared secret. For Ed25519 it is the private
// key (raw or PEM); PublicKey or VerifyKeys supply verification keys. A
// verify-only Ed25519 manager may omit PrivateKey.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	// KeyID is written to the kid header. With VerifyKeys set, tokens are
	// verified by their kid and a signing manager must name its KeyID;
	// otherwise a kid, when configured, must match.
	KeyID      string
	VerifyKeys map[string][]byte
}

// Claims is the signed payload carried in the role cookie.
type Claims struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	FullName   string `json:"fullName"`
	Role       string `json:"role"`
	SessionID  string `json:"sessionId"`
	AvatarLink string `json:"avatarLink,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass; the parser calls it.
func (c Claims) Validate() error {
	if c.UserID == "" || c.Email == "" || c.Role == "" || c.SessionID == "" {
		return ErrMissingIdentity
	}
	return nil
}

// Manager issues and verifies signed session tokens. Keys are decoded once
// in NewManager.
type Manager struct {
	ttl          time.Duration
	method       jwt.SigningMethod
	issuer       string
	audience     string
	keyID        string
	maxFutureIAT time.Duration

	signKey   any
	verifyKey any
	keyring   map[string]any
	parser    *jwt.Parser
}

// NewManager validates cfg and returns a ready [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	m := &Manager{
		ttl:          cfg.TTL,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		keyID:        strings.TrimSpace(cfg.KeyID),
		maxFutureIAT: cfg.MaxFutureIAT,
	}

	var err error
	switch cfg.SigningMethod {
	case MethodHS256, "":
		err = m.loadHMAC(cfg)
	case MethodEd25519:
		err = m.loadEd25519(cfg)
	default:
		err = fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}
	if err != nil {
		return nil, err
	}
	if m.keyID == "" && len(m.keyring) > 0 && m.signKey != nil {
		return nil, errors.New("KeyID is required when VerifyKeys is set on a signing manager")
	}
	if m.keyID != "" && len(m.keyring) > 0 {
		if _, ok := m.keyring[m.keyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	m.parser = jwt.NewParser(opts...)
	return m, nil
}

func (m *Manager) loadHMAC(cfg Config) error {
	if len(cfg.PrivateKey) < minSecretBytes {
		return fmt.Errorf("hs256 requires a secret of at least %d bytes", minSecretBytes)
	}
	m.method = jwt.SigningMethodHS256
	m.signKey = cfg.PrivateKey
	m.verifyKey = cfg.PrivateKey
	if len(cfg.VerifyKeys) > 0 {
		m.keyring = make(map[string]any, len(cfg.VerifyKeys))
		for kid, secret := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return errors.New("verify key map contains empty kid")
			}
			m.keyring[kid] = secret
		}
	}
	return nil
}

func (m *Manager) loadEd25519(cfg Config) error {
	m.method = jwt.SigningMethodEdDSA
	if len(cfg.PrivateKey) > 0 {
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return err
		}
		m.signKey = priv
	}
	if len(cfg.PublicKey) > 0 {
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return err
		}
		m.verifyKey = pub
	}
	if len(cfg.VerifyKeys) == 0 && m.verifyKey == nil {
		return errors.New("ed25519 requires public key or verify key set")
	}
	if len(cfg.VerifyKeys) > 0 {
		m.keyring = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return errors.New("verify key map contains empty kid")
			}
			pub, err := parseEdPublicKey(raw)
			if err != nil {
				return fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
			m.keyring[kid] = pub
		}
	}
	return nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Sign issues a token for the identity fields of c. Registered claims on c
// are overwritten; the session ID doubles as the token ID.
func (m *Manager) Sign(c Claims) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	if m.signKey == nil {
		return "", ErrNoSigningKey
	}

	now := time.Now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        c.SessionID,
		Subject:   c.UserID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	if m.audience != "" {
		c.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.method, c)
	if m.keyID != "" {
		token.Header["kid"] = m.keyID
	}
	return token.SignedString(m.signKey)
}

// Parse verifies tokenStr and returns its claims. Any failure (malformed,
// expired, wrong algorithm, bad signature, unknown kid, missing identity)
// is returned as an error.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, err := m.parser.ParseWithClaims(tokenStr, claims, m.keyFor); err != nil {
		return nil, err
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(time.Now().Add(m.maxFutureIAT)) {
		return nil, ErrIssuedInFuture
	}
	return claims, nil
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if m.keyring != nil {
		key, ok := m.keyring[kid]
		if !ok {
			return nil, ErrUnknownKey
		}
		return key, nil
	}
	if m.keyID != "" && kid != m.keyID {
		return nil, ErrUnknownKey
	}
	return m.verifyKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
