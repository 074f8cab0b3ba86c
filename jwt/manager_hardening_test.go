package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{UserID: "u", Email: "u@x.com", Role: "USER", SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "gatekeeper",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, err := m.Sign(Claims{UserID: "u", Email: "u@x.com", Role: "USER", SessionID: "s1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(access); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	wrongIssuer := Claims{UserID: "u", Email: "u@x.com", Role: "USER", SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	badIssuerTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongIssuer)
	badIssuer, _ := badIssuerTok.SignedString(priv)
	if _, err := m.Parse(badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := Claims{UserID: "u", Email: "u@x.com", Role: "USER", SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "gatekeeper",
		Audience:  gjwt.ClaimStrings{"other-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	badAudienceTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongAudience)
	badAudience, _ := badAudienceTok.SignedString(priv)
	if _, err := m.Parse(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	expWithinLeeway := Claims{UserID: "u", Email: "u@x.com", Role: "USER", SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "gatekeeper",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	withinTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, expWithinLeeway)
	within, _ := withinTok.SignedString(priv)
	if _, err := m.Parse(within); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := Claims{UserID: "u", Email: "u@x.com", Role: "USER", SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "gatekeeper",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-3 * time.Minute)),
	}}
	expiredTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, expired)
	expiredSigned, _ := expiredTok.SignedString(priv)
	if _, err := m.Parse(expiredSigned); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{UserID: "u", Email: "u@x.com", Role: "USER", SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.Parse(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.Parse(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func TestVerifyOnlyManagerCannotSign(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.Sign(Claims{UserID: "u", Email: "u@x.com", Role: "USER", SessionID: "s1"}); !errors.Is(err, ErrNoSigningKey) {
		t.Fatalf("expected ErrNoSigningKey, got %v", err)
	}
}

func TestHS256KeyRotation(t *testing.T) {
	oldSecret := []byte("old-secret-old-secret-old-secret")
	newSecret := []byte("new-secret-new-secret-new-secret")
	keyring := map[string][]byte{"2025": oldSecret, "2026": newSecret}

	before, err := NewManager(Config{TTL: time.Minute, PrivateKey: oldSecret, KeyID: "2025", VerifyKeys: keyring})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	after, err := NewManager(Config{TTL: time.Minute, PrivateKey: newSecret, KeyID: "2026", VerifyKeys: keyring})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	issued, err := before.Sign(Claims{UserID: "u", Email: "u@x.com", Role: "ADMIN", SessionID: "s1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := after.Parse(issued); err != nil {
		t.Fatalf("token signed with the previous key must still verify: %v", err)
	}
}

func TestKeyringRequiresSigningKeyID(t *testing.T) {
	secret := []byte("old-secret-old-secret-old-secret")
	if _, err := NewManager(Config{TTL: time.Minute, PrivateKey: secret, VerifyKeys: map[string][]byte{"2025": secret}}); err == nil {
		t.Fatal("expected error for keyring without KeyID")
	}

	pub, priv := newEdKeys(t)
	if _, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, VerifyKeys: map[string][]byte{"k1": pub}}); err == nil {
		t.Fatal("expected error for ed25519 signer without KeyID")
	}
	if _, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{"k1": pub}}); err != nil {
		t.Fatalf("verify-only manager needs no KeyID: %v", err)
	}

	m, err := NewManager(Config{TTL: time.Minute, PrivateKey: secret, KeyID: "2025", VerifyKeys: map[string][]byte{"2025": secret}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tok, err := m.Sign(Claims{UserID: "u", Email: "u@x.com", Role: "USER", SessionID: "s1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(tok); err != nil {
		t.Fatalf("manager must verify its own tokens: %v", err)
	}
}
