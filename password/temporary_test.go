package password

import (
	"strings"
	"testing"
)

func TestGenerateTemporaryClasses(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		p, err := GenerateTemporary(16)
		if err != nil {
			t.Fatalf("GenerateTemporary: %v", err)
		}
		if len(p) != 16 {
			t.Fatalf("expected length 16, got %d", len(p))
		}
		if !strings.ContainsAny(p, upperAlphabet) || !strings.ContainsAny(p, lowerAlphabet) ||
			!strings.ContainsAny(p, digitAlphabet) || !strings.ContainsAny(p, symbolAlphabet) {
			t.Fatalf("missing character class in %q", p)
		}
		if strings.ContainsAny(p, "0O1lI") {
			t.Fatalf("ambiguous character in %q", p)
		}
		if _, dup := seen[p]; dup {
			t.Fatalf("duplicate temporary password %q", p)
		}
		seen[p] = struct{}{}
	}
}

func TestGenerateTemporaryTooShort(t *testing.T) {
	if _, err := GenerateTemporary(MinTemporaryLength - 1); err == nil {
		t.Fatal("expected error for short length")
	}
}

func TestTemporaryPasswordHashes(t *testing.T) {
	hasher, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	p, err := GenerateTemporary(MinTemporaryLength)
	if err != nil {
		t.Fatalf("GenerateTemporary: %v", err)
	}
	hash, err := hasher.Hash(p)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if strings.Contains(hash, p) {
		t.Fatal("hash must not contain the plaintext")
	}
	if ok, err := hasher.Verify(p, hash); err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}
}
