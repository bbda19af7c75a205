package provisioning

import (
	"strings"
	"testing"
)

func TestHashSecret_RoundTrip(t *testing.T) {
	hash, err := HashSecret("a1b2c3d4")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash = %q, want PHC argon2id format", hash)
	}

	ok, err := VerifySecret("a1b2c3d4", hash)
	if err != nil {
		t.Fatalf("VerifySecret() error = %v", err)
	}
	if !ok {
		t.Error("VerifySecret() = false for matching secret")
	}

	ok, err = VerifySecret("wrong", hash)
	if err != nil {
		t.Fatalf("VerifySecret() error = %v", err)
	}
	if ok {
		t.Error("VerifySecret() = true for wrong secret")
	}
}

func TestHashSecret_UniqueSalts(t *testing.T) {
	first, err := HashSecret("a1b2c3d4")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	second, err := HashSecret("a1b2c3d4")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	if first == second {
		t.Error("two hashes of the same secret are identical, want unique salts")
	}
}

func TestVerifySecret_MalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not phc", "plaintext"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA"},
		{"truncated", "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := VerifySecret("secret", tt.hash); err == nil {
				t.Error("VerifySecret() accepted malformed hash")
			}
		})
	}
}

func TestNewSecret(t *testing.T) {
	first := NewSecret()
	second := NewSecret()

	if len(first) != secretLength {
		t.Errorf("len(secret) = %d, want %d", len(first), secretLength)
	}
	if first == second {
		t.Error("two generated secrets are identical")
	}
}
