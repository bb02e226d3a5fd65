package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestPasswordHashRoundtrip(t *testing.T) {
	hash, err := HashPassword("hunter2!")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}
	if err := VerifyPassword(hash, "hunter2!"); err != nil {
		t.Fatalf("VerifyPassword rejected the right password: %v", err)
	}
	if err := VerifyPassword(hash, "hunter3!"); err == nil {
		t.Fatal("VerifyPassword accepted the wrong password")
	}
}

func TestPasswordHashesAreSalted(t *testing.T) {
	a, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	b, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestPasswordValidation(t *testing.T) {
	if _, err := HashPassword(""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty password, got %v", err)
	}
	if err := VerifyPassword("", "x"); err == nil {
		t.Fatal("expected error for empty hash")
	}
	if err := VerifyPassword("$bcrypt$not-argon", "x"); err == nil {
		t.Fatal("expected error for foreign hash format")
	}
}
