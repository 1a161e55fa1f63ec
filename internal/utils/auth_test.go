package utils

import (
	"regexp"
	"testing"

	"github.com/proyeccion-moden/modengo/internal/models"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !CheckPasswordHash("correct horse battery staple", hash) {
		t.Error("Expected the original password to verify")
	}
	if CheckPasswordHash("wrong password", hash) {
		t.Error("Expected a wrong password to be rejected")
	}
}

func TestGenerateAndValidateTokens(t *testing.T) {
	user := &models.UserAuth{
		ID:    "00000000-0000-0000-0000-000000000001",
		Email: "op@example.com",
		Role:  models.RoleSupervisor,
	}

	access, refresh, err := GenerateTokens(user, "test-secret")
	if err != nil {
		t.Fatalf("GenerateTokens failed: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("Expected non-empty tokens")
	}

	claims, err := ValidateToken(access, "test-secret")
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims["id"] != user.ID {
		t.Errorf("Expected id claim %q, got %v", user.ID, claims["id"])
	}
	if claims["role"] != string(models.RoleSupervisor) {
		t.Errorf("Expected role claim %q, got %v", models.RoleSupervisor, claims["role"])
	}

	if _, err := ValidateToken(access, "other-secret"); err == nil {
		t.Error("Expected validation with the wrong secret to fail")
	}
	if _, err := ValidateToken("not-a-token", "test-secret"); err == nil {
		t.Error("Expected garbage input to fail validation")
	}
}

func TestGenerateDeviceToken(t *testing.T) {
	token, err := GenerateDeviceToken()
	if err != nil {
		t.Fatalf("GenerateDeviceToken failed: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(token))
	}

	other, _ := GenerateDeviceToken()
	if token == other {
		t.Error("Two tokens must not collide")
	}
}

func TestHashDeviceTokenIsStable(t *testing.T) {
	a := HashDeviceToken("some-token")
	b := HashDeviceToken("some-token")
	if a != b {
		t.Error("Hashing must be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("Expected a 64-character SHA-256 hex digest, got %d", len(a))
	}
	if a == HashDeviceToken("other-token") {
		t.Error("Distinct tokens must hash differently")
	}
}

func TestGeneratePairingCodeFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{6}$`)
	for i := 0; i < 20; i++ {
		code, err := GeneratePairingCode()
		if err != nil {
			t.Fatalf("GeneratePairingCode failed: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Errorf("Expected 6 uppercase hex characters, got %q", code)
		}
	}
}
