package auth

import (
	"strings"
	"testing"
	"time"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid bearer", "Bearer abc123", "abc123", false},
		{"case insensitive scheme", "bearer abc123", "abc123", false},
		{"empty header", "", "", true},
		{"missing scheme", "abc123", "", true},
		{"empty token", "Bearer ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractToken(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestVerifyAccessToken(t *testing.T) {
	jwtAuth, err := NewJWTAuth("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewJWTAuth failed: %v", err)
	}

	token, err := jwtAuth.GenerateAccessToken("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	user, err := jwtAuth.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("Expected user-1, got %s", user.ID)
	}
	if user.Email != "user@example.com" {
		t.Errorf("Unexpected email: %s", user.Email)
	}
}

func TestVerifyAccessTokenRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewJWTAuth("secret-a", time.Minute)
	verifier, _ := NewJWTAuth("secret-b", time.Minute)

	token, err := issuer.GenerateAccessToken("user-1", "")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := verifier.VerifyAccessToken(token); err == nil {
		t.Error("Expected verification to fail with a different secret")
	}
}

func TestVerifyAccessTokenRejectsExpired(t *testing.T) {
	jwtAuth, _ := NewJWTAuth("test-secret", -time.Minute)

	token, err := jwtAuth.GenerateAccessToken("user-1", "")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	_, err = jwtAuth.VerifyAccessToken(token)
	if err == nil || !strings.Contains(err.Error(), "invalid token") {
		t.Errorf("Expected expiry error, got %v", err)
	}
}
