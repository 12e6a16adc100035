package auth

import (
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
		{"lowercase scheme", "bearer abc123", "abc123", false},
		{"empty header", "", "", true},
		{"missing token", "Bearer ", "", true},
		{"wrong scheme", "Basic abc123", "", true},
		{"no scheme", "abc123", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractToken(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for header %q", tt.header)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	jwtAuth, err := NewLocalJWTAuth("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("failed to create auth: %v", err)
	}

	token, err := jwtAuth.GenerateAccessToken("u1", "u1@example.com", "user")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	user, err := jwtAuth.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("failed to verify token: %v", err)
	}
	if user.ID != "u1" || user.Email != "u1@example.com" || user.Role != "user" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewLocalJWTAuth("secret-a", time.Minute)
	verifier, _ := NewLocalJWTAuth("secret-b", time.Minute)

	token, err := issuer.GenerateAccessToken("u1", "u1@example.com", "user")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := verifier.VerifyAccessToken(token); err == nil {
		t.Error("expected verification failure with wrong secret")
	}
}

func TestNewLocalJWTAuthRequiresSecret(t *testing.T) {
	if _, err := NewLocalJWTAuth("", time.Minute); err == nil {
		t.Error("expected error for empty secret")
	}
}
