package security

import (
	"strings"
	"testing"
	"time"
)

func TestUserTokenRoundTrip(t *testing.T) {
	token, errGen := GenerateToken("secret", "u1", "u1@example.com", time.Hour)
	if errGen != nil {
		t.Fatalf("generate token: %v", errGen)
	}

	claims, errParse := ParseToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse token: %v", errParse)
	}
	if claims.UserID != "u1" || claims.Email != "u1@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, errGen := GenerateToken("secret", "u1", "", time.Hour)
	if errGen != nil {
		t.Fatalf("generate token: %v", errGen)
	}
	if _, errParse := ParseToken("other", token); errParse != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, errGen := GenerateToken("secret", "u1", "", -time.Minute)
	if errGen != nil {
		t.Fatalf("generate token: %v", errGen)
	}
	if _, errParse := ParseToken("secret", token); errParse != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", errParse)
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	token, errGen := GenerateAdminToken("secret", "ops", time.Hour)
	if errGen != nil {
		t.Fatalf("generate admin token: %v", errGen)
	}
	claims, errParse := ParseAdminToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse admin token: %v", errParse)
	}
	if claims.AdminID != "ops" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// A user token must not pass the admin parser with a different secret.
	if _, errCross := ParseAdminToken("other", token); errCross != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", errCross)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, errHash := HashPassword("hunter2")
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	if !CheckPassword(hash, "hunter2") {
		t.Fatalf("valid password rejected")
	}
	if CheckPassword(hash, "hunter3") {
		t.Fatalf("invalid password accepted")
	}
}

func TestGenerateWebhookSecret(t *testing.T) {
	secret, errGen := GenerateWebhookSecret()
	if errGen != nil {
		t.Fatalf("generate webhook secret: %v", errGen)
	}
	if !strings.HasPrefix(secret, "whsec_") || len(secret) != len("whsec_")+64 {
		t.Fatalf("unexpected secret shape: %q", secret)
	}
}
