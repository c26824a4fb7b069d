package auth

import (
	"testing"
	"time"

	"github.com/zonewarden/server/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:     "test_jwt_secret_key_32_bytes_long!!",
			JWTExpiration: 15 * time.Minute,
			Issuer:        "zonewarden-server",
		},
	}
}

func TestJWTService_GenerateAccessToken(t *testing.T) {
	service := NewJWTService(testConfig())

	token, err := service.GenerateAccessToken(123, "planner", "editor")
	if err != nil {
		t.Fatalf("GenerateAccessToken() failed: %v", err)
	}

	if token == "" {
		t.Error("GenerateAccessToken() returned empty token")
	}

	claims, err := service.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() failed: %v", err)
	}

	if claims.UserID != 123 {
		t.Errorf("Expected UserID 123, got %d", claims.UserID)
	}

	if claims.Username != "planner" {
		t.Errorf("Expected Username 'planner', got %s", claims.Username)
	}

	if claims.Role != "editor" {
		t.Errorf("Expected Role 'editor', got %s", claims.Role)
	}

	if claims.Issuer != "zonewarden-server" {
		t.Errorf("Expected Issuer 'zonewarden-server', got %s", claims.Issuer)
	}
}

func TestJWTService_ValidateAccessToken_InvalidToken(t *testing.T) {
	service := NewJWTService(testConfig())

	_, err := service.ValidateAccessToken("invalid.token.here")
	if err == nil {
		t.Error("ValidateAccessToken() should fail for invalid token")
	}
}

func TestJWTService_ValidateAccessToken_Rejections(t *testing.T) {
	service := NewJWTService(testConfig())

	otherSecret := testConfig()
	otherSecret.Auth.JWTSecret = "a_completely_different_secret_value"
	forged, err := NewJWTService(otherSecret).GenerateAccessToken(1, "mallory", "admin")
	if err != nil {
		t.Fatalf("GenerateAccessToken() failed: %v", err)
	}

	otherIssuer := testConfig()
	otherIssuer.Auth.Issuer = "someone-else"
	foreign, err := NewJWTService(otherIssuer).GenerateAccessToken(1, "planner", "editor")
	if err != nil {
		t.Fatalf("GenerateAccessToken() failed: %v", err)
	}

	expiredCfg := testConfig()
	expiredCfg.Auth.JWTExpiration = -time.Minute
	expired, err := NewJWTService(expiredCfg).GenerateAccessToken(1, "planner", "editor")
	if err != nil {
		t.Fatalf("GenerateAccessToken() failed: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", forged},
		{"wrong issuer", foreign},
		{"expired", expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.ValidateAccessToken(tt.token); err == nil {
				t.Errorf("ValidateAccessToken() should reject a token with %s", tt.name)
			}
		})
	}
}

func TestJWTService_TokenExpiration(t *testing.T) {
	service := NewJWTService(testConfig())

	expiry := service.GetTokenExpiration()
	if expiry != 15*time.Minute {
		t.Errorf("Expected expiration 15m, got %v", expiry)
	}
}
