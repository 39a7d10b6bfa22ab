package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "this-is-a-very-long-jwt-secret-for-testing-32+"

func TestJWTManager_GenerateAndValidate_Success(t *testing.T) {
	t.Parallel()
	manager := NewJWTManager(testSecret, "docflow", time.Hour)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	validatedID, err := manager.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if validatedID != userID {
		t.Errorf("expected userID %v, got %v", userID, validatedID)
	}
}

func TestJWTManager_ValidateToken_Expired(t *testing.T) {
	t.Parallel()
	manager := NewJWTManager(testSecret, "docflow", -time.Hour)

	token, err := manager.GenerateAccessToken(uuid.New())
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := manager.ValidateToken(context.Background(), token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestJWTManager_ValidateToken_InvalidSignature(t *testing.T) {
	t.Parallel()
	manager1 := NewJWTManager(testSecret, "docflow", time.Hour)
	manager2 := NewJWTManager(strings.Repeat("x", 40), "docflow", time.Hour)

	token, err := manager1.GenerateAccessToken(uuid.New())
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := manager2.ValidateToken(context.Background(), token); err == nil {
		t.Error("expected error for token signed with another secret")
	}
}

func TestJWTManager_ValidateToken_Malformed(t *testing.T) {
	t.Parallel()
	manager := NewJWTManager(testSecret, "docflow", time.Hour)

	for _, token := range []string{"", "not-a-jwt", "a.b.c", "Bearer x"} {
		if _, err := manager.ValidateToken(context.Background(), token); err == nil {
			t.Errorf("expected error for %q", token)
		}
	}
}

func TestJWTManager_ValidateToken_WrongIssuer(t *testing.T) {
	t.Parallel()
	manager1 := NewJWTManager(testSecret, "identity-a", time.Hour)
	manager2 := NewJWTManager(testSecret, "identity-b", time.Hour)

	token, err := manager1.GenerateAccessToken(uuid.New())
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := manager2.ValidateToken(context.Background(), token); err == nil {
		t.Error("expected error for wrong issuer")
	}
}

func TestJWTManager_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()
	manager := NewJWTManager(testSecret, "docflow", time.Hour)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: uuid.New().String(),
		Issuer:  "docflow",
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := manager.ValidateToken(context.Background(), token); err == nil {
		t.Error("expected error for alg none")
	}
}

func TestJWTManager_ValidateToken_BadSubject(t *testing.T) {
	t.Parallel()
	manager := NewJWTManager(testSecret, "docflow", time.Hour)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		Issuer:    "docflow",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := manager.ValidateToken(context.Background(), token); err == nil {
		t.Error("expected error for non-UUID subject")
	}
}
