package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner("test-secret", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestIssueAndParse(t *testing.T) {
	s := newSigner(t)
	pair, err := s.Issue(Identity{UserID: "7", Email: "root@brd.in", Role: "master_admin", TenantID: "3"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := s.Parse(pair.Access, TokenAccess)
	if err != nil {
		t.Fatalf("Parse access: %v", err)
	}
	if claims.Subject != "7" || claims.Role != RoleMasterAdmin || claims.TenantID != "3" || claims.Email != "root@brd.in" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := s.Parse(pair.Refresh, TokenRefresh); err != nil {
		t.Fatalf("Parse refresh: %v", err)
	}
	if _, err := s.Parse(pair.Refresh, TokenAccess); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestParseRejects(t *testing.T) {
	s := newSigner(t)
	pair, err := s.Issue(Identity{UserID: "7", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, _ := NewSigner("other-secret", time.Minute, time.Hour)
	if _, err := other.Parse(pair.Access, TokenAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature accepted: %v", err)
	}
	if _, err := s.Parse("", TokenAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token accepted: %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := s.Parse(pair.Access, TokenAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestNewSignerFallsBackToEnv(t *testing.T) {
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
	t.Setenv(secretEnvVariable, "")
	if _, err := NewSigner("", time.Minute, time.Hour); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}

	ResetSecretForTests()
	t.Setenv(secretEnvVariable, "from-env")
	if _, err := NewSigner("", time.Minute, time.Hour); err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPasswordCost("Secret123", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPasswordCost: %v", err)
	}
	if err := VerifyPassword(hash, "Secret123"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password accepted: %v", err)
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("empty password hashed")
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("empty context has a principal")
	}
	ctx := ContextWithPrincipal(context.Background(), Principal{Identity{UserID: "9", Role: "LOAN_OFFICER"}})
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID != "9" {
		t.Fatalf("principal lost: %+v", p)
	}
	if p.IsAdmin() || !p.HasRole("loan_officer") {
		t.Fatalf("unexpected role checks for %s", p.Role)
	}
	if id, ok := UserIDFromContext(ctx); !ok || id != "9" {
		t.Fatalf("UserIDFromContext = %q %v", id, ok)
	}
}
