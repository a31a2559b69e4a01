package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgAuth "github.com/angelmondragon/certify-backend/pkg/auth"
	"github.com/angelmondragon/certify-backend/pkg/config"
	"github.com/angelmondragon/certify-backend/pkg/db/models"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/certify-backend/pkg/errors"
	"github.com/angelmondragon/certify-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var testJWTConfig = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "certify",
	ExpirationMinutes: 30,
}

func TestServiceLoginMintsRoleClaim(t *testing.T) {
	password := "admin-secret"
	user := &models.User{
		ID:           uuid.New(),
		Email:        "admin@example.com",
		PasswordHash: mustHashPassword(t, password),
		FirstName:    "Ada",
		LastName:     "Admin",
		IsActive:     true,
		SystemRole:   "admin",
	}

	svc, repo, sessions := buildTestService(t, user)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "  ADMIN@example.com ", Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.SystemRoleAdmin {
		t.Fatalf("expected admin role claim, got %s", claims.Role)
	}
	if claims.Email != user.Email {
		t.Fatalf("expected email claim %q, got %q", user.Email, claims.Email)
	}
	if resp.RefreshToken != "refresh-token" {
		t.Fatalf("unexpected refresh token %q", resp.RefreshToken)
	}
	if sessions.lastAccessID != claims.ID {
		t.Fatalf("session keyed by %q, token jti %q", sessions.lastAccessID, claims.ID)
	}
	if repo.lastLogin.IsZero() {
		t.Fatal("expected last login to be recorded")
	}
	if resp.User == nil || resp.User.LastLoginAt == nil {
		t.Fatal("expected user dto with last login")
	}
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: mustHashPassword(t, "right-password"),
		IsActive:     true,
		SystemRole:   "user",
	}
	svc, _, _ := buildTestService(t, user)

	cases := []LoginRequest{
		{Email: user.Email, Password: "wrong-password"},
		{Email: "missing@example.com", Password: "right-password"},
		{Email: "   ", Password: "right-password"},
	}
	for _, req := range cases {
		_, err := svc.Login(context.Background(), req)
		if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %+v, got %v", req, err)
		}
	}
}

func TestServiceLoginRejectsInactiveUser(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "gone@example.com",
		PasswordHash: mustHashPassword(t, "password123"),
		IsActive:     false,
		SystemRole:   "user",
	}
	svc, _, _ := buildTestService(t, user)

	_, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "password123"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestServiceLoginSessionFailure(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: mustHashPassword(t, "password123"),
		IsActive:     true,
		SystemRole:   "user",
	}
	svc, _, sessions := buildTestService(t, user)
	sessions.err = errors.New("redis down")

	_, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "password123"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error without repo")
	}
	if _, err := NewService(ServiceParams{UserRepo: &stubUserRepo{}}); err == nil {
		t.Fatal("expected error without session manager")
	}
}

func buildTestService(t *testing.T, user *models.User) (Service, *stubUserRepo, *stubSessionManager) {
	t.Helper()
	repo := &stubUserRepo{user: user}
	sessions := &stubSessionManager{refreshToken: "refresh-token"}
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: sessions,
		JWTConfig:      testJWTConfig,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, repo, sessions
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

type stubUserRepo struct {
	user      *models.User
	lastLogin time.Time
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.lastLogin = at
	return nil
}

type stubSessionManager struct {
	refreshToken string
	lastAccessID string
	err          error
}

func (s *stubSessionManager) Generate(ctx context.Context, accessID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.lastAccessID = accessID
	return s.refreshToken, nil
}
