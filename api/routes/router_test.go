package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/certify-backend/internal/auth"
	"github.com/angelmondragon/certify-backend/internal/certificates"
	"github.com/angelmondragon/certify-backend/internal/users"
	pkgAuth "github.com/angelmondragon/certify-backend/pkg/auth"
	"github.com/angelmondragon/certify-backend/pkg/auth/session"
	"github.com/angelmondragon/certify-backend/pkg/config"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	"github.com/angelmondragon/certify-backend/pkg/logger"
	"github.com/angelmondragon/certify-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/certify-backend/pkg/redis"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubAuthService struct{}

func (stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

type stubRegisterService struct{}

func (stubRegisterService) Register(ctx context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
	return nil, fmt.Errorf("not implemented")
}

type stubRoles struct {
	assigned string
}

func (s *stubRoles) AssignRole(ctx context.Context, actorID, userID uuid.UUID, role string) (*users.UserDTO, error) {
	s.assigned = role
	return &users.UserDTO{ID: userID, SystemRole: role}, nil
}

type stubSessionManager struct{}

func (stubSessionManager) HasSession(ctx context.Context, accessID string) (bool, error) {
	return true, nil
}

func (stubSessionManager) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error) {
	return "", "", nil
}

func (stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	return nil
}

// stubCertificates answers every call with an empty success so routing and
// middleware decisions are what the tests observe.
type stubCertificates struct {
	calls []string
}

func (s *stubCertificates) record(name string) { s.calls = append(s.calls, name) }

func (s *stubCertificates) Issue(ctx context.Context, actor certificates.Actor, input certificates.IssueInput) (*certificates.CertificateDTO, error) {
	s.record("issue")
	return &certificates.CertificateDTO{}, nil
}

func (s *stubCertificates) FindByIdentifier(ctx context.Context, identifier string) (*certificates.CertificateDTO, error) {
	s.record("find")
	return &certificates.CertificateDTO{}, nil
}

func (s *stubCertificates) Verify(ctx context.Context, identifier string, meta certificates.AttemptMeta) (*certificates.VerifyResult, error) {
	s.record("verify")
	return &certificates.VerifyResult{IsValid: true}, nil
}

func (s *stubCertificates) Revoke(ctx context.Context, actor certificates.Actor, id uuid.UUID, reason *string) (*certificates.CertificateDTO, error) {
	s.record("revoke")
	return &certificates.CertificateDTO{}, nil
}

func (s *stubCertificates) Update(ctx context.Context, actor certificates.Actor, id uuid.UUID, input certificates.UpdateInput) (*certificates.CertificateDTO, error) {
	s.record("update")
	return &certificates.CertificateDTO{}, nil
}

func (s *stubCertificates) Delete(ctx context.Context, actor certificates.Actor, id uuid.UUID) error {
	s.record("delete")
	return nil
}

func (s *stubCertificates) Get(ctx context.Context, viewer *certificates.Actor, id uuid.UUID) (*certificates.CertificateDTO, error) {
	s.record("get")
	return &certificates.CertificateDTO{}, nil
}

func (s *stubCertificates) List(ctx context.Context, viewer *certificates.Actor, params certificates.ListParams) (*certificates.ListResult, error) {
	s.record("list")
	return &certificates.ListResult{Items: []certificates.CertificateDTO{}}, nil
}

func (s *stubCertificates) ListByRecipient(ctx context.Context, viewer certificates.Actor, email string, params certificates.ListParams) (*certificates.ListResult, error) {
	s.record("recipient")
	return &certificates.ListResult{Items: []certificates.CertificateDTO{}}, nil
}

func (s *stubCertificates) History(ctx context.Context, actor certificates.Actor, id uuid.UUID, limit int) ([]certificates.VerificationDTO, error) {
	s.record("history")
	return nil, nil
}

// memoryRedis is an in-process stand-in for the Redis surface the router uses.
type memoryRedis struct {
	data   map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	return m.data[key], nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, window time.Duration) (pkgredis.WindowDecision, error) {
	m.counts[scope]++
	count := m.counts[scope]
	return pkgredis.WindowDecision{Allowed: count <= limit, Count: count, ResetIn: window}, nil
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "certify",
			ExpirationMinutes: 5,
		},
		VerifyRateLimit: config.VerifyRateLimitConfig{Window: time.Minute, IPLimit: 2},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func newTestRouter(cfg *config.Config, svc *stubCertificates, store RedisStore) http.Handler {
	return NewRouter(
		cfg,
		testLogger(),
		stubPinger{},
		store,
		stubSessionManager{},
		stubAuthService{},
		stubRegisterService{},
		&stubRoles{},
		svc,
		Observability{},
	)
}

func buildToken(t *testing.T, cfg *config.Config, role enums.SystemRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  "someone@example.com",
		Role:   role,
		JTI:    session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(testConfig(), &stubCertificates{}, nil)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestReadyReportsFailingDatabase(t *testing.T) {
	router := NewRouter(testConfig(), testLogger(), stubPinger{err: fmt.Errorf("down")}, nil, stubSessionManager{}, stubAuthService{}, stubRegisterService{}, &stubRoles{}, &stubCertificates{}, Observability{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestPublicCertificateRoutesAllowAnonymous(t *testing.T) {
	svc := &stubCertificates{}
	router := newTestRouter(testConfig(), svc, nil)

	paths := []string{
		"/api/v1/certificates",
		"/api/v1/certificates/verify/ABC12345",
		"/api/v1/certificates/" + uuid.NewString(),
	}
	for _, path := range paths {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
	if strings.Join(svc.calls, ",") != "list,verify,get" {
		t.Fatalf("unexpected call order %v", svc.calls)
	}
}

func TestProtectedCertificateRoutesRejectMissingJWT(t *testing.T) {
	svc := &stubCertificates{}
	router := newTestRouter(testConfig(), svc, nil)
	id := uuid.NewString()

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/certificates"},
		{http.MethodPatch, "/api/v1/certificates/" + id},
		{http.MethodPost, "/api/v1/certificates/" + id + "/revoke"},
		{http.MethodGet, "/api/v1/certificates/" + id + "/verifications"},
		{http.MethodGet, "/api/v1/certificates/recipient/jane@example.com"},
		{http.MethodDelete, "/api/v1/certificates/" + id},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(tc.method, tc.path, nil))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 got %d", tc.method, tc.path, resp.Code)
		}
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service should not be reached, got %v", svc.calls)
	}
}

func TestDeleteRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	svc := &stubCertificates{}
	router := newTestRouter(cfg, svc, nil)
	path := "/api/v1/certificates/" + uuid.NewString()

	req := httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.SystemRoleUser))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.SystemRoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestVerifyIsRateLimitedPerIP(t *testing.T) {
	svc := &stubCertificates{}
	router := newTestRouter(testConfig(), svc, newMemoryRedis())

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates/verify/ABC12345", nil)
		req.RemoteAddr = "198.51.100.4:1234"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if len(svc.calls) != 2 {
		t.Fatalf("expected two verify calls got %d", len(svc.calls))
	}
}

func TestIssueRequiresIssuerOrAdminRole(t *testing.T) {
	cfg := testConfig()
	svc := &stubCertificates{}
	router := newTestRouter(cfg, svc, nil)
	body := `{"certificate_id":"FORGED01","title":"Go Workshop","recipient":{"name":"Jane","email":"jane@example.com"},"issuer":{"name":"Prof","organization":"Org Inc"}}`

	cases := []struct {
		role enums.SystemRole
		want int
	}{
		{enums.SystemRoleUser, http.StatusForbidden},
		{enums.SystemRoleIssuer, http.StatusCreated},
		{enums.SystemRoleAdmin, http.StatusCreated},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, tc.role))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.role, tc.want, resp.Code)
		}
	}
	if len(svc.calls) != 2 {
		t.Fatalf("expected only issuer and admin to reach the service, got %v", svc.calls)
	}
}

func TestAssignRoleIsAdminOnly(t *testing.T) {
	cfg := testConfig()
	svc := &stubCertificates{}
	roles := &stubRoles{}
	router := NewRouter(cfg, testLogger(), stubPinger{}, nil, stubSessionManager{}, stubAuthService{}, stubRegisterService{}, roles, svc, Observability{})
	path := "/api/v1/users/" + uuid.NewString() + "/role"

	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(`{"role":"issuer"}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.SystemRoleIssuer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for issuer got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPut, path, strings.NewReader(`{"role":"issuer"}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.SystemRoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
	if roles.assigned != "issuer" {
		t.Fatalf("expected issuer assignment got %q", roles.assigned)
	}
}

func TestIssueRequiresIdempotencyKeyWhenStoreConfigured(t *testing.T) {
	cfg := testConfig()
	svc := &stubCertificates{}
	router := newTestRouter(cfg, svc, newMemoryRedis())
	token := buildToken(t, cfg, enums.SystemRoleIssuer)
	body := `{"certificate_id":"ABC12345","title":"Go Workshop","recipient":{"name":"Jane","email":"jane@example.com"},"issuer":{"name":"Prof","organization":"Uni"}}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/certificates", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key got %d", resp.Code)
	}

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/certificates", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "issue-1")
		resp = httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d", i, resp.Code)
		}
	}
	if len(svc.calls) != 1 {
		t.Fatalf("expected replay to skip the service, got %v", svc.calls)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := Observability{
		HTTP:    metrics.NewHTTPMetrics(reg),
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	router := NewRouter(testConfig(), testLogger(), stubPinger{}, nil, stubSessionManager{}, stubAuthService{}, stubRegisterService{}, &stubRoles{}, &stubCertificates{}, obs)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `http_requests_total{method="GET",route="/health/live",status="200"} 1`) {
		t.Fatalf("expected request counter in exposition, got:\n%s", resp.Body.String())
	}
}
