package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/taskboard/taskboard/internal/auth"
	"github.com/taskboard/taskboard/internal/cache"
	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/handler"
	"github.com/taskboard/taskboard/internal/handler/dto"
	"github.com/taskboard/taskboard/internal/metrics"
	"github.com/taskboard/taskboard/internal/middleware"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/service"
	"github.com/taskboard/taskboard/internal/testutil/memstore"
)

var cheapParams = auth.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type stack struct {
	store    *memstore.Store
	recorder *metrics.InMemoryRecorder
	server   *httptest.Server
}

func newStack(t *testing.T, tokens *auth.TokenIssuer) *stack {
	t.Helper()
	return newStackWith(t, tokens, nil)
}

// newStackWith builds a stack, letting adjust change the routes first.
func newStackWith(t *testing.T, tokens *auth.TokenIssuer, adjust func(*routes)) *stack {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	recorder := metrics.NewInMemory()

	keyCfg := service.KeyServiceConfig{
		Store: store,
		Generate: func(env string) (*auth.GeneratedKey, error) {
			return auth.GenerateAPIKeyWithParams(env, cheapParams)
		},
		KeyEnv: auth.EnvTest,
		Logger: logger,
	}
	authCfg := middleware.AuthConfig{Logger: logger, Keys: store, Metrics: recorder}
	if tokens != nil {
		keyCfg.Tokens = tokens
		authCfg.Tokens = tokens
	}

	rt := routes{
		fallback:      handler.New(),
		health:        handler.NewHealthHandler(nil, nil, logger),
		metrics:       handler.NewMetricsHandler(recorder),
		tasks:         handler.NewTaskHandler(service.NewTaskService(store, recorder), logger),
		users:         handler.NewUserHandler(service.NewUserService(store, 2, recorder), "http://testserver", logger),
		apiKeys:       handler.NewAPIKeyHandler(service.NewKeyService(keyCfg), logger),
		auth:          authCfg,
		rateLimit:     middleware.RateLimitConfig{Logger: logger, Enabled: false},
		security:      middleware.SecurityConfig{IsDevelopment: true},
		cors:          middleware.DefaultCORSConfig(),
		maxBodySize:   1 << 20,
		tokensEnabled: tokens != nil,
	}
	if adjust != nil {
		adjust(&rt)
	}

	srv := httptest.NewServer(setupRouter(rt, logger))
	t.Cleanup(srv.Close)

	return &stack{store: store, recorder: recorder, server: srv}
}

// issueKey stores a key for user and returns the plaintext credential.
func (s *stack) issueKey(t *testing.T, user *model.User, scopes ...string) string {
	t.Helper()

	generated, err := auth.GenerateAPIKeyWithParams(auth.EnvTest, cheapParams)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	err = s.store.CreateAPIKey(context.Background(), &model.APIKey{
		ID:            "key-" + user.Username,
		UserID:        user.ID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        scopes,
		RateLimitTier: model.TierFree,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("store key: %v", err)
	}
	return generated.Plaintext
}

func (s *stack) call(t *testing.T, method, path, body, credential string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestScenario_BasicUserTasksForToday(t *testing.T) {
	t.Parallel()

	s := newStack(t, nil)
	basic := s.store.AddUser("basic")
	key := s.issueKey(t, basic, model.ScopeRead, model.ScopeWrite)

	today := civil.DateOf(time.Now())
	payload := `{"title":"test","body":"This is a test task","completed":false,"due":"` + today.String() + `"}`

	resp, body := s.call(t, http.MethodPost, "/api/v1/tasks/", payload, key)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", resp.StatusCode, body)
	}
	location := resp.Header.Get("Location")

	resp, body = s.call(t, http.MethodGet, "/api/v1/tasks/", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var tasks []dto.TaskResponse
	if err := json.Unmarshal(body, &tasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks for today, want 1", len(tasks))
	}
	got := tasks[0]
	if got.Title != "test" || got.Body != "This is a test task" || got.Completed || got.Owner != "basic" {
		t.Errorf("task = %+v", got)
	}
	if got.Due == nil || *got.Due != today {
		t.Errorf("due = %v, want %v", got.Due, today)
	}

	resp, body = s.call(t, http.MethodGet, "/api/v1/tasks/?date="+today.AddDays(-1).String(), "", "")
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("yesterday: status = %d, body = %s", resp.StatusCode, body)
	}

	// the Location header names the created task
	resp, body = s.call(t, http.MethodGet, location, "", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"owner":"basic"`) {
		t.Errorf("GET %s: status = %d, body = %s", location, resp.StatusCode, body)
	}
}

func TestScenario_OwnershipAcrossTheStack(t *testing.T) {
	t.Parallel()

	s := newStack(t, nil)
	owner := s.store.AddUser("owner")
	other := s.store.AddUser("other")
	ownerKey := s.issueKey(t, owner, model.ScopeWrite)
	otherKey := s.issueKey(t, other, model.ScopeWrite)

	resp, body := s.call(t, http.MethodPost, "/api/v1/tasks", `{"title":"mine"}`, ownerKey)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", resp.StatusCode, body)
	}
	path := resp.Header.Get("Location")

	tests := []struct {
		name       string
		method     string
		credential string
		wantStatus int
	}{
		{"anonymous put", http.MethodPut, "", http.StatusForbidden},
		{"other put", http.MethodPut, otherKey, http.StatusForbidden},
		{"bad credential put", http.MethodPut, "tk_test_ffffff_ffffffffffffffffffffffffffffffff", http.StatusForbidden},
		{"anonymous delete", http.MethodDelete, "", http.StatusForbidden},
		{"other delete", http.MethodDelete, otherKey, http.StatusForbidden},
		{"owner put", http.MethodPut, ownerKey, http.StatusOK},
		{"owner delete", http.MethodDelete, ownerKey, http.StatusNoContent},
		{"gone", http.MethodGet, ownerKey, http.StatusNotFound},
	}

	for _, tt := range tests {
		resp, body := s.call(t, tt.method, path, `{"title":"changed"}`, tt.credential)
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d, body = %s", tt.name, resp.StatusCode, tt.wantStatus, body)
		}
	}

	if s.recorder.Snapshot().AuthFailures != 1 {
		t.Errorf("AuthFailures = %d, want 1", s.recorder.Snapshot().AuthFailures)
	}
}

func TestScenario_InvalidDateForAnyCaller(t *testing.T) {
	t.Parallel()

	s := newStack(t, nil)
	user := s.store.AddUser("someone")
	key := s.issueKey(t, user, model.ScopeRead)

	for _, credential := range []string{"", key} {
		resp, body := s.call(t, http.MethodGet, "/api/v1/tasks/?date=2019-13-01", "", credential)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
		var msg string
		if err := json.Unmarshal(body, &msg); err != nil || !strings.HasPrefix(msg, "Invalid date") {
			t.Errorf("body = %s", body)
		}
	}
}

func TestScenario_UsersAndKeys(t *testing.T) {
	t.Parallel()

	s := newStack(t, nil)
	admin := s.store.AddUser("admin")
	key := s.issueKey(t, admin, model.ScopeRead, model.ScopeWrite)

	if resp, _ := s.call(t, http.MethodPost, "/api/v1/users/", `{"username":"newbie"}`, ""); resp.StatusCode != http.StatusForbidden {
		t.Errorf("anonymous user create status = %d, want 403", resp.StatusCode)
	}
	if resp, body := s.call(t, http.MethodPost, "/api/v1/users/", `{"username":"newbie"}`, key); resp.StatusCode != http.StatusCreated {
		t.Errorf("user create status = %d, body = %s", resp.StatusCode, body)
	}
	s.store.AddUser("third")

	resp, body := s.call(t, http.MethodGet, "/api/v1/users/", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("user list status = %d", resp.StatusCode)
	}
	var page dto.UserPageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Count != 3 || len(page.Results) != 2 || page.Next == nil || *page.Next != "http://testserver/api/v1/users/?page=2" {
		t.Errorf("page = %s", body)
	}

	if resp, _ := s.call(t, http.MethodGet, "/api/v1/users/?page=9", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("out of range page status = %d, want 404", resp.StatusCode)
	}

	if resp, _ := s.call(t, http.MethodGet, "/api/v1/api-keys/", "", ""); resp.StatusCode != http.StatusForbidden {
		t.Errorf("anonymous key list status = %d, want 403", resp.StatusCode)
	}
	if resp, _ := s.call(t, http.MethodGet, "/api/v1/api-keys/", "", key); resp.StatusCode != http.StatusOK {
		t.Errorf("key list status = %d, want 200", resp.StatusCode)
	}
	if resp, _ := s.call(t, http.MethodPost, "/api/v1/auth/token", "", key); resp.StatusCode != http.StatusNotFound {
		t.Errorf("token route without JWT_SECRET status = %d, want 404", resp.StatusCode)
	}
}

func TestScenario_BearerTokens(t *testing.T) {
	t.Parallel()

	s := newStack(t, auth.NewTokenIssuer("test-secret-with-enough-length!!", time.Minute))
	user := s.store.AddUser("tokenuser")
	key := s.issueKey(t, user, model.ScopeRead, model.ScopeWrite)

	resp, body := s.call(t, http.MethodPost, "/api/v1/auth/token/", "", key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d, body = %s", resp.StatusCode, body)
	}
	var token dto.TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		t.Fatalf("decode token: %v", err)
	}

	resp, body = s.call(t, http.MethodPost, "/api/v1/tasks/", `{"title":"via jwt"}`, token.AccessToken)
	if resp.StatusCode != http.StatusCreated || !strings.Contains(string(body), `"owner":"tokenuser"`) {
		t.Errorf("create with token: status = %d, body = %s", resp.StatusCode, body)
	}

	if resp, _ := s.call(t, http.MethodPost, "/api/v1/auth/token", "", token.AccessToken); resp.StatusCode != http.StatusForbidden {
		t.Errorf("token exchange with a token: status = %d, want 403", resp.StatusCode)
	}

	if resp, body := s.call(t, http.MethodDelete, "/api/v1/api-keys/key-tokenuser/", "", key); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status = %d, body = %s", resp.StatusCode, body)
	}
	resp, body = s.call(t, http.MethodPost, "/api/v1/tasks/", `{"title":"after revoke"}`, token.AccessToken)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("create with token of revoked key: status = %d, body = %s", resp.StatusCode, body)
	}
}

type recordingLimiter struct {
	mu  sync.Mutex
	ips []string
}

func (l *recordingLimiter) CheckCallerRateLimit(ctx context.Context, keyID string, userID int64, ratePerMinute, burst int) (*cache.RateLimitResult, error) {
	return &cache.RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now().Add(time.Minute)}, nil
}

func (l *recordingLimiter) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error) {
	l.mu.Lock()
	l.ips = append(l.ips, ip)
	l.mu.Unlock()
	return &cache.RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now().Add(time.Second)}, nil
}

func TestScenario_ForwardedForNeedsTrustedProxy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		trustProxy bool
		wantIP     string
	}{
		{"direct connection", false, "127.0.0.1"},
		{"behind trusted proxy", true, "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			limiter := &recordingLimiter{}
			s := newStackWith(t, nil, func(rt *routes) {
				rt.trustProxy = tt.trustProxy
				rt.rateLimit = middleware.RateLimitConfig{
					Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
					Limiter:   limiter,
					Enabled:   true,
					AnonRPS:   10,
					AnonBurst: 20,
				}
			})

			req, err := http.NewRequest(http.MethodGet, s.server.URL+"/api/v1/tasks/", nil)
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			req.Header.Set("X-Forwarded-For", "203.0.113.9")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()

			limiter.mu.Lock()
			defer limiter.mu.Unlock()
			if len(limiter.ips) != 1 || limiter.ips[0] != tt.wantIP {
				t.Errorf("limited addresses = %v, want [%s]", limiter.ips, tt.wantIP)
			}
		})
	}
}

func TestScenario_OperationalEndpoints(t *testing.T) {
	t.Parallel()

	s := newStack(t, nil)

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/readyz", http.StatusOK, "not configured"},
		{"/metrics", http.StatusOK, "taskboard_tasks_created_total 0"},
		{"/api/v1/unknown/", http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		resp, body := s.call(t, http.MethodGet, tt.path, "", "")
		if resp.StatusCode != tt.wantStatus || !strings.Contains(string(body), tt.wantBody) {
			t.Errorf("%s: status = %d, body = %s", tt.path, resp.StatusCode, body)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Errorf("%s: missing X-Request-ID", tt.path)
		}
	}
}

func TestScenario_BodyTooLarge(t *testing.T) {
	t.Parallel()

	s := newStack(t, nil)
	user := s.store.AddUser("big")
	key := s.issueKey(t, user, model.ScopeWrite)

	huge := `{"body":"` + strings.Repeat("x", 2<<20) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/", strings.NewReader(huge))
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()
	s.server.Config.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if s.store.TaskCount() != 0 {
		t.Error("oversized request stored a task")
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitLogger_File(t *testing.T) {
	path := t.TempDir() + "/logs/taskboard.log"

	logger, closer, err := initLogger(&config.Config{LogFile: path, LogFormat: "json", LogLevel: "info"})
	if err != nil {
		t.Fatalf("initLogger() error = %v", err)
	}
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil))) })
	if closer == nil {
		t.Fatal("expected a closer for the log file")
	}

	logger.Info("task_created", "task_id", 1)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRedaction(t *testing.T) {
	t.Parallel()

	dsn := "postgres://tasks:s3cret@db:5432/tasks"
	if got := redactURL(dsn); strings.Contains(got, "s3cret") {
		t.Errorf("redactURL() = %q", got)
	}

	err := errors.New("dial " + dsn + " failed; password=hunter2")
	got := sanitizeError(err, dsn)
	if strings.Contains(got, "s3cret") || strings.Contains(got, "hunter2") {
		t.Errorf("sanitizeError() = %q", got)
	}
	if sanitizeError(nil) != "" {
		t.Error("sanitizeError(nil) should be empty")
	}
}
