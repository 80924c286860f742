package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pageforge/api/internal/auth"
)

func TestRegisterReturnsTokenContract(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":        "  Avery@Example.COM ",
		"full_name":    "Avery Quinn",
		"password":     "s3cret-pass",
		"organization": "Acme",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeObject(t, rr)
	if payload["token_type"] != "bearer" {
		t.Fatalf("expected token_type bearer, got %v", payload["token_type"])
	}
	if token, _ := payload["access_token"].(string); token == "" {
		t.Fatalf("expected access_token")
	}
	if refresh, _ := payload["refresh_token"].(string); refresh == "" {
		t.Fatalf("expected refresh_token")
	}
	if expires, _ := payload["expires_in"].(float64); expires <= 0 {
		t.Fatalf("expected positive expires_in, got %v", payload["expires_in"])
	}
	user, _ := payload["user"].(map[string]any)
	if user["email"] != "avery@example.com" {
		t.Fatalf("expected normalized email, got %v", user["email"])
	}
	if user["role"] != "editor" {
		t.Fatalf("expected default role editor, got %v", user["role"])
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Fatalf("password hash must not be serialized")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "dup@example.com", "First")

	rr := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":     "DUP@example.com",
		"full_name": "Second",
		"password":  "another-pass",
	})

	expectError(t, rr, http.StatusBadRequest, "EMAIL_EXISTS")
}

func TestRegisterValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	cases := []map[string]any{
		{"email": "no-at-sign", "full_name": "X", "password": "s3cret-pass"},
		{"email": "short@example.com", "full_name": "X", "password": "123"},
		{"email": "noname@example.com", "full_name": "  ", "password": "s3cret-pass"},
		{"email": "role@example.com", "full_name": "X", "password": "s3cret-pass", "role": "owner"},
	}
	for _, body := range cases {
		rr := env.do(t, http.MethodPost, "/api/auth/register", "", body)
		expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
	}
}

func TestRegisterRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(`{"email":`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	env.handler.ServeHTTP(rr, req)

	expectError(t, rr, http.StatusBadRequest, "INVALID_BODY")
}

func TestLoginChecksPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "login@example.com", "Login User")

	rr := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "login@example.com",
		"password": "wrong-pass",
	})
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	rr = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "nobody@example.com",
		"password": "s3cret-pass",
	})
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	rr = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "LOGIN@example.com",
		"password": "s3cret-pass",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	user, _ := decodeObject(t, rr)["user"].(map[string]any)
	if user["last_login"] == nil {
		t.Fatalf("expected last_login to be stamped")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":     "rotate@example.com",
		"full_name": "Rotate",
		"password":  "s3cret-pass",
	})
	refresh, _ := decodeObject(t, rr)["refresh_token"].(string)

	rr = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refresh_token": refresh})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeObject(t, rr)
	next, _ := payload["refresh_token"].(string)
	if next == "" || next == refresh {
		t.Fatalf("expected a new refresh token")
	}
	access, _ := payload["access_token"].(string)
	if got := env.do(t, http.MethodGet, "/api/users/me", access, nil); got.Code != http.StatusOK {
		t.Fatalf("refreshed access token rejected: %d body=%s", got.Code, got.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refresh_token": refresh})
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRefreshRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{})
	expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestLogoutRevokesAccessAndRefresh(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":     "bye@example.com",
		"full_name": "Bye",
		"password":  "s3cret-pass",
	})
	payload := decodeObject(t, rr)
	access, _ := payload["access_token"].(string)
	refresh, _ := payload["refresh_token"].(string)

	rr = env.do(t, http.MethodPost, "/api/auth/logout", access, map[string]any{"refresh_token": refresh})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/users/me", access, nil)
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	rr = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refresh_token": refresh})
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/documents", "/api/users/me", "/api/search?q=x", "/api/dashboard/stats"} {
		rr := env.do(t, http.MethodGet, path, "", nil)
		expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
	}

	rr := env.do(t, http.MethodGet, "/api/documents", "not-a-jwt", nil)
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestTokensAreScopedToTheirSubsystem(t *testing.T) {
	env := newTestEnv(t)
	documentsToken, _ := env.register(t, "scope@example.com", "Scoped")

	rr := env.do(t, http.MethodGet, "/api/rewards/auth/me", documentsToken, nil)
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	rewardsToken, err := auth.IssueToken([]byte("test-secret"), auth.Subject{
		UserID:    "member-1",
		Role:      "employee",
		Tenant:    "company-1",
		Scope:     auth.ScopeRewards,
		JTI:       "jti-rewards",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	rr = env.do(t, http.MethodGet, "/api/documents", rewardsToken, nil)
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestDocumentTokenRejectedForDeactivatedUser(t *testing.T) {
	env := newTestEnv(t)
	token, userID := env.register(t, "gone@example.com", "Gone")

	env.store.mu.Lock()
	user := env.store.users[userID]
	user.IsActive = false
	env.store.users[userID] = user
	env.store.mu.Unlock()

	rr := env.do(t, http.MethodGet, "/api/documents", token, nil)
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestUpdateProfileChangesPassword(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "profile@example.com", "Profile")

	rr := env.do(t, http.MethodPut, "/api/users/me", token, map[string]any{
		"full_name":        "Profile Renamed",
		"password":         "brand-new-pass",
		"current_password": "wrong",
	})
	expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")

	rr = env.do(t, http.MethodPut, "/api/users/me", token, map[string]any{
		"full_name":        "Profile Renamed",
		"password":         "brand-new-pass",
		"current_password": "s3cret-pass",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if name := decodeObject(t, rr)["full_name"]; name != "Profile Renamed" {
		t.Fatalf("expected updated name, got %v", name)
	}

	rr = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "profile@example.com",
		"password": "brand-new-pass",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login with new password: status %d body=%s", rr.Code, rr.Body.String())
	}
}
