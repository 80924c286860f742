package app

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK || decodeObject(t, rr)["ok"] != true {
		t.Fatalf("health: status %d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}

	rr = env.do(t, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ready: status %d body=%s", rr.Code, rr.Body.String())
	}

	env.store.pingErr = errors.New("connection refused")
	rr = env.do(t, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the database is down, got %d", rr.Code)
	}
	payload := decodeObject(t, rr)
	checks, _ := payload["checks"].(map[string]any)
	database, _ := checks["database"].(map[string]any)
	if payload["status"] != "not_ready" || database["status"] != "error" {
		t.Fatalf("unexpected readiness payload %v", payload)
	}
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/nope", "", nil)
	expectError(t, rr, http.StatusNotFound, "NOT_FOUND")
}

func TestTrackPageViewMergesIntoSession(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "tracker@example.com", "Tracker")
	id := env.createDocument(t, token, map[string]any{"title": "Tracked", "type": "proposal", "pages": samplePages()})

	rr := env.do(t, http.MethodPost, "/api/tracking/page-view", "", map[string]any{
		"document_id": id,
		"page_number": 1,
		"time_spent":  10,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("page-view: status %d body=%s", rr.Code, rr.Body.String())
	}
	sessionID, _ := decodeObject(t, rr)["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("expected a generated session_id")
	}

	events := []map[string]any{
		{"document_id": id, "session_id": sessionID, "page_number": 1, "time_spent": 5, "scroll_depth": 0.5},
		{"document_id": id, "session_id": sessionID, "page_number": 2, "time_spent": 20, "completed": true},
	}
	for _, event := range events {
		rr := env.do(t, http.MethodPost, "/api/tracking/page-view", "", event)
		if rr.Code != http.StatusOK {
			t.Fatalf("page-view: status %d body=%s", rr.Code, rr.Body.String())
		}
		if got := decodeObject(t, rr)["session_id"]; got != sessionID {
			t.Fatalf("expected session %s to be reused, got %v", sessionID, got)
		}
	}

	view := env.store.views[sessionID]
	if len(view.PagesViewed) != 2 {
		t.Fatalf("expected one entry per page, got %+v", view.PagesViewed)
	}
	if view.TotalTimeSpent != 25 || view.MaxPageReached != 2 || !view.CompletedViewing {
		t.Fatalf("unexpected merged session %+v", view)
	}
	if view.ViewerInfo.IPAddress == "" {
		t.Fatalf("expected the remote address to be recorded")
	}

	rr = env.do(t, http.MethodGet, "/api/documents/"+id+"/analytics", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("analytics: status %d body=%s", rr.Code, rr.Body.String())
	}
	performance := decodeObject(t, rr)
	if performance["total_views"] != float64(1) || performance["completion_rate"] != float64(100) {
		t.Fatalf("unexpected performance %v", performance)
	}

	rr = env.do(t, http.MethodGet, "/api/documents/"+id+"/page-analytics", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("page analytics: status %d body=%s", rr.Code, rr.Body.String())
	}
	report := decodeObject(t, rr)
	if report["total_pages"] != float64(2) {
		t.Fatalf("expected total_pages 2, got %v", report["total_pages"])
	}
	if pages, _ := report["page_analytics"].([]any); len(pages) != 2 {
		t.Fatalf("expected one entry per page, got %v", report["page_analytics"])
	}
}

func TestTrackPageViewValidation(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "tracker@example.com", "Tracker")
	first := env.createDocument(t, token, map[string]any{"title": "One", "type": "rfp"})
	second := env.createDocument(t, token, map[string]any{"title": "Two", "type": "rfp"})

	rr := env.do(t, http.MethodPost, "/api/tracking/page-view", "", map[string]any{"document_id": first, "page_number": 0})
	expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")

	rr = env.do(t, http.MethodPost, "/api/tracking/page-view", "", map[string]any{"document_id": "doc_missing", "page_number": 1})
	expectError(t, rr, http.StatusNotFound, "NOT_FOUND")

	rr = env.do(t, http.MethodPost, "/api/tracking/page-view", "", map[string]any{"document_id": first, "session_id": "sess-shared", "page_number": 1})
	if rr.Code != http.StatusOK {
		t.Fatalf("page-view: status %d body=%s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/api/tracking/page-view", "", map[string]any{"document_id": second, "session_id": "sess-shared", "page_number": 1})
	expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestTrackingRejectsPagesOutsideDocument(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "bounds@example.com", "Bounds")
	id := env.createDocument(t, token, map[string]any{"title": "Two pages", "type": "rfp", "pages": samplePages()})

	for _, page := range []int{3, 1 << 40} {
		rr := env.do(t, http.MethodPost, "/api/tracking/page-view", "", map[string]any{
			"document_id": id,
			"session_id":  "sess-bounds",
			"page_number": page,
		})
		expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
	}

	rr := env.do(t, http.MethodPost, "/api/tracking/view", "", map[string]any{
		"document_id": id,
		"session_id":  "sess-bounds-whole",
		"pages_viewed": []map[string]any{
			{"page_number": 1, "time_spent": 4},
			{"page_number": 1 << 40, "time_spent": 4},
		},
	})
	expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")

	if len(env.store.views) != 0 {
		t.Fatalf("expected nothing recorded, got %d sessions", len(env.store.views))
	}

	rr = env.do(t, http.MethodGet, "/api/documents/"+id+"/page-analytics", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("page analytics: status %d body=%s", rr.Code, rr.Body.String())
	}
	if total := decodeObject(t, rr)["total_pages"]; total != float64(2) {
		t.Fatalf("expected total_pages 2, got %v", total)
	}
}

func TestTrackViewRecordsWholeSession(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "viewer@example.com", "Viewer")
	id := env.createDocument(t, token, map[string]any{"title": "Viewed", "type": "contract", "pages": samplePages()})

	body := map[string]any{
		"document_id": id,
		"session_id":  "sess-whole",
		"viewer_info": map[string]any{"ip_address": "203.0.113.9", "user_agent": "test"},
		"pages_viewed": []map[string]any{
			{"page_number": 2, "time_spent": 12},
			{"page_number": 1, "time_spent": 8},
		},
		"downloaded": true,
	}
	rr := env.do(t, http.MethodPost, "/api/tracking/view", "", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("view: status %d body=%s", rr.Code, rr.Body.String())
	}
	view := env.store.views["sess-whole"]
	if view.TotalTimeSpent != 20 || view.MaxPageReached != 2 || !view.Downloaded {
		t.Fatalf("unexpected stored view %+v", view)
	}
	if view.PagesViewed[0].PageNumber != 1 {
		t.Fatalf("expected pages ordered by number, got %+v", view.PagesViewed)
	}

	rr = env.do(t, http.MethodPost, "/api/tracking/view", "", body)
	expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestAIRoutesUnavailableWithoutKey(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "ai@example.com", "AI")
	id := env.createDocument(t, token, map[string]any{"title": "Doc", "type": "rfp"})

	rr := env.do(t, http.MethodPost, "/api/ai/generate-rfp", token, map[string]any{"project_type": "web"})
	expectError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")

	rr = env.do(t, http.MethodPost, "/api/ai/generate-rfp", token, map[string]any{"project_type": "web", "requirements": "A portal"})
	expectError(t, rr, http.StatusServiceUnavailable, "AI_UNAVAILABLE")

	rr = env.do(t, http.MethodPost, "/api/ai/analyze-document/"+id, token, nil)
	expectError(t, rr, http.StatusServiceUnavailable, "AI_UNAVAILABLE")

	rr = env.do(t, http.MethodPost, "/api/ai/analyze-document/doc_missing", token, nil)
	expectError(t, rr, http.StatusNotFound, "NOT_FOUND")
}

func TestLiveFeedRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "live@example.com", "Live")
	id := env.createDocument(t, token, map[string]any{"title": "Doc", "type": "rfp"})

	rr := env.do(t, http.MethodGet, "/api/documents/"+id+"/live", "", nil)
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	rr = env.do(t, http.MethodGet, "/api/documents/"+id+"/live?token="+token, "", nil)
	expectError(t, rr, http.StatusServiceUnavailable, "LIVE_UNAVAILABLE")
}

func trackFrom(t *testing.T, env *testEnv, documentID, sessionID, forwardedFor string) {
	t.Helper()
	body := fmt.Sprintf(`{"document_id":%q,"session_id":%q,"page_number":1,"viewer_info":{"ip_address":"198.51.100.77"}}`, documentID, sessionID)
	req := httptest.NewRequest(http.MethodPost, "/api/tracking/page-view", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("page-view: status %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestTrackingIgnoresClientSuppliedAddresses(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "ip@example.com", "IP")
	id := env.createDocument(t, token, map[string]any{"title": "Doc", "type": "rfp"})

	trackFrom(t, env, id, "sess-a", "203.0.113.1")
	trackFrom(t, env, id, "sess-b", "203.0.113.2")

	for _, sessionID := range []string{"sess-a", "sess-b"} {
		if ip := env.store.views[sessionID].ViewerInfo.IPAddress; ip != "192.0.2.1" {
			t.Fatalf("session %s recorded ip %q, want the connection address", sessionID, ip)
		}
	}
	rr := env.do(t, http.MethodGet, "/api/documents/"+id+"/analytics", token, nil)
	if viewers := decodeObject(t, rr)["unique_viewers"]; viewers != float64(1) {
		t.Fatalf("unique_viewers = %v, want 1", viewers)
	}
}

func TestTrackingHonoursForwardedForBehindTrustedProxy(t *testing.T) {
	env := newTestEnv(t)
	env.service.cfg.TrustProxy = true
	env.handler = NewHTTPServer(env.service, []string{"*"}).Handler()
	token, _ := env.register(t, "proxy@example.com", "Proxy")
	id := env.createDocument(t, token, map[string]any{"title": "Doc", "type": "rfp"})

	trackFrom(t, env, id, "sess-proxied", "203.0.113.9")

	if ip := env.store.views["sess-proxied"].ViewerInfo.IPAddress; ip != "203.0.113.9" {
		t.Fatalf("recorded ip %q, want the forwarded client", ip)
	}
}
