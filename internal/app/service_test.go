package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"pageforge/api/internal/config"
	"pageforge/api/internal/export"
	"pageforge/api/internal/gitrepo"
	"pageforge/api/internal/session"
	"pageforge/api/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]store.User
	documents map[string]store.Document
	views     map[string]store.DocumentView
	activity  []store.ActivityLog
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[string]store.User{},
		documents: map[string]store.Document{},
		views:     map[string]store.DocumentView{},
	}
}

func cloneDocument(doc store.Document) store.Document {
	doc.Sections = append([]store.Section{}, doc.Sections...)
	doc.Pages = append([]store.Page{}, doc.Pages...)
	doc.Comments = append([]store.Comment{}, doc.Comments...)
	doc.Collaborators = append([]store.Collaborator{}, doc.Collaborators...)
	doc.Tags = append([]string{}, doc.Tags...)
	return doc
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return store.ErrConflict
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) TouchLastLogin(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	user.LastLogin = &now
	f.users[id] = user
	return nil
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = hash
	f.users[id] = user
	return nil
}

func (f *fakeStore) UpdateUserProfile(_ context.Context, id string, fullName, organization, avatarURL *string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	if fullName != nil {
		user.FullName = *fullName
	}
	if organization != nil {
		user.Organization = *organization
	}
	if avatarURL != nil {
		user.AvatarURL = avatarURL
	}
	f.users[id] = user
	return user, nil
}

func (f *fakeStore) InsertDocument(_ context.Context, doc store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[doc.ID] = cloneDocument(doc)
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return cloneDocument(doc), nil
}

func (f *fakeStore) GetDocumentBySharedLink(_ context.Context, token string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.documents {
		if doc.SharedLink != nil && *doc.SharedLink == token {
			return cloneDocument(doc), nil
		}
	}
	return store.Document{}, sql.ErrNoRows
}

func (f *fakeStore) ListDocuments(_ context.Context, filter store.DocumentFilter) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Document{}
	for _, doc := range f.documents {
		if !visibleTo(doc, filter.UserID) {
			continue
		}
		if filter.Type != "" && doc.Type != filter.Type {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		out = append(out, cloneDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if filter.Offset >= len(out) {
		return []store.Document{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func visibleTo(doc store.Document, userID string) bool {
	if doc.OwnerID == userID {
		return true
	}
	for _, c := range doc.Collaborators {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

func (f *fakeStore) MutateDocument(_ context.Context, id string, fn func(*store.Document) error) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	doc = cloneDocument(doc)
	if err := fn(&doc); err != nil {
		return store.Document{}, err
	}
	f.documents[id] = cloneDocument(doc)
	return doc, nil
}

func (f *fakeStore) AppendComment(_ context.Context, documentID string, comment store.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[documentID]
	if !ok {
		return sql.ErrNoRows
	}
	doc = cloneDocument(doc)
	doc.Comments = append(doc.Comments, comment)
	f.documents[documentID] = doc
	return nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.documents[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.documents, id)
	return nil
}

func (f *fakeStore) InsertActivity(_ context.Context, entry store.ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, entry)
	return nil
}

func (f *fakeStore) actions(documentID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, entry := range f.activity {
		if entry.DocumentID == documentID {
			out = append(out, entry.Action)
		}
	}
	return out
}

func (f *fakeStore) InsertView(_ context.Context, view store.DocumentView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := view.SessionID
	if key == "" {
		key = view.ID
	} else if _, exists := f.views[key]; exists {
		return store.ErrConflict
	}
	f.views[key] = view
	return nil
}

func (f *fakeStore) UpsertSession(_ context.Context, seed store.DocumentView, merge func(*store.DocumentView)) (store.DocumentView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	view, ok := f.views[seed.SessionID]
	if !ok {
		view = seed
		view.PagesViewed = []store.PageView{}
		view.UpdatedAt = seed.CreatedAt
	}
	if view.DocumentID != seed.DocumentID {
		return store.DocumentView{}, store.ErrSessionMismatch
	}
	merge(&view)
	f.views[seed.SessionID] = view
	return view, nil
}

func (f *fakeStore) ListViews(_ context.Context, documentID string) ([]store.DocumentView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.DocumentView{}
	for _, view := range f.views {
		if view.DocumentID == documentID {
			out = append(out, view)
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

type fakeExporter struct {
	err  error
	last export.Document
}

func (f *fakeExporter) Export(_ context.Context, doc export.Document, format export.Format) (*export.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.last = doc
	return &export.Result{
		Data:     []byte("%PDF-1.4 fake"),
		Filename: doc.Title + "." + string(format),
		MimeType: "application/pdf",
	}, nil
}

type testEnv struct {
	store    *fakeStore
	service  *Service
	handler  http.Handler
	redis    *miniredis.Miniredis
	exporter *fakeExporter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fs := newFakeStore()
	exporter := &fakeExporter{}
	cfg := config.Config{
		JWTSecret:   "test-secret",
		AccessTTL:   time.Hour,
		RefreshTTL:  24 * time.Hour,
		PublicURL:   "https://app.example.test",
		MaxUpload:   1 << 20,
		CORSOrigins: []string{"*"},
	}
	svc := New(cfg, Deps{
		Store:    fs,
		Sessions: session.NewRedisStoreWithClient(client),
		Git:      gitrepo.New(t.TempDir()),
		Exporter: exporter,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &testEnv{
		store:    fs,
		service:  svc,
		handler:  NewHTTPServer(svc, cfg.CORSOrigins).Handler(),
		redis:    mr,
		exporter: exporter,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// register signs up a user and returns the access token and user id.
func (e *testEnv) register(t *testing.T, email, name string) (string, string) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":     email,
		"full_name": name,
		"password":  "s3cret-pass",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body=%s", email, rr.Code, rr.Body.String())
	}
	payload := decodeObject(t, rr)
	token, _ := payload["access_token"].(string)
	user, _ := payload["user"].(map[string]any)
	id, _ := user["id"].(string)
	if token == "" || id == "" {
		t.Fatalf("register %s: missing token or id in %v", email, payload)
	}
	return token, id
}

func (e *testEnv) createDocument(t *testing.T, token string, body map[string]any) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/documents", token, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create document: status %d body=%s", rr.Code, rr.Body.String())
	}
	id, _ := decodeObject(t, rr)["id"].(string)
	if id == "" {
		t.Fatalf("create document: missing id")
	}
	return id
}

func decodeObject(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var payload []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	if got, _ := decodeObject(t, rr)["code"].(string); got != code {
		t.Fatalf("expected code %s, got %q", code, got)
	}
}

func TestCommentTreeNestsRepliesInTimestampOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	flat := []store.Comment{
		{ID: "c2", Content: "second root", Timestamp: base.Add(2 * time.Minute)},
		{ID: "r2", ParentID: "c1", Content: "late reply", Timestamp: base.Add(5 * time.Minute)},
		{ID: "c1", Content: "first root", Timestamp: base},
		{ID: "r1", ParentID: "c1", Content: "early reply", Timestamp: base.Add(time.Minute)},
		{ID: "rr1", ParentID: "r1", Content: "nested", Timestamp: base.Add(3 * time.Minute)},
		{ID: "orphan", ParentID: "gone", Content: "orphan", Timestamp: base.Add(10 * time.Minute)},
	}

	tree := commentTree(flat)

	if len(tree) != 3 {
		t.Fatalf("expected 3 roots, got %d", len(tree))
	}
	if tree[0].ID != "c1" || tree[1].ID != "c2" || tree[2].ID != "orphan" {
		t.Fatalf("unexpected root order: %s, %s, %s", tree[0].ID, tree[1].ID, tree[2].ID)
	}
	replies := tree[0].Replies
	if len(replies) != 2 || replies[0].ID != "r1" || replies[1].ID != "r2" {
		t.Fatalf("unexpected replies under c1: %+v", replies)
	}
	if len(replies[0].Replies) != 1 || replies[0].Replies[0].ID != "rr1" {
		t.Fatalf("expected nested reply under r1, got %+v", replies[0].Replies)
	}
	if tree[1].Replies != nil {
		t.Fatalf("expected no replies under c2")
	}
}

func TestRenumberPagesRestoresDenseSequence(t *testing.T) {
	pages := renumberPages([]store.Page{
		{ID: "a", PageNumber: 7, Title: "A"},
		{PageNumber: 2, Title: "B"},
		{ID: "c", PageNumber: 2, Title: "C"},
	})
	for i, page := range pages {
		if page.PageNumber != i+1 {
			t.Fatalf("page %d numbered %d", i, page.PageNumber)
		}
		if page.ID == "" {
			t.Fatalf("page %d missing id", i)
		}
		if page.MultimediaElements == nil || page.InteractiveElements == nil {
			t.Fatalf("page %d element lists must be non-nil", i)
		}
	}
}

func TestClamp01(t *testing.T) {
	cases := map[float64]float64{-0.5: 0, 0: 0, 0.25: 0.25, 1: 1, 3: 1}
	for in, want := range cases {
		if got := clamp01(in); got != want {
			t.Fatalf("clamp01(%v) = %v, want %v", in, got, want)
		}
	}
}
