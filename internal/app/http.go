package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pageforge/api/internal/auth"
	"pageforge/api/internal/generate"
	"pageforge/api/internal/ingest"
	"pageforge/api/internal/rbac"
	"pageforge/api/internal/store"
)

type HTTPServer struct {
	service     *Service
	corsOrigins []string
	logger      *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigins []string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigins: corsOrigins, logger: service.logger}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	if s.service.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.withMiddleware)
	r.Use(middleware.Recoverer)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
			MaxAge:         300,
		}))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.handleHealth)
		api.Get("/ready", s.handleReady)

		api.Post("/auth/register", s.handleRegister)
		api.Post("/auth/login", s.handleLogin)
		api.Post("/auth/refresh", s.handleRefresh(auth.ScopeDocuments))

		api.Post("/tracking/view", s.handleTrackView)
		api.Post("/tracking/page-view", s.handleTrackPageView)
		api.Get("/shared/{token}", s.handleSharedDocument)

		// The live feed authenticates from the query string since browsers
		// cannot set headers on WebSocket upgrades.
		api.Get("/documents/{id}/live", s.handleLive)

		api.Group(func(docs chi.Router) {
			docs.Use(s.requireSession(auth.ScopeDocuments))

			docs.Post("/auth/logout", s.handleLogout)
			docs.Get("/users/me", s.handleMe)
			docs.Put("/users/me", s.handleUpdateMe)

			docs.Get("/documents", s.handleListDocuments)
			docs.Post("/documents", s.handleCreateDocument)
			docs.Post("/documents/upload", s.handleUploadDocument)
			docs.Get("/documents/{id}", s.handleGetDocument)
			docs.Put("/documents/{id}", s.handleUpdateDocument)
			docs.Delete("/documents/{id}", s.handleDeleteDocument)
			docs.Put("/documents/{id}/sections/{sectionID}", s.handleUpdateSection)
			docs.Put("/documents/{id}/pages/{n}", s.handleUpdatePage)
			docs.Post("/documents/{id}/pages/{n}/multimedia", s.handleAddMultimedia)
			docs.Post("/documents/{id}/pages/{n}/interactive", s.handleAddInteractive)
			docs.Get("/documents/{id}/comments", s.handleListComments)
			docs.Post("/documents/{id}/comments", s.handleAddComment)
			docs.Put("/documents/{id}/comments/{commentID}/resolve", s.handleResolveComment)
			docs.Post("/documents/{id}/collaborators", s.handleAddCollaborator)
			docs.Delete("/documents/{id}/collaborators/{userID}", s.handleRemoveCollaborator)
			docs.Post("/documents/{id}/share", s.handleShareDocument)
			docs.Get("/documents/{id}/versions", s.handleListVersions)
			docs.Get("/documents/{id}/versions/{hash}", s.handleGetVersion)
			docs.Get("/documents/{id}/export", s.handleExport)
			docs.Get("/documents/{id}/original", s.handleOriginal)
			docs.Get("/documents/{id}/analytics", s.handlePerformance)
			docs.Get("/documents/{id}/page-analytics", s.handlePageAnalytics)

			docs.Get("/search", s.handleSearch)
			docs.Post("/ai/generate-rfp", s.handleGenerateRFP)
			docs.Post("/ai/analyze-document/{id}", s.handleAnalyzeDocument)
		})

		api.Post("/rewards/auth/register", s.handleRewardsRegister)
		api.Post("/rewards/auth/login", s.handleRewardsLogin)
		api.Post("/rewards/auth/refresh", s.handleRefresh(auth.ScopeRewards))
		api.Post("/companies", s.handleCreateCompany)

		api.Group(func(rw chi.Router) {
			rw.Use(s.requireSession(auth.ScopeRewards))

			rw.Get("/rewards/auth/me", s.handleRewardsMe)
			rw.Post("/rewards/auth/logout", s.handleLogout)
			rw.Get("/companies/{id}", s.handleGetCompany)
			rw.Post("/points/give", s.handleGivePoints)
			rw.Get("/points/transactions", s.handleTransactions)
			rw.Get("/users/team", s.handleTeam)
			rw.Get("/users/badges", s.handleBadges)
			rw.Get("/dashboard/stats", s.handleDashboard)
			rw.Get("/tasks", s.handleTasks)
			rw.Post("/tasks", s.handleCreateTask)
		})
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	statusCode := http.StatusOK
	checks := map[string]any{}
	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	check("database", s.service.Ping)
	check("redis", s.service.PingSessions)

	status := "ready"
	if statusCode != http.StatusOK {
		status = "not_ready"
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     statusCode == http.StatusOK,
		"status": status,
		"checks": checks,
	})
}

type sessionKey struct{}

func sessionFrom(r *http.Request) Session {
	sess, _ := r.Context().Value(sessionKey{}).(Session)
	return sess
}

// requireSession rejects requests without a valid bearer token for scope.
func (s *HTTPServer) requireSession(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := s.authenticate(w, r, bearerToken(r), scope)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
		})
	}
}

func (s *HTTPServer) authenticate(w http.ResponseWriter, r *http.Request, token, scope string) (Session, bool) {
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	sess, err := s.service.SessionFromToken(r.Context(), token, scope)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		s.logger.Error("session lookup failed", slog.String("request_id", requestIDFrom(r.Context())), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return sess, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", writer.status),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// fail maps err onto the error taxonomy. Server errors are logged with the
// request id; their text never reaches the client.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError && code == "SERVER_ERROR" {
		s.logger.Error("request failed",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// bind decodes the body or writes a 400 and reports false.
func bind(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func queryInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "page number must be a positive integer", nil)
		return 0, false
	}
	return n, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, codeNotFound, "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, codeUnauthorized, "Unauthorized", nil
	}
	if errors.Is(err, rbac.ErrDenied) {
		return http.StatusForbidden, codeForbidden, "Forbidden", nil
	}
	if errors.Is(err, ingest.ErrUnsupportedType) {
		return http.StatusBadRequest, "UNSUPPORTED_MEDIA", err.Error(), nil
	}
	if errors.Is(err, generate.ErrUnavailable) {
		return http.StatusServiceUnavailable, "AI_UNAVAILABLE", err.Error(), nil
	}
	if errors.Is(err, store.ErrConflict) {
		return http.StatusBadRequest, "CONFLICT", "Already exists", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
