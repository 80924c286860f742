package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pageforge/api/internal/auth"
	"pageforge/api/internal/authpw"
	"pageforge/api/internal/blob"
	"pageforge/api/internal/config"
	"pageforge/api/internal/email"
	"pageforge/api/internal/export"
	"pageforge/api/internal/generate"
	"pageforge/api/internal/gitrepo"
	"pageforge/api/internal/live"
	"pageforge/api/internal/rewards"
	"pageforge/api/internal/search"
	"pageforge/api/internal/session"
	"pageforge/api/internal/store"
	"pageforge/api/internal/util"
)

// Session is the authenticated caller of one request.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	Tenant       string
	Scope        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	authpw.UserStore
	UpdateUserProfile(ctx context.Context, id string, fullName, organization, avatarURL *string) (store.User, error)

	InsertDocument(ctx context.Context, doc store.Document) error
	GetDocument(ctx context.Context, id string) (store.Document, error)
	GetDocumentBySharedLink(ctx context.Context, token string) (store.Document, error)
	ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]store.Document, error)
	MutateDocument(ctx context.Context, id string, fn func(*store.Document) error) (store.Document, error)
	AppendComment(ctx context.Context, documentID string, comment store.Comment) error
	DeleteDocument(ctx context.Context, id string) error
	InsertActivity(ctx context.Context, entry store.ActivityLog) error

	InsertView(ctx context.Context, view store.DocumentView) error
	UpsertSession(ctx context.Context, seed store.DocumentView, merge func(*store.DocumentView)) (store.DocumentView, error)
	ListViews(ctx context.Context, documentID string) ([]store.DocumentView, error)

	Ping(ctx context.Context) error
}

type tokenStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, identity session.Identity, expiresAt time.Time) error
	ConsumeRefreshSession(ctx context.Context, tokenHash string) (session.Identity, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

type exporter interface {
	Export(ctx context.Context, doc export.Document, format export.Format) (*export.Result, error)
}

// Deps are the process-wide collaborators of the service. Optional ones may
// be nil: Blobs, Search, Mailer, Live and AI.
type Deps struct {
	Store    dataStore
	Sessions tokenStore
	Git      *gitrepo.Service
	Search   *search.Service
	Blobs    *blob.Store
	Exporter exporter
	Mailer   *email.Service
	Live     *live.Hub
	AI       *generate.Client
	Rewards  *rewards.Service
	Logger   *slog.Logger
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions tokenStore
	accounts *authpw.Service
	git      *gitrepo.Service
	search   *search.Service
	blobs    *blob.Store
	exporter exporter
	mailer   *email.Service
	live     *live.Hub
	ai       *generate.Client
	rewards  *rewards.Service
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		accounts: authpw.NewService(deps.Store),
		git:      deps.Git,
		search:   deps.Search,
		blobs:    deps.Blobs,
		exporter: deps.Exporter,
		mailer:   deps.Mailer,
		live:     deps.Live,
		ai:       deps.AI,
		rewards:  deps.Rewards,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

// Register creates a platform user and signs them in.
func (s *Service) Register(ctx context.Context, req authpw.RegisterRequest) (Session, store.User, error) {
	user, err := s.accounts.Register(ctx, req)
	if err != nil {
		return Session{}, store.User{}, translateAccountError(err)
	}
	sess, err := s.issueSession(ctx, session.Identity{
		UserID: user.ID,
		Role:   user.Role,
		Tenant: user.Organization,
		Scope:  auth.ScopeDocuments,
	})
	if err != nil {
		return Session{}, store.User{}, err
	}
	sess.UserName = user.FullName
	return sess, user, nil
}

func (s *Service) Login(ctx context.Context, emailAddress, password string) (Session, store.User, error) {
	user, err := s.accounts.Authenticate(ctx, emailAddress, password)
	if err != nil {
		return Session{}, store.User{}, translateAccountError(err)
	}
	sess, err := s.issueSession(ctx, session.Identity{
		UserID: user.ID,
		Role:   user.Role,
		Tenant: user.Organization,
		Scope:  auth.ScopeDocuments,
	})
	if err != nil {
		return Session{}, store.User{}, err
	}
	sess.UserName = user.FullName
	return sess, user, nil
}

func translateAccountError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrEmailExists):
		return domainError(http.StatusBadRequest, codeEmailExists, "Email already registered", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return unauthorized("Invalid email or password")
	case errors.Is(err, authpw.ErrInvalidInput):
		return validationError(err.Error())
	}
	return err
}

// issueSession mints an access token and a rotating refresh token for identity.
func (s *Service) issueSession(ctx context.Context, identity session.Identity) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Subject{
		UserID:    identity.UserID,
		Role:      identity.Role,
		Tenant:    identity.Tenant,
		Scope:     identity.Scope,
		JTI:       jti,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	identity.CreatedAt = now
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), identity, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       identity.UserID,
		Role:         identity.Role,
		Tenant:       identity.Tenant,
		Scope:        identity.Scope,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates a refresh token. The old token is consumed even when the
// scope does not match.
func (s *Service) Refresh(ctx context.Context, refreshToken, scope string) (Session, error) {
	identity, err := s.sessions.ConsumeRefreshSession(ctx, auth.HashToken(refreshToken))
	if errors.Is(err, session.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if identity.Scope != scope {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, identity)
}

// SessionFromToken validates a bearer token for one subsystem. Document
// tokens are additionally checked against the user table.
func (s *Service) SessionFromToken(ctx context.Context, token, scope string) (Session, error) {
	subject, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	if subject.Scope != scope {
		return Session{}, auth.ErrInvalidToken
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, subject.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	sess := Session{
		Token:     token,
		UserID:    subject.UserID,
		Role:      subject.Role,
		Tenant:    subject.Tenant,
		Scope:     subject.Scope,
		JTI:       subject.JTI,
		ExpiresAt: subject.ExpiresAt,
	}
	if scope != auth.ScopeDocuments {
		return sess, nil
	}

	user, err := s.store.GetUserByID(ctx, subject.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}
	sess.UserName = user.FullName
	sess.Role = user.Role
	return sess, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Me(ctx context.Context, sess Session) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, notFound("User not found")
	}
	return user, err
}

type UpdateProfileInput struct {
	FullName        *string `json:"full_name"`
	Organization    *string `json:"organization"`
	AvatarURL       *string `json:"avatar_url"`
	Password        *string `json:"password"`
	CurrentPassword string  `json:"current_password"`
}

func (s *Service) UpdateProfile(ctx context.Context, sess Session, input UpdateProfileInput) (store.User, error) {
	if input.FullName != nil && *input.FullName == "" {
		return store.User{}, validationError("full_name cannot be empty")
	}
	if input.Password != nil {
		if input.CurrentPassword == "" {
			return store.User{}, validationError("current_password is required")
		}
		if err := s.accounts.ChangePassword(ctx, sess.UserID, input.CurrentPassword, *input.Password); err != nil {
			if errors.Is(err, authpw.ErrInvalidCredentials) {
				return store.User{}, validationError("Current password is incorrect")
			}
			return store.User{}, translateAccountError(err)
		}
	}
	return s.store.UpdateUserProfile(ctx, sess.UserID, input.FullName, input.Organization, input.AvatarURL)
}

// logActivity appends to the audit trail. Failures are logged, never returned.
func (s *Service) logActivity(ctx context.Context, sess Session, documentID, action string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	entry := store.ActivityLog{
		ID:         util.NewID("act"),
		UserID:     sess.UserID,
		UserName:   sess.UserName,
		DocumentID: documentID,
		Action:     action,
		Details:    details,
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertActivity(ctx, entry); err != nil {
		s.logger.Warn("activity log failed",
			slog.String("document_id", documentID),
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}
