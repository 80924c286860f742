package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pageforge/api/internal/analytics"
	"pageforge/api/internal/generate"
	"pageforge/api/internal/live"
	"pageforge/api/internal/rbac"
	"pageforge/api/internal/store"
	"pageforge/api/internal/util"
)

type TrackViewInput struct {
	DocumentID       string           `json:"document_id"`
	SessionID        string           `json:"session_id"`
	ViewerInfo       store.ViewerInfo `json:"viewer_info"`
	PagesViewed      []store.PageView `json:"pages_viewed"`
	CompletedViewing bool             `json:"completed_viewing"`
	Downloaded       bool             `json:"downloaded"`
	Signed           bool             `json:"signed"`
}

type PageViewInput struct {
	DocumentID     string           `json:"document_id"`
	SessionID      string           `json:"session_id"`
	PageNumber     int              `json:"page_number"`
	ViewerInfo     store.ViewerInfo `json:"viewer_info"`
	TimeSpent      int              `json:"time_spent"`
	ScrollDepth    float64          `json:"scroll_depth"`
	Interactions   []string         `json:"interactions"`
	ClickPositions []store.Point    `json:"click_positions"`
	EnteredAt      *time.Time       `json:"entered_at"`
	ExitedAt       *time.Time       `json:"exited_at"`
	Completed      bool             `json:"completed"`
	Downloaded     bool             `json:"downloaded"`
	Signed         bool             `json:"signed"`
}

// requireDocument is the existence check for public tracking routes.
func (s *Service) requireDocument(ctx context.Context, documentID string) (store.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return store.Document{}, validationError("document_id is required")
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, notFound("Document not found")
	}
	return doc, err
}

// trackablePages is the page range viewers can report against. Documents
// authored with sections only count those; an empty document has one page.
func trackablePages(doc store.Document) int {
	switch {
	case len(doc.Pages) > 0:
		return len(doc.Pages)
	case len(doc.Sections) > 0:
		return len(doc.Sections)
	}
	return 1
}

func checkPageNumber(doc store.Document, pageNumber int) error {
	if pages := trackablePages(doc); pageNumber < 1 || pageNumber > pages {
		return validationError(fmt.Sprintf("page_number must be between 1 and %d", pages))
	}
	return nil
}

// TrackView records a whole viewing session in one write.
func (s *Service) TrackView(ctx context.Context, input TrackViewInput, remoteIP string) (store.DocumentView, error) {
	doc, err := s.requireDocument(ctx, input.DocumentID)
	if err != nil {
		return store.DocumentView{}, err
	}
	for _, page := range input.PagesViewed {
		if err := checkPageNumber(doc, page.PageNumber); err != nil {
			return store.DocumentView{}, err
		}
	}
	input.ViewerInfo.IPAddress = remoteIP

	now := s.now()
	view := store.DocumentView{
		ID:               util.NewID("view"),
		DocumentID:       input.DocumentID,
		SessionID:        input.SessionID,
		ViewerInfo:       input.ViewerInfo,
		PagesViewed:      []store.PageView{},
		CompletedViewing: input.CompletedViewing,
		Downloaded:       input.Downloaded,
		Signed:           input.Signed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, page := range input.PagesViewed {
		analytics.MergePageView(&view, analytics.PageEvent{
			PageNumber:     page.PageNumber,
			TimeSpent:      page.TimeSpent,
			ScrollDepth:    page.ScrollDepth,
			Interactions:   page.Interactions,
			ClickPositions: page.ClickPositions,
			EnteredAt:      page.EnteredAt,
			ExitedAt:       page.ExitedAt,
		}, now)
	}
	if err := s.store.InsertView(ctx, view); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.DocumentView{}, validationError("session_id already recorded")
		}
		return store.DocumentView{}, err
	}
	s.live.Broadcast(live.Event{
		Type:       "view",
		DocumentID: view.DocumentID,
		SessionID:  view.SessionID,
		TimeSpent:  view.TotalTimeSpent,
		Completed:  view.CompletedViewing,
		At:         now,
	})
	return view, nil
}

// TrackPageView folds one page event into its session, creating the session
// when the id is missing or not yet known.
func (s *Service) TrackPageView(ctx context.Context, input PageViewInput, remoteIP string) (store.DocumentView, error) {
	if input.PageNumber < 1 {
		return store.DocumentView{}, validationError("page_number must be at least 1")
	}
	doc, err := s.requireDocument(ctx, input.DocumentID)
	if err != nil {
		return store.DocumentView{}, err
	}
	if err := checkPageNumber(doc, input.PageNumber); err != nil {
		return store.DocumentView{}, err
	}
	input.ViewerInfo.IPAddress = remoteIP
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		sessionID = util.NewID("sess")
	}

	now := s.now()
	seed := store.DocumentView{
		ID:         util.NewID("view"),
		DocumentID: input.DocumentID,
		SessionID:  sessionID,
		ViewerInfo: input.ViewerInfo,
		CreatedAt:  now,
	}
	event := analytics.PageEvent{
		PageNumber:     input.PageNumber,
		TimeSpent:      input.TimeSpent,
		ScrollDepth:    input.ScrollDepth,
		Interactions:   input.Interactions,
		ClickPositions: input.ClickPositions,
		EnteredAt:      input.EnteredAt,
		ExitedAt:       input.ExitedAt,
		Completed:      input.Completed,
		Downloaded:     input.Downloaded,
		Signed:         input.Signed,
	}
	view, err := s.store.UpsertSession(ctx, seed, func(v *store.DocumentView) {
		analytics.MergePageView(v, event, now)
	})
	if errors.Is(err, store.ErrSessionMismatch) {
		return store.DocumentView{}, validationError("session_id belongs to another document")
	}
	if err != nil {
		return store.DocumentView{}, err
	}

	s.live.Broadcast(live.Event{
		Type:       "page_view",
		DocumentID: view.DocumentID,
		SessionID:  view.SessionID,
		PageNumber: input.PageNumber,
		TimeSpent:  view.TotalTimeSpent,
		Completed:  view.CompletedViewing,
		At:         now,
	})
	return view, nil
}

func (s *Service) Performance(ctx context.Context, sess Session, documentID string) (analytics.Performance, error) {
	if _, err := s.authorize(ctx, sess, documentID, rbac.CapView); err != nil {
		return analytics.Performance{}, err
	}
	views, err := s.store.ListViews(ctx, documentID)
	if err != nil {
		return analytics.Performance{}, err
	}
	return analytics.Compute(documentID, views), nil
}

func (s *Service) PageAnalytics(ctx context.Context, sess Session, documentID string) (analytics.PageReport, error) {
	doc, err := s.authorize(ctx, sess, documentID, rbac.CapView)
	if err != nil {
		return analytics.PageReport{}, err
	}
	views, err := s.store.ListViews(ctx, documentID)
	if err != nil {
		return analytics.PageReport{}, err
	}
	return analytics.PageAnalytics(documentID, trackablePages(doc), views), nil
}

func aiUnavailable(err error) error {
	message := "AI service unavailable"
	if err != nil {
		message = err.Error()
	}
	return domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", message, nil)
}

func (s *Service) GenerateRFP(ctx context.Context, req generate.Request) (generate.Generation, error) {
	if strings.TrimSpace(req.ProjectType) == "" || strings.TrimSpace(req.Requirements) == "" {
		return generate.Generation{}, validationError("project_type and requirements are required")
	}
	if !s.ai.Configured() {
		return generate.Generation{}, aiUnavailable(nil)
	}
	generation, err := s.ai.GenerateSections(ctx, req)
	if errors.Is(err, generate.ErrUnavailable) {
		return generate.Generation{}, aiUnavailable(err)
	}
	return generation, err
}

type Analysis struct {
	Recommendations []generate.Recommendation `json:"recommendations"`
	PerformanceData analytics.Performance     `json:"performance_data"`
}

func (s *Service) AnalyzeDocument(ctx context.Context, sess Session, documentID string) (Analysis, error) {
	doc, err := s.authorize(ctx, sess, documentID, rbac.CapView)
	if err != nil {
		return Analysis{}, err
	}
	if !s.ai.Configured() {
		return Analysis{}, aiUnavailable(nil)
	}
	views, err := s.store.ListViews(ctx, documentID)
	if err != nil {
		return Analysis{}, err
	}
	performance := analytics.Compute(documentID, views)
	recommendations, err := s.ai.AnalyzeDocument(ctx, generate.DocumentSummary{
		Title: doc.Title,
		Type:  doc.Type,
		Pages: len(doc.Pages),
	}, performance)
	if errors.Is(err, generate.ErrUnavailable) {
		return Analysis{}, aiUnavailable(err)
	}
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{Recommendations: recommendations, PerformanceData: performance}, nil
}
