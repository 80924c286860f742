package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pageforge/api/internal/generate"
)

func (s *HTTPServer) handleTrackView(w http.ResponseWriter, r *http.Request) {
	var body TrackViewInput
	if !bind(w, r, &body) {
		return
	}
	view, err := s.service.TrackView(r.Context(), body, remoteIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "View tracked successfully", "view_id": view.ID})
}

func (s *HTTPServer) handleTrackPageView(w http.ResponseWriter, r *http.Request) {
	var body PageViewInput
	if !bind(w, r, &body) {
		return
	}
	view, err := s.service.TrackPageView(r.Context(), body, remoteIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Page view tracked successfully", "session_id": view.SessionID})
}

func (s *HTTPServer) handlePerformance(w http.ResponseWriter, r *http.Request) {
	performance, err := s.service.Performance(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, performance)
}

func (s *HTTPServer) handlePageAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.PageAnalytics(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

var generationSuggestions = []string{
	"Review each section and tailor it to your organization's specific needs",
	"Add specific technical requirements and compliance standards",
	"Include detailed evaluation criteria with scoring weights",
	"Consider adding visual elements like charts or timelines",
}

func (s *HTTPServer) handleGenerateRFP(w http.ResponseWriter, r *http.Request) {
	var body generate.Request
	if !bind(w, r, &body) {
		return
	}
	generation, err := s.service.GenerateRFP(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sections":                  generation.Sections,
		"source":                    generation.Source,
		"message":                   "RFP content generated successfully",
		"suggestions":               generationSuggestions,
		"estimated_completion_time": "2-3 hours for review and customization",
	})
}

func (s *HTTPServer) handleAnalyzeDocument(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.service.AnalyzeDocument(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
