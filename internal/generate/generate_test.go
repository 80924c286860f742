package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseSectionsStructured(t *testing.T) {
	reply := "```json\n{\"sections\":[{\"title\":\"Executive Summary\",\"content\":\"Intro\",\"order\":1},{\"content\":\"No title\"}]}\n```"
	got := ParseSections(reply)
	if got.Source != SourceStructured {
		t.Fatalf("Source = %s, want structured", got.Source)
	}
	if len(got.Sections) != 2 {
		t.Fatalf("sections = %+v", got.Sections)
	}
	if got.Sections[1].Title != "Section 2" || got.Sections[1].Order != 2 {
		t.Fatalf("defaults not applied: %+v", got.Sections[1])
	}
}

func TestParseSectionsHeuristic(t *testing.T) {
	reply := "# Executive Summary\nWe need a bridge.\nIt must be strong.\n\nSCOPE OF WORK\nDesign and build.\nBudget\nTen million."
	got := ParseSections(reply)
	if got.Source != SourceHeuristic {
		t.Fatalf("Source = %s, want heuristic", got.Source)
	}
	titles := []string{"Executive Summary", "SCOPE OF WORK", "Budget"}
	if len(got.Sections) != len(titles) {
		t.Fatalf("sections = %+v", got.Sections)
	}
	for i, title := range titles {
		if got.Sections[i].Title != title || got.Sections[i].Order != i+1 {
			t.Fatalf("section %d = %+v", i, got.Sections[i])
		}
	}
	if got.Sections[0].Content != "We need a bridge.\nIt must be strong." {
		t.Fatalf("content = %q", got.Sections[0].Content)
	}
}

func TestParseSectionsFallsBackToRaw(t *testing.T) {
	got := ParseSections("just some prose without headers")
	if got.Source != SourceRaw || len(got.Sections) != 1 || got.Sections[0].Title != "Generated Content" {
		t.Fatalf("got = %+v", got)
	}

	broken := ParseSections(`{"sections": [`)
	if broken.Source == SourceStructured {
		t.Fatal("malformed JSON must not parse as structured")
	}
}

func TestLongLinesAreNotHeaders(t *testing.T) {
	line := "The overview " + strings.Repeat("x", maxHeaderLength)
	if isHeader(line) {
		t.Fatal("lines over the header limit must be body text")
	}
}

func TestParseRecommendations(t *testing.T) {
	wrapped := ParseRecommendations(`{"recommendations":[{"type":"content","title":"Shorten","description":"d","confidence_score":0.9,"expected_impact":"e"}]}`)
	if len(wrapped) != 1 || wrapped[0].Type != "content" {
		t.Fatalf("wrapped = %+v", wrapped)
	}
	bare := ParseRecommendations(`[{"type":"timing","title":"Send earlier"}]`)
	if len(bare) != 1 || bare[0].Type != "timing" {
		t.Fatalf("bare = %+v", bare)
	}
	fallback := ParseRecommendations("Consider a shorter pricing page.")
	if len(fallback) != 1 || fallback[0].Type != "general" || fallback[0].Description != "Consider a shorter pricing page." {
		t.Fatalf("fallback = %+v", fallback)
	}
}

func TestBuildPromptIncludesOutlineAndInputs(t *testing.T) {
	prompt := BuildPrompt(Request{
		ProjectType:          "Bridge",
		Industry:             "Civil",
		SpecificDeliverables: []string{"Design", "Build"},
	})
	for _, want := range []string{"Project Type: Bridge", "Design, Build", "None provided", "10. Terms and Conditions"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestNewWithoutKeyIsUnavailable(t *testing.T) {
	client := New(Config{}, nil)
	if client.Configured() {
		t.Fatal("client without key must not be configured")
	}
	_, err := client.GenerateSections(context.Background(), Request{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("GenerateSections() error = %v, want ErrUnavailable", err)
	}
}

func completionServer(t *testing.T, status int, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateSectionsCallsCompletionAPI(t *testing.T) {
	var body map[string]any
	srv := completionServer(t, http.StatusOK, `{"sections":[{"title":"Executive Summary","content":"Hi","order":1}]}`, &body)

	client := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second}, nil)
	got, err := client.GenerateSections(context.Background(), Request{ProjectType: "Bridge"})
	if err != nil {
		t.Fatalf("GenerateSections() error = %v", err)
	}
	if got.Source != SourceStructured || got.Sections[0].Title != "Executive Summary" {
		t.Fatalf("got = %+v", got)
	}
	if body["model"] != "gpt-4o" || body["max_tokens"] != float64(4000) {
		t.Fatalf("request body = %v", body)
	}
	if temp, _ := body["temperature"].(float64); temp < 0.69 || temp > 0.71 {
		t.Fatalf("temperature = %v", body["temperature"])
	}
}

func TestGenerateSectionsUpstreamFailure(t *testing.T) {
	srv := completionServer(t, http.StatusInternalServerError, "", nil)
	client := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second}, nil)
	_, err := client.GenerateSections(context.Background(), Request{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("GenerateSections() error = %v, want ErrUnavailable", err)
	}
}
