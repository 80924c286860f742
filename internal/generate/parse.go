package generate

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Source tells how a Generation's sections were recovered from the reply.
type Source string

const (
	SourceStructured Source = "structured"
	SourceHeuristic  Source = "heuristic"
	SourceRaw        Source = "raw"
)

type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

type Generation struct {
	Source   Source    `json:"source"`
	Sections []Section `json:"sections"`
	Raw      string    `json:"-"`
}

var headerKeywords = []string{
	"summary", "overview", "scope", "requirements", "deliverables",
	"timeline", "budget", "evaluation", "submission", "terms",
}

const maxHeaderLength = 100

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}

// ParseSections recovers sections from a completion reply. Structured JSON
// wins, then line headers, then the whole reply as a single section.
func ParseSections(reply string) Generation {
	text := stripFences(reply)
	if strings.HasPrefix(text, "{") {
		if sections, ok := parseStructured(text); ok {
			return Generation{Source: SourceStructured, Sections: sections, Raw: reply}
		}
	}
	if sections := parseHeuristic(text); len(sections) > 0 {
		return Generation{Source: SourceHeuristic, Sections: sections, Raw: reply}
	}
	return Generation{
		Source:   SourceRaw,
		Sections: []Section{{Title: "Generated Content", Content: text, Order: 1}},
		Raw:      reply,
	}
}

func parseStructured(text string) ([]Section, bool) {
	var payload struct {
		Sections []struct {
			Title   *string `json:"title"`
			Content string  `json:"content"`
			Order   *int    `json:"order"`
		} `json:"sections"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil || len(payload.Sections) == 0 {
		return nil, false
	}
	sections := make([]Section, 0, len(payload.Sections))
	for i, raw := range payload.Sections {
		section := Section{Title: fmt.Sprintf("Section %d", i+1), Content: raw.Content, Order: i + 1}
		if raw.Title != nil && *raw.Title != "" {
			section.Title = *raw.Title
		}
		if raw.Order != nil {
			section.Order = *raw.Order
		}
		sections = append(sections, section)
	}
	return sections, true
}

func isHeader(line string) bool {
	if len(line) > maxHeaderLength {
		return false
	}
	if strings.HasPrefix(line, "#") || isAllCaps(line) {
		return true
	}
	lower := strings.ToLower(line)
	for _, keyword := range headerKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func isAllCaps(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func parseHeuristic(text string) []Section {
	var (
		sections []Section
		title    string
		body     []string
	)
	flush := func() {
		if title != "" && len(body) > 0 {
			sections = append(sections, Section{Title: title, Content: strings.Join(body, "\n"), Order: len(sections) + 1})
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isHeader(line) {
			flush()
			title = strings.TrimSpace(strings.ReplaceAll(line, "#", ""))
			body = nil
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

type Recommendation struct {
	Type            string  `json:"type"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	ConfidenceScore float64 `json:"confidence_score"`
	ExpectedImpact  string  `json:"expected_impact"`
}

// ParseRecommendations accepts either {"recommendations": [...]} or a bare
// array. Anything else becomes one general recommendation holding the text.
func ParseRecommendations(reply string) []Recommendation {
	text := stripFences(reply)
	var wrapped struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && len(wrapped.Recommendations) > 0 {
		return wrapped.Recommendations
	}
	var bare []Recommendation
	if err := json.Unmarshal([]byte(text), &bare); err == nil && len(bare) > 0 {
		return bare
	}
	return []Recommendation{{
		Type:            "general",
		Title:           "AI Analysis",
		Description:     text,
		ConfidenceScore: 0.5,
		ExpectedImpact:  "Review the analysis for improvement opportunities",
	}}
}
