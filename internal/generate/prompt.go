package generate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outline is the fixed section order every generated RFP follows.
var Outline = []string{
	"Executive Summary",
	"Project Overview",
	"Scope of Work",
	"Technical Requirements",
	"Deliverables",
	"Timeline and Milestones",
	"Budget and Payment Terms",
	"Evaluation Criteria",
	"Submission Requirements",
	"Terms and Conditions",
}

type Request struct {
	ProjectType          string   `json:"project_type"`
	Industry             string   `json:"industry"`
	BudgetRange          string   `json:"budget_range"`
	Timeline             string   `json:"timeline"`
	Requirements         string   `json:"requirements"`
	CompanyInfo          string   `json:"company_info"`
	SpecificDeliverables []string `json:"specific_deliverables"`
	EvaluationCriteria   []string `json:"evaluation_criteria"`
	AdditionalContext    string   `json:"additional_context,omitempty"`
}

func orNone(value string) string {
	if strings.TrimSpace(value) == "" {
		return "None provided"
	}
	return value
}

func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Generate a comprehensive Request for Proposal (RFP) document with the following specifications:\n\n")
	b.WriteString("Project Details:\n")
	fmt.Fprintf(&b, "- Project Type: %s\n", req.ProjectType)
	fmt.Fprintf(&b, "- Industry: %s\n", req.Industry)
	fmt.Fprintf(&b, "- Budget Range: %s\n", req.BudgetRange)
	fmt.Fprintf(&b, "- Timeline: %s\n\n", req.Timeline)
	fmt.Fprintf(&b, "Requirements:\n%s\n\n", req.Requirements)
	fmt.Fprintf(&b, "Company Information:\n%s\n\n", req.CompanyInfo)
	fmt.Fprintf(&b, "Specific Deliverables:\n%s\n\n", strings.Join(req.SpecificDeliverables, ", "))
	fmt.Fprintf(&b, "Evaluation Criteria:\n%s\n\n", strings.Join(req.EvaluationCriteria, ", "))
	fmt.Fprintf(&b, "Additional Context:\n%s\n\n", orNone(req.AdditionalContext))
	b.WriteString("Structure the RFP with the following sections:\n")
	for i, title := range Outline {
		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
	}
	b.WriteString("\nFormat the response as valid JSON with this exact structure:\n")
	b.WriteString(`{"sections": [{"title": "Section Title", "content": "Detailed content for this section", "order": 1}]}`)
	b.WriteString("\n\nMake it professional, comprehensive and appropriate for the industry.\n")
	return b.String()
}

func buildAnalysisPrompt(doc DocumentSummary, metrics any) (string, error) {
	encoded, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metrics: %w", err)
	}
	var b strings.Builder
	b.WriteString("Analyze this document performance data and provide actionable recommendations.\n\n")
	b.WriteString("Document Info:\n")
	fmt.Fprintf(&b, "- Type: %s\n- Title: %s\n- Pages: %d\n\n", doc.Type, doc.Title, doc.Pages)
	fmt.Fprintf(&b, "Performance Metrics:\n%s\n\n", encoded)
	b.WriteString("Provide 3-5 specific recommendations to improve document performance, formatted as JSON:\n")
	b.WriteString(`{"recommendations": [{"type": "content|structure|timing|pricing", "title": "Brief title", ` +
		`"description": "Explanation and action steps", "confidence_score": 0.85, "expected_impact": "Expected improvement"}]}`)
	b.WriteString("\n")
	return b.String(), nil
}
