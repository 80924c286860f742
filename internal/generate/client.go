// Package generate drafts RFP content and performance recommendations
// through an OpenAI-compatible chat completion API.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrUnavailable is returned when no completion API is configured or the
// upstream call fails.
var ErrUnavailable = errors.New("ai service unavailable")

const (
	generationSystemPrompt = "You are an expert RFP writer. Generate comprehensive, professional RFP content in structured sections. Always respond in valid JSON format."
	analysisSystemPrompt   = "You are an expert document performance analyst. Provide data-driven recommendations in valid JSON format."
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	api     completer
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// DocumentSummary is what the analysis prompt needs to know about a document.
type DocumentSummary struct {
	Title string
	Type  string
	Pages int
}

// New returns a client, or nil when no API key is configured.
func New(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		api:     openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.api != nil
}

func (c *Client) complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	if !c.Configured() {
		return "", ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		c.logger.Warn("completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	c.logger.Info("completion finished", "model", c.model, "duration_ms", time.Since(started).Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// GenerateSections drafts RFP sections for req.
func (c *Client) GenerateSections(ctx context.Context, req Request) (Generation, error) {
	reply, err := c.complete(ctx, generationSystemPrompt, BuildPrompt(req), 0.7, 4000)
	if err != nil {
		return Generation{}, err
	}
	return ParseSections(reply), nil
}

// AnalyzeDocument asks for recommendations based on performance metrics.
func (c *Client) AnalyzeDocument(ctx context.Context, doc DocumentSummary, metrics any) ([]Recommendation, error) {
	prompt, err := buildAnalysisPrompt(doc, metrics)
	if err != nil {
		return nil, err
	}
	reply, err := c.complete(ctx, analysisSystemPrompt, prompt, 0.3, 2000)
	if err != nil {
		return nil, err
	}
	return ParseRecommendations(reply), nil
}
