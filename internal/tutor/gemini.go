package tutor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultModel = "gemini-2.0-flash"

	validationPrompt = "Hello"
)

var (
	// ErrMissingAPIKey indicates the Gemini completer was configured without a key.
	ErrMissingAPIKey = errors.New("tutor: gemini api key required")
	// ErrNoResponse indicates the model returned no candidates.
	ErrNoResponse = errors.New("No response generated")
)

// GeminiConfig configures the Gemini completer.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint; empty uses the public Gemini endpoint.
	BaseURL    string
	HTTPClient *http.Client
	Clock      func() time.Time
}

// GeminiCompleter completes conversations with the Gemini generateContent API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
	clock  func() time.Time
}

// NewGeminiCompleter constructs a completer. Requests go through cfg.HTTPClient when set.
func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	clientConfig := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("tutor: create gemini client: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &GeminiCompleter{client: client, model: model, clock: clock}, nil
}

// Name identifies the completer in metrics.
func (c *GeminiCompleter) Name() string {
	return "gemini"
}

// Complete sends the conversation and returns the first candidate's text as a model turn.
func (c *GeminiCompleter) Complete(ctx context.Context, messages []ChatMessage) (ChatMessage, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, message := range messages {
		contents = append(contents, genai.NewContentFromText(message.Content, genai.Role(message.Role)))
	}
	response, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		TopP:            genai.Ptr[float32](0.95),
		TopK:            genai.Ptr[float32](40),
		MaxOutputTokens: 2048,
	})
	if err != nil {
		return ChatMessage{}, err
	}
	if len(response.Candidates) == 0 {
		return ChatMessage{}, ErrNoResponse
	}
	text := response.Text()
	if text == "" {
		text = "No response"
	}
	return ChatMessage{Role: RoleModel, Content: text, Timestamp: c.clock().UTC()}, nil
}

// Validate issues a minimal request and reports whether the key was accepted.
func (c *GeminiCompleter) Validate(ctx context.Context) error {
	_, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(validationPrompt, genai.RoleUser)},
		&genai.GenerateContentConfig{MaxOutputTokens: 10})
	return err
}
