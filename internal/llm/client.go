package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jonathan/study-resources/internal/apperr"
)

// Client is an abstraction over generative endpoint providers. One call, no
// retries: throttling, timeouts and retry policy belong to the Scheduler.
type Client interface {
	// Generate sends the prompt and attachments and returns the raw text.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// GetModel returns the provider model for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config, apiKey)
	case ProviderAnthropic:
		return NewAnthropicClient(config, apiKey)
	default:
		return NewGeminiClient(ctx, config, apiKey)
	}
}

// NewScopedClient builds the client with scope acquired. Gemini in
// service_account mode resolves application default credentials once, at
// construction, so the environment the scope sets must already be in place.
func NewScopedClient(ctx context.Context, config *Config, apiKey string, scope CredentialScope) (Client, error) {
	if scope == nil {
		scope = NopCredentialScope{}
	}
	release, err := scope.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire credentials: %w", err)
	}
	defer release()
	return NewClient(ctx, config, apiKey)
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client. In api_key mode apiKey is
// required; in service_account mode application default credentials are used.
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	var opts []option.ClientOption
	switch config.Mode {
	case ModeServiceAccount:
		// Credentials come from GOOGLE_APPLICATION_CREDENTIALS.
	default:
		if apiKey == "" {
			return nil, fmt.Errorf("API key is required")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(config.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// Generate sends one request to Gemini
func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	modelName := c.config.GetModel(req.Tier())
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", req.Tier())
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(c.config.Temperature)
	model.SetMaxOutputTokens(int32(c.config.maxOutputTokens()))
	if req.JSON() {
		model.ResponseMIMEType = "application/json"
	}

	parts := []genai.Part{genai.Text(req.Prompt())}
	for _, a := range req.Attachments() {
		if a.Label != "" {
			parts = append(parts, genai.Text(a.Label))
		}
		parts = append(parts, genai.Blob{MIMEType: a.MIMEType, Data: a.Data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return nil, &apperr.ProtocolError{Kind: apperr.KindMalformedUpstream, Cause: err}
		}
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text, finish, err := extractTextFromResponse(resp)
	if err != nil {
		return nil, &apperr.ProtocolError{Kind: apperr.KindMalformedUpstream, Cause: err}
	}

	out := &Response{Text: text, Model: modelName, FinishReason: finish}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, string, error) {
	if resp == nil {
		return "", "", fmt.Errorf("nil response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	finish := candidate.FinishReason.String()
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", finish, fmt.Errorf("no content in response (finish reason %s)", finish)
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", finish, fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), finish, nil
}
