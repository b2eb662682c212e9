package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jonathan/study-resources/internal/apperr"
)

// AnthropicClient implements Client over the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	config *Config
}

// NewAnthropicClient creates a new Anthropic client. SDK retries are
// disabled; the Scheduler owns retry policy.
func NewAnthropicClient(config *Config, apiKey string) (*AnthropicClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	opts := []aoption.RequestOption{
		aoption.WithAPIKey(strings.TrimSpace(apiKey)),
		aoption.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, aoption.WithBaseURL(strings.TrimSpace(config.BaseURL)))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...), config: config}, nil
}

// Generate sends one request to Anthropic
func (c *AnthropicClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	modelName := c.config.GetModel(req.Tier())
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", req.Tier())
	}

	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt())}
	for _, a := range req.Attachments() {
		if a.Label != "" {
			blocks = append(blocks, anthropic.NewTextBlock(a.Label))
		}
		b64 := base64.StdEncoding.EncodeToString(a.Data)
		switch {
		case strings.HasPrefix(a.MIMEType, "image/"):
			blocks = append(blocks, anthropic.NewImageBlockBase64(a.MIMEType, b64))
		case a.MIMEType == "application/pdf":
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: b64}))
		default:
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.PlainTextSourceParam{Data: string(a.Data)}))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelName),
		MaxTokens:   c.config.maxOutputTokens(),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		Temperature: anthropic.Float(float64(c.config.Temperature)),
	}
	if req.JSON() {
		params.System = []anthropic.TextBlockParam{{Text: "Respond with a single JSON object and nothing else."}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return nil, &apperr.ProtocolError{
			Kind:  apperr.KindMalformedUpstream,
			Cause: fmt.Errorf("no text in response (stop reason %s)", msg.StopReason),
		}
	}
	return &Response{
		Text:         sb.String(),
		Model:        modelName,
		PromptTokens: int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		FinishReason: string(msg.StopReason),
	}, nil
}

// GetModel returns the model name for a tier
func (c *AnthropicClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close is a no-op; the HTTP client holds no resources.
func (c *AnthropicClient) Close() error { return nil }
