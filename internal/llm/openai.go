package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"

	"github.com/jonathan/study-resources/internal/apperr"
)

// OpenAIClient implements Client over the OpenAI Responses API.
type OpenAIClient struct {
	client openai.Client
	config *Config
}

// NewOpenAIClient creates a new OpenAI client. SDK retries are disabled;
// the Scheduler owns retry policy.
func NewOpenAIClient(config *Config, apiKey string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	opts := []ooption.RequestOption{
		ooption.WithAPIKey(strings.TrimSpace(apiKey)),
		ooption.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(config.BaseURL)))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), config: config}, nil
}

// Generate sends one request to OpenAI
func (c *OpenAIClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	modelName := c.config.GetModel(req.Tier())
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", req.Tier())
	}

	content := oresponses.ResponseInputMessageContentListParam{
		{OfInputText: &oresponses.ResponseInputTextParam{Text: req.Prompt()}},
	}
	for _, a := range req.Attachments() {
		if a.Label != "" {
			content = append(content, oresponses.ResponseInputContentUnionParam{
				OfInputText: &oresponses.ResponseInputTextParam{Text: a.Label},
			})
		}
		b64 := base64.StdEncoding.EncodeToString(a.Data)
		if strings.HasPrefix(a.MIMEType, "image/") {
			content = append(content, oresponses.ResponseInputContentUnionParam{
				OfInputImage: &oresponses.ResponseInputImageParam{
					Detail:   oresponses.ResponseInputImageDetailAuto,
					ImageURL: openai.String("data:" + a.MIMEType + ";base64," + b64),
				},
			})
			continue
		}
		fp := oresponses.ResponseInputFileParam{
			FileData: openai.String("data:" + a.MIMEType + ";base64," + b64),
			Filename: openai.String(attachmentFilename(a)),
		}
		content = append(content, oresponses.ResponseInputContentUnionParam{OfInputFile: &fp})
	}

	params := oresponses.ResponseNewParams{
		Model:           oshared.ResponsesModel(modelName),
		MaxOutputTokens: openai.Int(c.config.maxOutputTokens()),
		Temperature:     openai.Float(float64(c.config.Temperature)),
		Input: oresponses.ResponseNewParamsInputUnion{OfInputItemList: oresponses.ResponseInputParam{
			oresponses.ResponseInputItemParamOfMessage(content, oresponses.EasyInputMessageRoleUser),
		}},
	}
	if req.JSON() {
		obj := oshared.NewResponseFormatJSONObjectParam()
		params.Text = oresponses.ResponseTextConfigParam{
			Format: oresponses.ResponseFormatTextConfigUnionParam{OfJSONObject: &obj},
		}
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.OutputText()
	if strings.TrimSpace(text) == "" {
		return nil, &apperr.ProtocolError{
			Kind:  apperr.KindMalformedUpstream,
			Cause: fmt.Errorf("no text in response (status %s)", resp.Status),
		}
	}
	return &Response{
		Text:         text,
		Model:        modelName,
		PromptTokens: int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		FinishReason: string(resp.Status),
	}, nil
}

// GetModel returns the model name for a tier
func (c *OpenAIClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close is a no-op; the HTTP client holds no resources.
func (c *OpenAIClient) Close() error { return nil }

func attachmentFilename(a Attachment) string {
	ext := "bin"
	if i := strings.LastIndex(a.MIMEType, "/"); i >= 0 && i < len(a.MIMEType)-1 {
		ext = a.MIMEType[i+1:]
	}
	return "attachment." + ext
}
