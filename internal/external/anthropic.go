package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"codetutor/internal/types"
)

const (
	anthropicAPIBase = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// CompletionRequest is a single-turn prompt sent to the model.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Completion is the text returned by the model plus accounting data.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// AnthropicClientConfig holds the configuration for an AnthropicClient.
type AnthropicClientConfig struct {
	APIKey  types.SecretString
	Model   string
	BaseURL string // defaults to anthropicAPIBase
	Logger  *slog.Logger
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// AnthropicClient calls the Anthropic Messages API through BaseClient.
type AnthropicClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	model   string
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

// NewAnthropicClient creates an AnthropicClient. The httpClient timeout bounds
// a single attempt; generation of long explanations can take tens of seconds.
func NewAnthropicClient(httpClient *http.Client, cfg AnthropicClientConfig) *AnthropicClient {
	base := NewBaseClient(
		httpClient,
		"anthropic",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    time.Second,
			MaxWait:    10 * time.Second,
		},
		"CodeTutor/1.0",
	)
	return NewAnthropicClientWithBase(base, cfg)
}

// NewAnthropicClientWithBase creates an AnthropicClient with a pre-configured
// BaseClient.
func NewAnthropicClientWithBase(base *BaseClient, cfg AnthropicClientConfig) *AnthropicClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicClient{
		base:    base,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

// Model returns the model identifier requests are sent with.
func (c *AnthropicClient) Model() string { return c.model }

// Complete sends one user message and returns the concatenated text blocks
// of the reply.
func (c *AnthropicClient) Complete(ctx context.Context, in CompletionRequest) (*Completion, error) {
	if in.Prompt == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "prompt is required", nil)
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: in.MaxTokens,
		System:    in.System,
		Messages:  []anthropicMessage{{Role: "user", Content: in.Prompt}},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize message request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create message request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey.Unmask())
	req.Header.Set("anthropic-version", anthropicVersion)

	start := c.now()
	resp, err := c.base.Do(req)
	if err != nil {
		return nil, wrapError("anthropic", "CreateMessage", err, types.ErrCodeUpstreamAnthropic)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(ctx, resp)
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnthropic, "failed to decode message response", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnthropic, "model returned no text content", nil)
	}

	completion := &Completion{
		Text:         text.String(),
		Model:        out.Model,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		Duration:     c.now().Sub(start),
	}
	if completion.Model == "" {
		completion.Model = c.model
	}

	c.logger.InfoContext(ctx, "anthropic message completed",
		"model", completion.Model,
		"input_tokens", completion.InputTokens,
		"output_tokens", completion.OutputTokens,
		"duration_ms", completion.Duration.Milliseconds(),
	)

	return completion, nil
}

func (c *AnthropicClient) handleErrorResponse(ctx context.Context, resp *http.Response) *types.AppError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body anthropicErrorBody
	msg := string(raw)
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		msg = body.Error.Type + ": " + body.Error.Message
	}

	c.logger.ErrorContext(ctx, "anthropic API error",
		"status_code", resp.StatusCode,
		"error", msg,
	)

	return types.NewAppError(
		types.ErrCodeUpstreamAnthropic,
		fmt.Sprintf("AI service rejected the request (%d)", resp.StatusCode),
		fmt.Errorf("anthropic returned %d: %s", resp.StatusCode, msg),
	)
}
