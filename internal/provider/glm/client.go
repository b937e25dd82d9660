package glm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"

	"github.com/xianjianshenqu/health-report-analyzer/internal/extract"
	"github.com/xianjianshenqu/health-report-analyzer/internal/provider"
)

// DefaultBaseURL is the OpenAI-compatible endpoint of the GLM open platform.
const DefaultBaseURL = "https://open.bigmodel.cn/api/paas/v4"

// Config carries GLM client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client implements provider.Client against the GLM chat completions API.
type Client struct {
	api     *openai.Client
	model   string
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
}

// NewClient constructs a GLM client. The breaker trips only after a
// sustained failure ratio so ordinary retry sequences pass through.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GLM_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("PROVIDER_MODEL is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = baseURL

	breaker := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:    "glm",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// Non-transient failures are the caller's problem, not the
			// provider's health.
			return err == nil || !provider.IsTransient(err)
		},
	})

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		breaker: breaker,
	}, nil
}

// AnalyzeReport sends the extracted report text for analysis and returns
// the raw JSON payload produced by the model.
func (c *Client) AnalyzeReport(ctx context.Context, content extract.Content) (json.RawMessage, error) {
	return c.breaker.Execute(func() (json.RawMessage, error) {
		return c.analyzeOnce(ctx, content)
	})
}

func (c *Client) analyzeOnce(ctx context.Context, content extract.Content) (json.RawMessage, error) {
	temp := float32(0.2)
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(content)},
		},
		Temperature: temp,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, provider.NewTransient(0, errors.New("response missing choices"))
	}

	raw := stripFences(resp.Choices[0].Message.Content)
	if raw == "" {
		return nil, provider.NewTransient(0, errors.New("response empty content"))
	}
	if !json.Valid([]byte(raw)) {
		return nil, provider.NewNonTransient(0, errors.New("response is not valid JSON"))
	}
	return json.RawMessage(raw), nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.NewTransient(0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return provider.NewTransient(0, err)
	}
	return provider.NewTransient(0, err)
}

func classifyStatus(status int, err error) error {
	switch {
	case status >= 500, status == 429, status == 408, status == 0:
		return provider.NewTransient(status, err)
	default:
		return provider.NewNonTransient(status, err)
	}
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var _ provider.Client = (*Client)(nil)
