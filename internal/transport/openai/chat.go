package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/profdex/internal/domain"
	"github.com/kailas-cloud/profdex/internal/metrics"
)

// ChatClient issues JSON-mode chat completions for query rewriting and reranking.
type ChatClient struct {
	client      *openai.Client
	model       string
	temperature float32
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// ChatConfig holds the generation provider settings.
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	// RateLimitRPS caps outgoing requests per second; 0 means unlimited.
	RateLimitRPS float64
	MaxRetries   int
	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	// Zero keeps the retryablehttp defaults.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *zap.Logger
}

// NewChatClient creates an OpenAI-compatible chat completion client.
// 429, 5xx and transport failures are retried by the HTTP client up to MaxRetries times.
func NewChatClient(cfg *ChatConfig) *ChatClient {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = max(0, cfg.MaxRetries)
	if cfg.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = cfg.RetryWaitMax
	}
	retryClient.Logger = nil
	// hand the last response back so go-openai can decode the provider error
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Debug("Retrying chat completion",
				zap.Int("attempt", attempt), zap.String("model", cfg.Model), zap.String("url", req.URL.Path))
		}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = retryClient.StandardClient()

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimitRPS > 0 {
		burst := max(1, int(cfg.RateLimitRPS))
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	return &ChatClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		limiter:     limiter,
		logger:      logger,
	}
}

// CompleteJSON sends a system+user prompt and returns the assistant content,
// asking the model for a JSON object. Markdown code fences are stripped.
// Errors wrap domain.ErrGenerationUnavailable.
func (c *ChatClient) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("chat completion rate limit wait: %w: %w", domain.ErrGenerationUnavailable, err)
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return "", wrapAPIError("chat", err, domain.ErrGenerationUnavailable)
	}
	return content, nil
}

func (c *ChatClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", err //nolint:wrapcheck // wrapped by CompleteJSON
	}
	metrics.GenerationRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(c.model, "empty").Inc()
		return "", errEmptyCompletion
	}
	metrics.GenerationRequestsTotal.WithLabelValues(c.model, "success").Inc()
	return stripCodeFence(resp.Choices[0].Message.Content), nil
}

// stripCodeFence removes the markdown fences some models wrap JSON output in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var errEmptyCompletion = errors.New("empty chat completion")
