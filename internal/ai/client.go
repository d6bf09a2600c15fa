package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"mintoons-server/internal/models"
)

// Per-million-token prices used for the estimated cost accounting.
const (
	pricePerMillionInputTokensUSD  = 0.15
	pricePerMillionOutputTokensUSD = 0.60
)

// ErrGenerationFailed wraps any provider-side failure.
var ErrGenerationFailed = errors.New("AI text generation failed")

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintoons_ai_requests_total",
			Help: "Total number of requests to AI providers.",
		},
		[]string{"provider", "model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mintoons_ai_request_duration_seconds",
			Help:    "Histogram of AI provider request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)
	aiTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintoons_ai_tokens_used_total",
			Help: "Total AI tokens consumed, prompt and completion combined.",
		},
		[]string{"provider", "model"},
	)
	aiEstimatedCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintoons_ai_estimated_cost_usd_total",
			Help: "Estimated total cost of AI requests in USD.",
		},
		[]string{"provider", "model"},
	)
)

// Usage reports token consumption and estimated cost of one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD float64
}

// Client generates text from a system prompt plus user input.
type Client interface {
	GenerateText(ctx context.Context, systemPrompt, userInput string) (string, Usage, error)
}

// calculateCost estimates the request cost from token counts.
func calculateCost(promptTokens, completionTokens int) float64 {
	inputCost := float64(promptTokens) * pricePerMillionInputTokensUSD / 1_000_000.0
	outputCost := float64(completionTokens) * pricePerMillionOutputTokensUSD / 1_000_000.0
	return inputCost + outputCost
}

// EstimateTokens approximates the token count of text for the model.
// Falls back to a bytes/4 heuristic when no tokenizer is available.
func EstimateTokens(model, text string) int {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return len(text) / 4
	}
	return len(tke.Encode(text, nil, nil))
}

// --- OpenAI client ---

type openAIClient struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient builds a Client backed by the OpenAI chat API. The key
// comes from the admin-managed key pool, decrypted per request batch.
func NewOpenAIClient(apiKey, model, baseURL string, timeout time.Duration, logger *zap.Logger) Client {
	cfg := openaigo.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &openAIClient{
		client: openaigo.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.Named("OpenAIClient"),
	}
}

func (c *openAIClient) GenerateText(ctx context.Context, systemPrompt, userInput string) (string, Usage, error) {
	usage := Usage{}
	if strings.TrimSpace(systemPrompt) == "" {
		return "", usage, fmt.Errorf("%w: empty system prompt", ErrGenerationFailed)
	}

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: userInput,
		})
	}

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("OpenAI request failed", zap.Error(err), zap.Duration("duration", duration))
		aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": c.model, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": c.model, "status": "error_empty_response"}).Inc()
		return "", usage, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": c.model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"provider": "openai", "model": c.model}).Observe(duration.Seconds())

	text := resp.Choices[0].Message.Content
	if resp.Usage.TotalTokens > 0 {
		usage.PromptTokens = resp.Usage.PromptTokens
		usage.CompletionTokens = resp.Usage.CompletionTokens
		usage.TotalTokens = resp.Usage.TotalTokens
	} else {
		// Some compatible backends omit usage; estimate with tiktoken.
		usage.PromptTokens = EstimateTokens(c.model, systemPrompt) + EstimateTokens(c.model, userInput)
		usage.CompletionTokens = EstimateTokens(c.model, text)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	usage.EstimatedCostUSD = calculateCost(usage.PromptTokens, usage.CompletionTokens)

	aiTokensUsed.With(prometheus.Labels{"provider": "openai", "model": c.model}).Add(float64(usage.TotalTokens))
	if usage.EstimatedCostUSD > 0 {
		aiEstimatedCostUSD.With(prometheus.Labels{"provider": "openai", "model": c.model}).Add(usage.EstimatedCostUSD)
	}

	c.logger.Debug("OpenAI request completed",
		zap.Duration("duration", duration),
		zap.Int("totalTokens", usage.TotalTokens))
	return text, usage, nil
}

// --- Ollama client ---

type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOllamaClient builds a Client backed by a local Ollama instance.
func NewOllamaClient(host, model string, timeout time.Duration, logger *zap.Logger) (Client, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(host, "/v1"), "/")
	parsedURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama host %q: %w", host, err)
	}
	return &ollamaClient{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: timeout}),
		model:   model,
		timeout: timeout,
		logger:  logger.Named("OllamaClient"),
	}, nil
}

func (c *ollamaClient) GenerateText(ctx context.Context, systemPrompt, userInput string) (string, Usage, error) {
	// Ollama is self-hosted, so cost stays zero.
	usage := Usage{}
	if strings.TrimSpace(systemPrompt) == "" {
		return "", usage, fmt.Errorf("%w: empty system prompt", ErrGenerationFailed)
	}

	messages := []api.Message{{Role: "system", Content: systemPrompt}}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Ollama request failed", zap.Error(err), zap.Duration("duration", duration))
		aiRequestsTotal.With(prometheus.Labels{"provider": "ollama", "model": c.model, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		aiRequestsTotal.With(prometheus.Labels{"provider": "ollama", "model": c.model, "status": "error_empty_response"}).Inc()
		return "", usage, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"provider": "ollama", "model": c.model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"provider": "ollama", "model": c.model}).Observe(duration.Seconds())

	usage.PromptTokens = resp.PromptEvalCount
	usage.CompletionTokens = resp.EvalCount
	usage.TotalTokens = resp.PromptEvalCount + resp.EvalCount
	if usage.TotalTokens > 0 {
		aiTokensUsed.With(prometheus.Labels{"provider": "ollama", "model": c.model}).Add(float64(usage.TotalTokens))
	}
	return resp.Message.Content, usage, nil
}

// --- Factory ---

// Factory builds clients for a provider using a decrypted API key.
type Factory struct {
	Model      string
	BaseURL    string
	OllamaHost string
	Timeout    time.Duration
	Logger     *zap.Logger
}

// ClientFor returns a Client for the provider. OpenAI needs the key;
// Ollama ignores it.
func (f *Factory) ClientFor(provider models.AIProvider, apiKey string) (Client, error) {
	switch provider {
	case models.ProviderOpenAI:
		return NewOpenAIClient(apiKey, f.Model, f.BaseURL, f.Timeout, f.Logger), nil
	case models.ProviderOllama:
		return NewOllamaClient(f.OllamaHost, f.Model, f.Timeout, f.Logger)
	default:
		return nil, fmt.Errorf("unknown AI provider: %q", provider)
	}
}
