package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/recovery"
)

// OpenAIClient wraps the OpenAI API client.
// Every error it returns carries a recovery.Kind.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      logger.Logger
}

// Config for OpenAI client
type Config struct {
	APIKey      string
	BaseURL     string        // empty for api.openai.com
	Model       string        // default: gpt-4o-mini
	Temperature float32       // default: 0.7
	MaxTokens   int           // default: 800
	Timeout     time.Duration // default: 30s
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(cfg Config, log logger.Logger) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 800
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      log.With("component", "llm", "model", cfg.Model),
	}
}

// OllamaConfig for a local Ollama server, which speaks the OpenAI API
type OllamaConfig struct {
	BaseURL     string  // default: http://localhost:11434/v1
	Model       string  // default: llama3.1:8b
	Temperature float32 // default: 0.7
	MaxTokens   int     // default: 800
}

// NewOllamaClient creates a client for an Ollama server
func NewOllamaClient(cfg OllamaConfig, log logger.Logger) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1:8b"
	}
	return NewOpenAIClient(Config{
		APIKey:      "ollama", // not checked by Ollama
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     2 * time.Minute,
	}, log)
}

// Chat sends a chat completion request
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	duration := time.Since(start)

	if err != nil {
		kind := kindOf(err)
		c.logger.Warn("chat completion failed", "kind", kind, "duration", duration, "error", err)
		return nil, recovery.Wrap(kind, "openai chat", err)
	}

	if len(resp.Choices) == 0 {
		return nil, recovery.Wrap(recovery.KindUnknown, "openai chat", errors.New("no choices in response"))
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, recovery.Wrap(recovery.KindContentFiltered, "openai chat", fmt.Errorf("finish reason %s", choice.FinishReason))
	}

	c.logger.Debug("chat completion finished",
		"tokens", resp.Usage.TotalTokens,
		"finish_reason", choice.FinishReason,
		"duration", duration,
	)

	return &ChatResponse{
		Message:      choice.Message.Content,
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// kindOf maps go-openai errors onto the recovery taxonomy
func kindOf(err error) recovery.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return recovery.KindTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		if k := recovery.KindForStatus(apiErr.HTTPStatusCode, code); k != recovery.KindUnknown {
			return k
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if k := recovery.KindForStatus(reqErr.HTTPStatusCode, ""); k != recovery.KindUnknown {
			return k
		}
	}

	return recovery.Classify(err)
}
