package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const serviceName = "llm"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a chat completion call.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Completer produces a completion for a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewClient builds a client from cfg.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		timeout:  cfg.Timeout(),
		logger:   logger,
	}
}

// Complete sends prompt as a single user message and returns the first
// choice. Every failure is an EXTERNAL_SERVICE_ERROR.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.NewExternalServiceError(serviceName, err)
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return "", apperrors.NewExternalServiceError(serviceName, context.DeadlineExceeded)
	}

	req := ChatRequest{
		Model:       c.model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		TopP:        0.95,
	}
	agent := fiber.Post(c.endpoint).
		Set(fiber.HeaderAuthorization, "Bearer "+c.apiKey).
		JSON(req).
		Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return "", apperrors.NewExternalServiceError(serviceName, err)
	}

	started := time.Now()
	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return "", apperrors.NewExternalServiceError(serviceName, errors.Join(errs...))
	}
	c.logger.Debug("llm call",
		zap.Int("status", status),
		zap.Duration("latency", time.Since(started)))

	return parseChatResponse(status, body)
}

func parseChatResponse(status int, body []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.NewExternalServiceError(serviceName, fmt.Errorf("decode response (status %d): %w", status, err))
	}
	if status >= fiber.StatusBadRequest {
		msg := fmt.Sprintf("status %d", status)
		if resp.Error != nil && resp.Error.Message != "" {
			msg += ": " + resp.Error.Message
		}
		return "", apperrors.NewExternalServiceError(serviceName, errors.New(msg))
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewExternalServiceError(serviceName, errors.New("no choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

// ExtractJSONObject returns the text between the first '{' and the last '}'.
func ExtractJSONObject(text string) ([]byte, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errors.New("no JSON object in completion")
	}
	return []byte(text[start : end+1]), nil
}
