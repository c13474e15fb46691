// Package llm talks to generative chat models. Callers build role-structured
// requests and get plain text back; transport, retries and provider-specific
// error shapes stay behind the Model interface.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dataq/dataq/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	Temperature float64
	// MaxTokens of zero leaves the provider default.
	MaxTokens int
}

type Response struct {
	Content string
	Model   string
}

type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) (Response, error)

func (f ModelFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// New builds the configured provider client wrapped with request metrics.
func New(cfg config.AIConfig) (Model, error) {
	var (
		model Model
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.ProviderOpenAI:
		model, err = NewOpenAIClient(OpenAIConfig{
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Timeout:  cfg.Timeout,
			RetryMax: cfg.RetryMax,
		})
	case config.ProviderOllama:
		model, err = NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(strings.ToLower(cfg.Provider), model), nil
}

var reasoningBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes <think>...</think> blocks emitted by reasoning
// models. An unterminated block drops everything after its opening tag.
func StripReasoning(content string) string {
	content = reasoningBlockPattern.ReplaceAllString(content, "")
	if idx := strings.Index(content, "<think>"); idx >= 0 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}

func validateRequest(req Request) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("messages cannot be empty")
	}
	return nil
}

func defaultTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 5 * time.Minute
	}
	return timeout
}
