package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaClient runs chat completions against a local Ollama runtime.
type OllamaClient struct {
	host   string
	model  string
	client *api.Client
}

func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	rawURL := strings.TrimSpace(cfg.BaseURL)
	if rawURL == "" {
		rawURL = "http://127.0.0.1:11434"
	}
	base, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ollama base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama base URL %q must include scheme and host", rawURL)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &OllamaClient{
		host:   base.Host,
		model:  model,
		client: api.NewClient(base, &http.Client{Timeout: defaultTimeout(cfg.Timeout)}),
	}, nil
}

func (c *OllamaClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := validateRequest(req); err != nil {
		return Response{}, err
	}
	messages := make([]api.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, api.Message{Role: msg.Role, Content: msg.Content})
	}
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	var content strings.Builder
	model := c.model
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Model != "" {
			model = resp.Model
		}
		return nil
	})
	if err != nil {
		return Response{}, c.mapError(ctx, err)
	}
	return Response{Content: content.String(), Model: model}, nil
}

func (c *OllamaClient) mapError(ctx context.Context, err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &APIError{StatusCode: statusErr.StatusCode, Message: statusErr.ErrorMessage}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &UnreachableError{Host: c.host, Err: err}
	}
	return fmt.Errorf("ollama chat: %w", err)
}
