// Package classify tags a question as an analysis or a prediction request.
package classify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dataq/dataq/internal/llm"
)

type Classification string

const (
	Analysis   Classification = "analysis"
	Prediction Classification = "prediction"
)

// ReportTitle is the heading used for reports of this kind.
func (c Classification) ReportTitle() string {
	if c == Prediction {
		return "Prediction Report"
	}
	return "Analysis Report"
}

const systemPrompt = `You are a classification assistant.
Given the user question, respond ONLY with one word, either 'analysis' or 'prediction'.
Decide whether the user wants a prediction or forecast, or an analysis of existing data.`

type Classifier struct {
	model       llm.Model
	temperature float64
	logger      *slog.Logger
}

func New(model llm.Model, temperature float64, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Classifier{model: model, temperature: temperature, logger: logger}
}

func (c *Classifier) Classify(ctx context.Context, question string) (Classification, error) {
	resp, err := c.model.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage(systemPrompt),
			llm.UserMessage("User question: " + question),
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("classify request: %w", err)
	}
	// The whole answer counts, reasoning blocks included.
	result := Normalize(resp.Content)
	answer := llm.StripReasoning(resp.Content)
	if normalized := strings.ToLower(strings.TrimSpace(answer)); normalized != string(Analysis) && normalized != string(Prediction) {
		c.logger.DebugContext(ctx, "classification_defaulted",
			slog.String("raw", answer),
			slog.String("classification", string(result)),
		)
	}
	return result, nil
}

// Normalize applies the unknown-defaults-to-analysis policy: any answer
// mentioning "prediction" is a prediction, everything else is an analysis.
func Normalize(raw string) Classification {
	if strings.Contains(strings.ToLower(strings.TrimSpace(raw)), string(Prediction)) {
		return Prediction
	}
	return Analysis
}
