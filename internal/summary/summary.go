// Package summary turns a result table into a short written narrative.
package summary

import (
	"context"
	"fmt"

	"github.com/dataq/dataq/internal/llm"
	"github.com/dataq/dataq/internal/table"
)

const systemPrompt = `You are a data analysis assistant.
Given a table's metadata and a preview of its contents, create a thorough written summary.

1. Focus on interesting observations about columns, row counts, data types, descriptive stats, and correlations.
2. Mention potential patterns or trends if they are visible in the data.
3. Keep the summary coherent and do not reveal internal reasoning steps. Only provide the final summarized output.`

const userPrefix = "Please generate a concise but thorough summary of the data provided. Use the following context:\n\n"

type Generator struct {
	model       llm.Model
	temperature float64
	maxTokens   int
}

func New(model llm.Model, temperature float64, maxTokens int) *Generator {
	return &Generator{model: model, temperature: temperature, maxTokens: maxTokens}
}

func (g *Generator) GenerateSummary(ctx context.Context, t table.Table) (string, error) {
	resp, err := g.model.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage(systemPrompt),
			llm.UserMessage(userPrefix + Digest(t)),
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return llm.StripReasoning(resp.Content), nil
}
