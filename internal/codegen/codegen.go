// Package codegen asks the model for a DuckDB SQL snippet answering a
// question over the input table df.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dataq/dataq/internal/llm"
)

const (
	InputTable  = "df"
	ResultTable = "result_df"
)

// ErrNoCodeBlock is returned when the model answer has no fenced sql block.
var ErrNoCodeBlock = errors.New("no valid SQL code block found in response")

const systemPromptTemplate = `You are a SQL data analysis AND forecasting expert working in DuckDB.
- You have a table called 'df' with columns: %s.
- The user can ask ANY type of question: filtering, grouping, aggregation, sorting, or even PREDICTION/FORECAST.
- If the user asks for predictions or forecasting, write SQL that fits a simple model (for example regr_slope and regr_intercept) and produces predicted values in 'result_df'.
- If the user asks for standard analysis, filter and aggregate so the new data answers the question rather than only summarising it.
- Always store the final output with CREATE TABLE result_df AS ...
- The code must be valid DuckDB SQL, enclosed in a single ` + "```sql" + ` code block.
- Never modify, drop or replace 'df'; intermediate tables or views are allowed.`

// codeBlockPattern matches one fenced block; group 1 is the info string.
var codeBlockPattern = regexp.MustCompile("(?s)```([^`\\r\\n]*)\\r?\\n(.*?)```")

type Generator struct {
	model       llm.Model
	temperature float64
}

func New(model llm.Model, temperature float64) *Generator {
	return &Generator{model: model, temperature: temperature}
}

// GenerateCode returns the snippet extracted from the model answer.
func (g *Generator) GenerateCode(ctx context.Context, question string, columns []string) (string, error) {
	resp, err := g.model.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage(SystemPrompt(columns)),
			llm.UserMessage("User question: " + question),
		},
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return ExtractCode(resp.Content)
}

func SystemPrompt(columns []string) string {
	return fmt.Sprintf(systemPromptTemplate, strings.Join(columns, ", "))
}

// ExtractCode returns the trimmed body of the first fenced block tagged sql
// or duckdb, in any case, or left untagged. Reasoning blocks are ignored.
func ExtractCode(raw string) (string, error) {
	for _, match := range codeBlockPattern.FindAllStringSubmatch(llm.StripReasoning(raw), -1) {
		switch strings.ToLower(strings.TrimSpace(match[1])) {
		case "", "sql", "duckdb":
			return strings.TrimSpace(match[2]), nil
		}
	}
	return "", ErrNoCodeBlock
}
