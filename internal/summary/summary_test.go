package summary

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/dataq/dataq/internal/llm"
	"github.com/dataq/dataq/internal/table"
)

func salesTable() table.Table {
	return table.Table{
		Columns: []table.Column{
			{Name: "region", Type: table.TypeString},
			{Name: "units", Type: table.TypeInt},
			{Name: "amount", Type: table.TypeFloat},
		},
		Rows: [][]any{
			{"north", int64(1), 10.0},
			{"south", int64(2), 20.0},
			{"north", int64(3), 30.0},
			{"east", int64(4), nil},
		},
	}
}

func TestDescribe(t *testing.T) {
	got := Describe([]float64{4, 1, 3, 2})
	if got.Count != 4 || got.Mean != 2.5 || got.Min != 1 || got.Max != 4 {
		t.Fatalf("Describe() = %+v", got)
	}
	if got.Q25 != 1.75 || got.Q50 != 2.5 || got.Q75 != 3.25 {
		t.Fatalf("quantiles = %v %v %v", got.Q25, got.Q50, got.Q75)
	}
	if math.Abs(got.Std-1.2909944487358056) > 1e-12 {
		t.Fatalf("Std = %v", got.Std)
	}
	if single := Describe([]float64{7}); !math.IsNaN(single.Std) || single.Q75 != 7 {
		t.Fatalf("Describe(single) = %+v", single)
	}
	if empty := Describe(nil); empty.Count != 0 || !math.IsNaN(empty.Mean) {
		t.Fatalf("Describe(nil) = %+v", empty)
	}
}

func TestPearson(t *testing.T) {
	x := []any{int64(1), int64(2), int64(3), nil}
	if got := Pearson(x, []any{2.0, 4.0, 6.0, 8.0}); math.Abs(got-1) > 1e-12 {
		t.Fatalf("Pearson(linear) = %v", got)
	}
	if got := Pearson(x, []any{3.0, 2.0, 1.0, 0.0}); math.Abs(got+1) > 1e-12 {
		t.Fatalf("Pearson(inverse) = %v", got)
	}
	if got := Pearson(x, []any{5.0, 5.0, 5.0, 5.0}); !math.IsNaN(got) {
		t.Fatalf("Pearson(constant) = %v, want NaN", got)
	}
}

func TestDigestSections(t *testing.T) {
	digest := Digest(salesTable())
	for _, want := range []string{
		"The table has 4 rows and 3 columns.",
		"Column Types:",
		"Descriptive Stats (numeric columns):",
		"Top categories for 'region':",
		"Correlation Matrix:",
		"Table Head (first 5 rows):",
		"NULL",
	} {
		if !strings.Contains(digest, want) {
			t.Fatalf("Digest() missing %q:\n%s", want, digest)
		}
	}
	if !strings.Contains(digest, "north  2") {
		t.Fatalf("Digest() should rank north first with count 2:\n%s", digest)
	}
}

func TestDigestWithoutNumericColumns(t *testing.T) {
	digest := Digest(table.Table{
		Columns: []table.Column{{Name: "name", Type: table.TypeString}},
		Rows:    [][]any{{"a"}},
	})
	if !strings.Contains(digest, "No numeric columns to describe.") {
		t.Fatalf("Digest() = %s", digest)
	}
	if !strings.Contains(digest, "Not enough numeric columns to compute correlation.") {
		t.Fatalf("Digest() = %s", digest)
	}
}

func TestDigestIsDeterministic(t *testing.T) {
	if Digest(salesTable()) != Digest(salesTable()) {
		t.Fatal("Digest() differs between calls")
	}
}

func TestGenerateSummary(t *testing.T) {
	var captured llm.Request
	model := llm.ModelFunc(func(_ context.Context, req llm.Request) (llm.Response, error) {
		captured = req
		return llm.Response{Content: "<think>hidden</think>\n  Sales are concentrated in the north.  "}, nil
	})

	got, err := New(model, 0.2, 1024).GenerateSummary(context.Background(), salesTable())
	if err != nil {
		t.Fatalf("GenerateSummary() error = %v", err)
	}
	if got != "Sales are concentrated in the north." {
		t.Fatalf("GenerateSummary() = %q", got)
	}
	if captured.Temperature != 0.2 || captured.MaxTokens != 1024 {
		t.Fatalf("request = %+v", captured)
	}
	if len(captured.Messages) != 2 || !strings.Contains(captured.Messages[1].Content, "The table has 4 rows") {
		t.Fatalf("messages = %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[0].Content, "do not reveal internal reasoning") {
		t.Fatalf("system prompt = %q", captured.Messages[0].Content)
	}
}

func TestGenerateSummaryPropagatesModelError(t *testing.T) {
	boom := errors.New("model offline")
	model := llm.ModelFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, boom
	})
	if _, err := New(model, 0.2, 1024).GenerateSummary(context.Background(), salesTable()); !errors.Is(err, boom) {
		t.Fatalf("GenerateSummary() error = %v, want %v", err, boom)
	}
}
