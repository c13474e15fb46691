package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dataq/dataq/internal/llm"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func fixedModel(content string, captured *llm.Request) llm.Model {
	return llm.ModelFunc(func(_ context.Context, req llm.Request) (llm.Response, error) {
		if captured != nil {
			*captured = req
		}
		return llm.Response{Content: content}, nil
	})
}

func TestClassifySendsQuestionAtZeroTemperature(t *testing.T) {
	var captured llm.Request
	c := New(fixedModel("  Prediction \n", &captured), 0, nil)
	got, err := c.Classify(context.Background(), "forecast sales for next month")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got != Prediction {
		t.Fatalf("Classify() = %q, want prediction", got)
	}
	if captured.Temperature != 0 {
		t.Fatalf("temperature = %v", captured.Temperature)
	}
	if len(captured.Messages) != 2 || !strings.Contains(captured.Messages[1].Content, "forecast sales for next month") {
		t.Fatalf("messages = %+v", captured.Messages)
	}
}

func TestClassifyMatchesInsideReasoningBlock(t *testing.T) {
	raw := "<think>The user asks for a prediction of next month.</think>\nanalysis"
	c := New(fixedModel(raw, nil), 0, nil)
	got, err := c.Classify(context.Background(), "sales next month")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got != Prediction {
		t.Fatalf("Classify() = %q, want prediction", got)
	}
	if got != Normalize(raw) {
		t.Fatalf("Classify() = %q, Normalize() = %q", got, Normalize(raw))
	}
}

func TestClassifyPropagatesModelFailure(t *testing.T) {
	boom := errors.New("model down")
	c := New(llm.ModelFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, boom
	}), 0, nil)
	if _, err := c.Classify(context.Background(), "q"); !errors.Is(err, boom) {
		t.Fatalf("Classify() error = %v, want %v", err, boom)
	}
}

func TestNormalizeExamples(t *testing.T) {
	tests := map[string]Classification{
		"analysis":                    Analysis,
		"PREDICTION":                  Prediction,
		"I think this is a Prediction": Prediction,
		"":                            Analysis,
		"forecast":                    Analysis,
		"predict":                     Analysis,
	}
	for raw, want := range tests {
		if got := Normalize(raw); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestReportTitle(t *testing.T) {
	if Prediction.ReportTitle() != "Prediction Report" {
		t.Fatalf("Prediction.ReportTitle() = %q", Prediction.ReportTitle())
	}
	if Analysis.ReportTitle() != "Analysis Report" {
		t.Fatalf("Analysis.ReportTitle() = %q", Analysis.ReportTitle())
	}
}

func TestNormalizeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	casing := gen.OneConstOf("prediction", "PREDICTION", "Prediction", "pReDiCtIoN")

	properties.Property("any text containing prediction classifies as prediction", prop.ForAll(
		func(prefix, word, suffix string) bool {
			return Normalize(prefix+word+suffix) == Prediction
		},
		gen.AnyString(), casing, gen.AnyString(),
	))

	properties.Property("text without prediction defaults to analysis", prop.ForAll(
		func(raw string) bool {
			return Normalize(raw) == Analysis
		},
		gen.AnyString().SuchThat(func(s string) bool {
			return !strings.Contains(strings.ToLower(s), "prediction")
		}),
	))

	properties.TestingRun(t)
}

func TestClassifyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	classify := func(raw string) Classification {
		got, err := New(fixedModel(raw, nil), 0, nil).Classify(context.Background(), "question")
		if err != nil {
			return ""
		}
		return got
	}

	properties.Property("model output containing prediction classifies as prediction", prop.ForAll(
		func(prefix, word, suffix string) bool {
			return classify(prefix+word+suffix) == Prediction
		},
		gen.AnyString(), gen.OneConstOf("prediction", "PREDICTION", "<think>prediction</think>"), gen.AnyString(),
	))

	properties.Property("classify agrees with normalize on the raw output", prop.ForAll(
		func(raw string) bool {
			return classify(raw) == Normalize(raw)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
