package llm

import (
	"context"
	"errors"
	"time"

	"github.com/dataq/dataq/internal/observability"
)

// Instrument records request count and latency for every call on model.
func Instrument(provider string, model Model) Model {
	return ModelFunc(func(ctx context.Context, req Request) (Response, error) {
		start := time.Now()
		resp, err := model.Complete(ctx, req)
		observability.ObserveModelRequest(provider, requestStatus(err), time.Since(start))
		return resp, err
	})
}

func requestStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return "api_error"
	}
	var unreachable *UnreachableError
	if errors.As(err, &unreachable) {
		return "unreachable"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}
