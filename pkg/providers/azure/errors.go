package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

// classify maps an Azure SDK failure onto the engine's error classes so the
// executor can decide between retrying and aborting: 429 throttles, 5xx and
// timeouts retry, conflicts retry, everything else is permanent.
func classify(err error, resource, operation string) error {
	if err == nil {
		return nil
	}

	message := fmt.Sprintf("azure %s failed", operation)

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusTooManyRequests:
			return engine.NewThrottledError(message, err).
				WithCode(engine.ErrCodeRateLimited).
				WithResource(resource).WithOperation(operation)
		case respErr.StatusCode == http.StatusConflict:
			return engine.NewConflictError(message, err).
				WithCode(engine.ErrCodeProvider).
				WithResource(resource).WithOperation(operation)
		case respErr.StatusCode == http.StatusNotFound:
			return engine.NewPermanentError(message, err).
				WithCode(engine.ErrCodeNotFound).
				WithResource(resource).WithOperation(operation)
		case respErr.StatusCode >= 500:
			return engine.NewTransientError(message, err).
				WithCode(engine.ErrCodeProvider).
				WithResource(resource).WithOperation(operation)
		default:
			return engine.NewPermanentError(message, err).
				WithCode(engine.ErrCodeProvider).
				WithResource(resource).WithOperation(operation)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return engine.NewTransientError(message, err).
			WithCode(engine.ErrCodeTimeout).
			WithResource(resource).WithOperation(operation)
	}

	return engine.NewPermanentError(message, err).
		WithCode(engine.ErrCodeProvider).
		WithResource(resource).WithOperation(operation)
}

// isNotFound reports whether an SDK error is a 404.
func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
