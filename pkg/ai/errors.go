package ai

import (
	"errors"
	"fmt"
	"net/http"

	"casedoc/pkg/domain"
)

// APIError is a non-2xx response from an AI provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s api error (%d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s api error: %d %s", e.Provider, e.StatusCode, http.StatusText(e.StatusCode))
}

var (
	// ErrRateLimited is reported when the provider answered 429.
	ErrRateLimited = errors.New("rate limit exceeded, try again later")
	// ErrQuotaExhausted is reported when the provider answered 402.
	ErrQuotaExhausted = errors.New("provider credits exhausted")
)

// serviceError wraps any adapter error as domain.ErrServiceFailure, keeping
// the rate-limit and quota cases distinguishable.
func serviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrServiceFailure) {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrServiceFailure, ErrRateLimited)
		case http.StatusPaymentRequired:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrServiceFailure, ErrQuotaExhausted)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrServiceFailure, err)
}
