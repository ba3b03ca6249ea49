package services

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Write paths surface these; read paths may degrade
// to an empty result with a logged error instead.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyResolved = errors.New("alert already resolved")
	ErrRepository      = errors.New("repository error")
)

// ProviderError is a structured notification-provider failure. Retryable
// failures (timeouts, 5xx-class responses, known transient error codes)
// are retried with backoff; terminal failures abort immediately.
type ProviderError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// IsRetryable reports whether a delivery failure is worth another attempt.
// Errors that are not ProviderErrors (network-level failures, timeouts)
// are treated as retryable.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return err != nil
}
