package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoProvidersConfigured is returned by Chat when the orchestrator has no
// providers loaded at all (§4.1).
var ErrNoProvidersConfigured = errors.New("orchestrator: no providers configured")

// AllProvidersFailedError is the aggregate raised once every provider in
// priority order has failed. It preserves the attempted list and the last
// error observed, per §4.1 step 5.
type AllProvidersFailedError struct {
	Attempted []string
	LastErr   error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("orchestrator: all providers failed (attempted: %s): %v",
		strings.Join(e.Attempted, ", "), e.LastErr)
}

func (e *AllProvidersFailedError) Unwrap() error {
	return e.LastErr
}

// IsAllProvidersFailed reports whether err is an *AllProvidersFailedError,
// following errors.As rather than a type switch so wrapped errors still match.
func IsAllProvidersFailed(err error) bool {
	var target *AllProvidersFailedError
	return errors.As(err, &target)
}
