package limiter

import "errors"

// ErrStoreUnavailable is returned when the counter store could not be reached
// or errored after retries. It is never converted into a rate-limit
// rejection; callers decide between failing the request and allowing it via
// Config.SkipFailedRequests.
var ErrStoreUnavailable = errors.New("limiter: counter store unavailable")

// ErrCircuitOpen is returned when the breaker short-circuits a call without
// contacting the store. It is a specialization of ErrStoreUnavailable:
// errors.Is(err, ErrStoreUnavailable) also holds for it.
var ErrCircuitOpen error = circuitOpenError{}

type circuitOpenError struct{}

func (circuitOpenError) Error() string { return "limiter: circuit breaker open" }

func (circuitOpenError) Is(target error) bool { return target == ErrStoreUnavailable }

// wrapUnavailable marks cause as a store availability failure while keeping
// it reachable through errors.Unwrap.
func wrapUnavailable(cause error) error {
	return storeUnavailableError{cause: cause}
}

type storeUnavailableError struct{ cause error }

func (e storeUnavailableError) Error() string {
	return ErrStoreUnavailable.Error() + ": " + e.cause.Error()
}

func (e storeUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

func (e storeUnavailableError) Unwrap() error { return e.cause }
