package transport

import "fmt"

// breakerOpenError reports that a dial was rejected by an open circuit
// breaker before any network attempt was made.
type breakerOpenError struct {
	addr string
}

func (e *breakerOpenError) Error() string {
	return fmt.Sprintf("transport: circuit breaker open for %s", e.addr)
}

func errBreakerOpen(addr string) error {
	return &breakerOpenError{addr: addr}
}
