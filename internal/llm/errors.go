// Package llm holds provider-neutral pieces shared by the chat model adapters.
package llm

import "fmt"

// StatusError carries the HTTP status a model provider answered with, so the
// orchestrator can tell quota, credential and other failures apart.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
