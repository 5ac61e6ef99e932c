package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/zhouzirui/digital-twin/backend/internal/llm"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want failureKind
	}{
		{"status 429", &llm.StatusError{StatusCode: 429, Err: errors.New("x")}, failureRateLimit},
		{"status 403", &llm.StatusError{StatusCode: 403, Err: errors.New("x")}, failureAuth},
		{"status 503", &llm.StatusError{StatusCode: 503, Err: errors.New("x")}, failureConnection},
		{"wrapped status", fmt.Errorf("generate: %w", &llm.StatusError{StatusCode: 401, Err: errors.New("x")}), failureAuth},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), failureConnection},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), failureConnection},
		{"eof", io.ErrUnexpectedEOF, failureConnection},
		{"status in text", errors.New("error, status code: 429, message: too many"), failureRateLimit},
		{"auth in text", errors.New("AuthenticationError: the API key is invalid"), failureAuth},
		{"quota in text", errors.New("QuotaExceeded: account quota exhausted"), failureRateLimit},
		{"loop", fmt.Errorf("%w after 8 rounds", ErrToolLoopExhausted), failureUnexpected},
		{"other", errors.New("json: cannot unmarshal"), failureUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyFailure(tt.err); got != tt.want {
				t.Fatalf("classifyFailure(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

type customErr struct{}

func (customErr) Error() string { return "custom failure" }

func TestFailureNoticeNamesInnermostType(t *testing.T) {
	err := fmt.Errorf("outer: %w", customErr{})
	got := failureNotice(failureUnexpected, err)
	want := "WARNING: Unexpected error in chat: ai.customErr: outer: custom failure"
	if got != want {
		t.Fatalf("failureNotice = %q, want %q", got, want)
	}
}
