package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/zhouzirui/digital-twin/backend/internal/llm"
)

// ErrToolLoopExhausted is returned when the model keeps requesting tools past the round limit.
var ErrToolLoopExhausted = errors.New("tool loop exhausted")

type failureKind int

const (
	failureUnexpected failureKind = iota
	failureRateLimit
	failureAuth
	failureConnection
)

func (k failureKind) String() string {
	switch k {
	case failureRateLimit:
		return "rate_limit"
	case failureAuth:
		return "auth"
	case failureConnection:
		return "connection"
	default:
		return "unexpected"
	}
}

// statusPattern matches the status code some SDKs only expose in the message.
var statusPattern = regexp.MustCompile(`(?i)status(?:\s*code)?\s*[:=]?\s*(\d{3})\b`)

var (
	rateLimitHints = []string{"rate limit", "ratelimit", "too many requests", "quota", "resource_exhausted", "resource exhausted"}
	authHints      = []string{"unauthorized", "authentication", "invalid api key", "api key not valid", "permission_denied", "invalid_api_key", "accessdenied"}
	connHints      = []string{"connection refused", "connection reset", "no such host", "i/o timeout", "tls handshake", "eof", "network is unreachable"}
)

// classifyFailure maps a model invocation error onto the operator/user taxonomy.
func classifyFailure(err error) failureKind {
	if err == nil || errors.Is(err, ErrToolLoopExhausted) {
		return failureUnexpected
	}

	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		if kind, ok := kindForStatus(statusErr.StatusCode); ok {
			return kind
		}
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return failureConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return failureConnection
	}

	msg := strings.ToLower(err.Error())
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			if kind, ok := kindForStatus(code); ok {
				return kind
			}
		}
	}
	switch {
	case containsAny(msg, rateLimitHints):
		return failureRateLimit
	case containsAny(msg, authHints):
		return failureAuth
	case containsAny(msg, connHints):
		return failureConnection
	}
	return failureUnexpected
}

func kindForStatus(code int) (failureKind, bool) {
	switch code {
	case http.StatusTooManyRequests:
		return failureRateLimit, true
	case http.StatusUnauthorized, http.StatusForbidden:
		return failureAuth, true
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return failureConnection, true
	}
	return failureUnexpected, false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// failureNotice is the operator notification for a failed turn.
func failureNotice(kind failureKind, err error) string {
	switch kind {
	case failureRateLimit:
		return "WARNING: LLM rate limit or quota exceeded"
	case failureAuth:
		return "WARNING: LLM authentication error, check API key"
	case failureConnection:
		return "WARNING: LLM connection error"
	default:
		return fmt.Sprintf("WARNING: Unexpected error in chat: %s: %v", errorCategory(err), err)
	}
}

// failureReply is the visitor-facing text for a failed turn.
func failureReply(kind failureKind, contact string) string {
	switch kind {
	case failureRateLimit:
		return "I'm sorry, I'm unable to respond right now due to high demand. " +
			"Please try again in a few moments, or reach out directly via " + contact
	case failureAuth:
		return "I'm experiencing a technical issue at the moment. " +
			"Please connect with me directly on " + contact
	case failureConnection:
		return "I'm having trouble connecting right now. " +
			"Please try again shortly, or reach out via " + contact
	default:
		return "Something unexpected happened on my end. " +
			"Please try again, or get in touch via " + contact
	}
}

// errorCategory names the innermost error type.
func errorCategory(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
