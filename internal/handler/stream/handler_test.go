package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/digital-twin/backend/internal/model/chat"
	"github.com/zhouzirui/digital-twin/backend/internal/service/ai"
)

type scriptedChatter struct{}

func (scriptedChatter) Chat(_ context.Context, _ string, _ string, _ []chat.Message, opts ...ai.ChatOption) string {
	observe := ai.ResolveObserver(opts...)
	observe(ai.Event{Kind: ai.EventTool, Tool: "record_unknown_question", Result: `{"recorded":"ok"}`})
	observe(ai.Event{Kind: ai.EventMessage, Content: "Noted!"})
	return "Noted!"
}

func TestStreamEmitsEventsInOrder(t *testing.T) {
	r := chi.NewRouter()
	New(scriptedChatter{}, nil).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"message":"who won?","sessionId":"s-9"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	body := resp.Body.String()
	order := []string{"event: start", "event: tool", "event: message", "event: end"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(body, marker)
		if idx <= last {
			t.Fatalf("event %q missing or out of order in:\n%s", marker, body)
		}
		last = idx
	}
	if !strings.Contains(body, `"content":"Noted!"`) || !strings.Contains(body, `"sessionId":"s-9"`) {
		t.Fatalf("message payload missing:\n%s", body)
	}
}

func TestStreamRejectsEmptyMessage(t *testing.T) {
	r := chi.NewRouter()
	New(scriptedChatter{}, nil).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"message":""}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
