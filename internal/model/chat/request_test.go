package chat

import (
	"errors"
	"testing"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{name: "ok", req: Request{Message: "hi", History: []Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}}},
		{name: "blank message", req: Request{Message: "   "}, wantErr: true},
		{name: "tool role in history", req: Request{Message: "hi", History: []Message{{Role: "tool", Content: "{}"}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := (Request{}).Validate(); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}
