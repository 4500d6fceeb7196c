package types

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTurnsFromChat(t *testing.T) {
	msgs := []ChatMessage{
		{Role: "user", Parts: []ChatPart{{Type: "text", Text: "add "}, {Type: "file"}, {Type: "text", Text: "John"}}},
		{Role: "assistant", Parts: []ChatPart{{Type: "step-start"}}},
		{Role: "", Parts: []ChatPart{{Type: "text", Text: "orphan"}}},
	}
	turns := TurnsFromChat(msgs)
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Content != "add John" {
		t.Errorf("unexpected turn: %+v", turns[0])
	}
}

func TestDeref(t *testing.T) {
	if Deref(nil) != "" {
		t.Error("expected empty string for nil")
	}
	if Deref(Ptr("x")) != "x" {
		t.Error("expected x")
	}
}

func TestAPIError_WriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrUpstream("broker", "boom").WriteJSON(rr)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
}
