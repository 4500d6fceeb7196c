package assistant

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func parseStream(t *testing.T, body string) ([]Frame, string) {
	t.Helper()
	var frames []Frame
	var last string
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		last = payload
		if payload == "[DONE]" {
			continue
		}
		var f Frame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			t.Fatalf("bad frame %q: %v", payload, err)
		}
		frames = append(frames, f)
	}
	return frames, last
}

func TestWriteStream(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteStream(rec, LastText(toolThenText().Content))

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}
	if v := rec.Header().Get(StreamProtocolHeader); v != "v1" {
		t.Errorf("unexpected protocol header %q", v)
	}

	frames, last := parseStream(t, rec.Body.String())
	if last != "[DONE]" {
		t.Errorf("expected [DONE] terminator, got %q", last)
	}
	wantTypes := []string{"start", "text-start", "text-delta", "text-end", "finish"}
	if len(frames) != len(wantTypes) {
		t.Fatalf("expected %d frames, got %d: %+v", len(wantTypes), len(frames), frames)
	}
	for i, typ := range wantTypes {
		if frames[i].Type != typ {
			t.Errorf("frame %d: expected %s, got %s", i, typ, frames[i].Type)
		}
	}
	id := frames[1].ID
	if id == "" || frames[2].ID != id || frames[3].ID != id {
		t.Errorf("text frames must share one id: %+v", frames)
	}
	if frames[2].Delta == nil || *frames[2].Delta != "final answer" {
		t.Errorf("expected full text in the single delta, got %+v", frames[2].Delta)
	}
	if frames[0].ID != "" || frames[4].ID != "" {
		t.Error("start and finish frames carry no id")
	}
	if strings.Count(rec.Body.String(), "data: ") != 6 {
		t.Errorf("expected exactly six data lines, got body %q", rec.Body.String())
	}
}

func TestFrames_EmptyTextKeepsDelta(t *testing.T) {
	b, err := json.Marshal(Frames("x", "")[2])
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"text-delta","id":"x","delta":""}` {
		t.Errorf("unexpected frame %s", b)
	}
}
