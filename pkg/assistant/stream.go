package assistant

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// StreamProtocolHeader marks the response as a UI message stream.
const StreamProtocolHeader = "x-vercel-ai-ui-message-stream"

// Frame is one event of the UI message stream.
type Frame struct {
	Type  string  `json:"type"`
	ID    string  `json:"id,omitempty"`
	Delta *string `json:"delta,omitempty"`
}

// Frames re-segments a finished reply into the fixed frame sequence. The
// terminator is not a frame and is written separately.
func Frames(id, text string) []Frame {
	return []Frame{
		{Type: "start"},
		{Type: "text-start", ID: id},
		{Type: "text-delta", ID: id, Delta: &text},
		{Type: "text-end", ID: id},
		{Type: "finish"},
	}
}

// WriteStream writes text as a complete event stream. It must be called
// before anything else is written to w.
func WriteStream(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(StreamProtocolHeader, "v1")

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	for _, f := range Frames(uuid.NewString(), text) {
		payload, _ := json.Marshal(f)
		_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
		flush()
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flush()
}
