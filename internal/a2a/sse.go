package a2a

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSEWriter writes Server-Sent Events frames. Each frame's data is one
// JSON-RPC response envelope.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter wraps w. Without http.Flusher support frames may be buffered.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: f}
}

// Init writes the event-stream headers. Call it once before any frame.
func (sw *SSEWriter) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	sw.w.WriteHeader(http.StatusOK)
	sw.flush()
}

// WriteResult sends ev as the result of request id.
func (sw *SSEWriter) WriteResult(id any, ev StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("a2a: sse: marshal event: %w", err)
	}
	return sw.writeFrame(JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: id, Result: data})
}

// WriteError sends a JSON-RPC error frame for request id.
func (sw *SSEWriter) WriteError(id any, code int, message string) error {
	return sw.writeFrame(JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	})
}

func (sw *SSEWriter) writeFrame(resp JSONRPCResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("a2a: sse: marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("a2a: sse: write frame: %w", err)
	}
	sw.flush()
	return nil
}

func (sw *SSEWriter) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// ReadEvents decodes SSE frames from body onto the returned channel until
// body is exhausted or ctx is done, then closes the channel and body.
//
// Multiple data lines in one event are joined with newlines, comment lines
// and unknown fields are skipped. Frames that fail to decode, and JSON-RPC
// error frames, arrive as events with Err set.
func ReadEvents(ctx context.Context, body io.ReadCloser) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer body.Close()

		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64<<10), 4<<20)

		var data strings.Builder
		flush := func() bool {
			if data.Len() == 0 {
				return true
			}
			ev := decodeFrame(data.String())
			data.Reset()
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for sc.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := sc.Text()
			switch {
			case line == "":
				if !flush() {
					return
				}
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
		flush()
	}()
	return ch
}

func decodeFrame(raw string) StreamEvent {
	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return StreamEvent{Err: fmt.Errorf("a2a: sse: decode frame: %w", err)}
	}
	if resp.Error != nil {
		return StreamEvent{Err: &RPCError{
			Method:  MethodStreamMessage,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    resp.Error.Data,
		}}
	}
	var ev StreamEvent
	if err := json.Unmarshal(resp.Result, &ev); err != nil {
		return StreamEvent{Err: fmt.Errorf("a2a: sse: decode event: %w", err)}
	}
	return ev
}
