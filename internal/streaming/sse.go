package streaming

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ServeSSE writes the stream's events to w until the stream closes or the
// client goes away. Heartbeats are sent as comment lines. Disconnecting
// closes the stream so producers stop early.
func ServeSSE(w http.ResponseWriter, r *http.Request, stream *Stream) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		stream.Close()
		return fmt.Errorf("streaming unsupported by response writer")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			stream.Close()
			return r.Context().Err()
		case event, ok := <-stream.Events():
			if !ok {
				return nil
			}
			if err := writeEvent(w, event); err != nil {
				stream.Close()
				return err
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event Event) error {
	if event.Type == EventHeartbeat {
		_, err := fmt.Fprint(w, ": ping\n\n")
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
