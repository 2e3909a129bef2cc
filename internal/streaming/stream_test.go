package streaming

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestNewStream(t *testing.T) {
	stream := NewStream(context.Background(), DefaultConfig())
	defer stream.Close()

	if stream.ID == "" {
		t.Error("stream should have an ID")
	}
	if stream.IsClosed() {
		t.Error("stream should not be closed initially")
	}
}

func TestStreamSendProgress(t *testing.T) {
	stream := NewStream(context.Background(), DefaultConfig())
	defer stream.Close()

	if err := stream.SendProgress("fetch", "Fetching files", 30); err != nil {
		t.Fatalf("SendProgress failed: %v", err)
	}

	event := <-stream.Events()
	if event.Type != EventProgress {
		t.Fatalf("expected EventProgress, got %s", event.Type)
	}
	progress, ok := event.Data.(ProgressData)
	if !ok {
		t.Fatalf("expected ProgressData, got %T", event.Data)
	}
	if progress.Stage != "fetch" || progress.Percent != 30 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestStreamSendCompleteCloses(t *testing.T) {
	stream := NewStream(context.Background(), DefaultConfig())

	if err := stream.SendComplete(map[string]string{"summary": "ok"}); err != nil {
		t.Fatalf("SendComplete failed: %v", err)
	}
	if !stream.IsClosed() {
		t.Error("stream should be closed after SendComplete")
	}

	// Buffered events stay readable after close.
	event, ok := <-stream.Events()
	if !ok || event.Type != EventComplete {
		t.Fatalf("expected complete event, got %+v (ok=%v)", event, ok)
	}
	if _, ok := <-stream.Events(); ok {
		t.Error("channel should be closed")
	}

	if err := stream.SendProgress("late", "", 1); err == nil {
		t.Error("send after close should fail")
	}
}

func TestStreamSendError(t *testing.T) {
	stream := NewStream(context.Background(), DefaultConfig())

	if err := stream.SendError("REPO_NOT_FOUND", "no such repo", "check the name"); err != nil {
		t.Fatalf("SendError failed: %v", err)
	}
	event := <-stream.Events()
	data, ok := event.Data.(ErrorData)
	if event.Type != EventError || !ok || data.Code != "REPO_NOT_FOUND" {
		t.Errorf("event = %+v", event)
	}
}

func TestStreamCloseUnblocksSender(t *testing.T) {
	stream := NewStream(context.Background(), StreamConfig{MaxBuffer: 1, HeartbeatPeriod: time.Hour})

	if err := stream.SendProgress("a", "", 1); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- stream.SendProgress("b", "", 2) }()

	time.Sleep(20 * time.Millisecond)
	stream.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("blocked sender should fail after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("sender still blocked after Close")
	}
	stream.Close() // idempotent
}

func TestStreamContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := NewStream(ctx, DefaultConfig())
	defer stream.Close()

	cancel()
	if err := stream.SendProgress("x", "", 1); err == nil {
		t.Error("send after parent cancellation should fail")
	}
}

func TestStreamHeartbeat(t *testing.T) {
	stream := NewStream(context.Background(), StreamConfig{HeartbeatPeriod: 10 * time.Millisecond})
	defer stream.Close()

	select {
	case event := <-stream.Events():
		if event.Type != EventHeartbeat {
			t.Errorf("expected heartbeat, got %s", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no heartbeat received")
	}
}

func TestEventMarshalJSON(t *testing.T) {
	raw, err := json.Marshal(Event{Type: EventProgress, Data: ProgressData{Stage: "parse", Message: "Parsing", Percent: 90}})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "progress" || got["stage"] != "parse" || got["percent"] != float64(90) {
		t.Errorf("encoded = %s", raw)
	}

	if _, err := json.Marshal(Event{Type: EventComplete, Data: []int{1}}); err == nil {
		t.Error("non-object data should fail to encode")
	}
}

func TestServeSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream := NewStream(r.Context(), StreamConfig{MaxBuffer: 8, HeartbeatPeriod: time.Hour})
		go func() {
			_ = stream.SendProgress("validate", "Validating", 5)
			stream.mu.Lock()
			stream.events <- Event{Type: EventHeartbeat, Data: HeartbeatData{Sequence: 1}}
			stream.mu.Unlock()
			_ = stream.SendComplete(map[string]string{"summary": "done"})
		}()
		if err := ServeSSE(w, r, stream); err != nil {
			t.Errorf("ServeSSE() error = %v", err)
		}
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	for header, want := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"X-Accel-Buffering": "no",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], `data: {`) || !strings.Contains(lines[0], `"type":"progress"`) {
		t.Errorf("progress line = %q", lines[0])
	}
	if lines[1] != ": ping" {
		t.Errorf("heartbeat line = %q", lines[1])
	}
	if !strings.Contains(lines[2], `"type":"complete"`) || !strings.Contains(lines[2], `"summary":"done"`) {
		t.Errorf("complete line = %q", lines[2])
	}
	http.DefaultClient.CloseIdleConnections()
}

func TestServeSSEClientDisconnect(t *testing.T) {
	closed := make(chan *Stream, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream := NewStream(context.Background(), StreamConfig{HeartbeatPeriod: time.Hour})
		_ = stream.SendProgress("validate", "Validating", 5)
		_ = ServeSSE(w, r, stream)
		closed <- stream
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	line, _ := bufio.NewReader(resp.Body).ReadString('\n')
	if !strings.HasPrefix(line, "data: ") {
		t.Errorf("first line = %q", line)
	}
	cancel()
	resp.Body.Close()

	select {
	case stream := <-closed:
		if !stream.IsClosed() {
			t.Error("stream should be closed after client disconnect")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeSSE did not return after disconnect")
	}
	http.DefaultClient.CloseIdleConnections()
}
