// Package streaming delivers analysis progress to HTTP clients as
// server-sent events.
package streaming

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// EventType represents the type of streaming event.
type EventType string

const (
	// EventProgress reports a pipeline stage.
	EventProgress EventType = "progress"
	// EventComplete carries the finished analysis.
	EventComplete EventType = "complete"
	// EventError signals a fatal error.
	EventError EventType = "error"
	// EventHeartbeat keeps the connection alive.
	EventHeartbeat EventType = "heartbeat"
)

// ErrClosed is returned when sending on a closed stream.
var ErrClosed = errors.New("stream closed")

// Event represents a single streaming event. Data must encode to a JSON
// object; its fields are inlined next to "type".
type Event struct {
	Type EventType
	Data interface{}
}

// ProgressData reports progress.
type ProgressData struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// CompleteData carries the result of a finished run.
type CompleteData struct {
	Analysis  interface{} `json:"analysis"`
	ElapsedMs int64       `json:"elapsedMs"`
}

// ErrorData contains error information.
type ErrorData struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

// HeartbeatData keeps the connection alive.
type HeartbeatData struct {
	Sequence int `json:"seq"`
}

// Stream represents an active streaming session.
type Stream struct {
	ID        string
	StartedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc

	events chan Event

	heartbeatPeriod time.Duration

	mu           sync.Mutex
	closed       bool
	heartbeatSeq int
}

// StreamConfig configures stream behavior.
type StreamConfig struct {
	MaxBuffer       int           // Max buffered events (default: 64)
	HeartbeatPeriod time.Duration // Heartbeat interval (default: 15s)
}

// DefaultConfig returns default streaming configuration.
func DefaultConfig() StreamConfig {
	return StreamConfig{
		MaxBuffer:       64,
		HeartbeatPeriod: 15 * time.Second,
	}
}

// NewStream creates a new streaming session.
func NewStream(ctx context.Context, config StreamConfig) *Stream {
	if config.MaxBuffer <= 0 {
		config.MaxBuffer = 64
	}
	if config.HeartbeatPeriod <= 0 {
		config.HeartbeatPeriod = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)

	s := &Stream{
		ID:              generateStreamID(),
		StartedAt:       time.Now(),
		ctx:             ctx,
		cancel:          cancel,
		events:          make(chan Event, config.MaxBuffer),
		heartbeatPeriod: config.HeartbeatPeriod,
	}

	go s.heartbeatLoop()

	return s
}

// generateStreamID creates a unique stream identifier.
func generateStreamID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("stream-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Events returns the event channel for consumers. It is closed by Close
// after any buffered events.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Context returns the stream's context. It is cancelled by Close.
func (s *Stream) Context() context.Context {
	return s.ctx
}

// SendProgress sends a progress update.
func (s *Stream) SendProgress(stage, message string, percent int) error {
	return s.send(Event{
		Type: EventProgress,
		Data: ProgressData{Stage: stage, Message: message, Percent: percent},
	})
}

// SendComplete sends the result and closes the stream.
func (s *Stream) SendComplete(result interface{}) error {
	err := s.send(Event{
		Type: EventComplete,
		Data: CompleteData{
			Analysis:  result,
			ElapsedMs: time.Since(s.StartedAt).Milliseconds(),
		},
	})

	s.Close()
	return err
}

// SendError signals a fatal error and closes the stream.
func (s *Stream) SendError(code, message, remediation string) error {
	err := s.send(Event{
		Type: EventError,
		Data: ErrorData{
			Code:        code,
			Message:     message,
			Remediation: remediation,
		},
	})

	s.Close()
	return err
}

// Close closes the stream. Blocked senders return ErrClosed or the context
// error.
func (s *Stream) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// IsClosed returns true if the stream is closed.
func (s *Stream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// send delivers an event, blocking while the buffer is full. The lock is
// held across the channel send so Close never races with it.
func (s *Stream) send(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	// Check context first (important for buffered channels)
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.events <- event:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// heartbeatLoop sends periodic heartbeats.
func (s *Stream) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.heartbeatSeq++

			// Non-blocking send for heartbeat
			select {
			case s.events <- Event{Type: EventHeartbeat, Data: HeartbeatData{Sequence: s.heartbeatSeq}}:
			default:
				// Buffer full, skip heartbeat
			}
			s.mu.Unlock()
		}
	}
}

// MarshalJSON encodes the event as {"type": ..., <data fields>}.
func (e Event) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if e.Data != nil {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("event %s: data is not a JSON object: %w", e.Type, err)
		}
	}
	typ, _ := json.Marshal(e.Type)
	fields["type"] = typ
	return json.Marshal(fields)
}
