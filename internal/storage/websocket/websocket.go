// Package websocket streams recorded sessions live to a WebSocket server.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/pkg/core"
	"github.com/towsim/pushback/pkg/streaming"
)

// Backend streams session data over WebSocket. Session boundaries wait for a
// server ack; states and drive requests are fire-and-forget.
type Backend struct {
	cfg    config.WebsocketConfig
	log    *slog.Logger
	stream *stream

	// first redial delay, doubled per failed attempt
	backoff time.Duration
}

// New creates a new WebSocket storage backend. A nil logger uses slog.Default.
func New(cfg config.WebsocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:     cfg,
		log:     logger.With("component", "websocket"),
		backoff: time.Second,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	s, err := openStream(b.cfg.URL, b.cfg.Secret, b.backoff, b.log)
	if err != nil {
		return err
	}
	b.stream = s
	return nil
}

// Close flushes queued messages and disconnects.
func (b *Backend) Close() error {
	if b.stream != nil {
		b.stream.close()
	}
	return nil
}

// Dropped is the number of messages discarded because the outbox was full.
func (b *Backend) Dropped() uint64 {
	if b.stream == nil {
		return 0
	}
	return b.stream.dropped.Load()
}

func envelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (b *Backend) post(msgType string, payload any) error {
	if b.stream == nil {
		return errStreamClosed
	}
	data, err := envelope(msgType, payload)
	if err != nil {
		return err
	}
	b.stream.send(data)
	return nil
}

// StartSession sends the session description and waits for the server ack.
// The message is replayed whenever the stream reconnects.
func (b *Backend) StartSession(s *core.Session) error {
	if b.stream == nil {
		return errStreamClosed
	}
	data, err := envelope(streaming.TypeStartSession, streaming.NewStartSessionPayload(s))
	if err != nil {
		return err
	}
	b.stream.setReplay(data)
	return b.stream.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for the server ack.
func (b *Backend) EndSession() error {
	if b.stream == nil {
		return errStreamClosed
	}
	data, err := envelope(streaming.TypeEndSession, struct{}{})
	if err != nil {
		return err
	}
	defer b.stream.setReplay(nil)
	return b.stream.sendAndWait(data, streaming.TypeEndSession, ackTimeout)
}

func (b *Backend) RecordTruckState(s *core.TruckState) error {
	return b.post(streaming.TypeTruckState, streaming.NewTruckStatePayload(s))
}

func (b *Backend) RecordDriveRequest(r *core.DriveRequest) error {
	return b.post(streaming.TypeDriveRequest, streaming.NewDriveRequestPayload(r))
}
