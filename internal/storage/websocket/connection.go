package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/towsim/pushback/pkg/streaming"
)

const (
	outboxSize    = 10_000
	ackBufferSize = 16
	maxRedials    = 10
	maxBackoff    = 30 * time.Second
	writeWait     = 10 * time.Second
	pingPeriod    = 30 * time.Second
	ackTimeout    = 10 * time.Second
)

var errStreamClosed = errors.New("stream closed")

// stream owns one WebSocket at a time. A single supervisor goroutine writes
// to the socket and replaces it after a failure; a reader goroutine per
// socket forwards acks.
type stream struct {
	url string
	log *slog.Logger

	outbox chan []byte
	acks   chan string

	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// start_session envelope sent again on every new socket
	replay  atomic.Pointer[[]byte]
	dropped atomic.Uint64
	backoff time.Duration
}

// streamURL adds the secret to the query string of rawURL.
func streamURL(rawURL, secret string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// openStream dials once and starts the supervisor. Later failures are
// handled by redialing in the background.
func openStream(rawURL, secret string, backoff time.Duration, log *slog.Logger) (*stream, error) {
	target, err := streamURL(rawURL, secret)
	if err != nil {
		return nil, err
	}
	s := &stream{
		url:     target,
		log:     log,
		outbox:  make(chan []byte, outboxSize),
		acks:    make(chan string, ackBufferSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		backoff: backoff,
	}
	conn, err := s.dial()
	if err != nil {
		return nil, err
	}
	go s.supervise(conn)
	return s, nil
}

func (s *stream) dial() (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (s *stream) supervise(conn *ws.Conn) {
	defer close(s.stopped)
	for conn != nil {
		err := s.serve(conn)
		_ = conn.Close()
		if err == nil {
			return
		}
		s.log.Warn("WebSocket connection lost", "error", err)
		conn = s.redial()
	}
}

// serve pumps the outbox into conn until the socket fails or the stream is
// closed. It returns nil only on close.
func (s *stream) serve(conn *ws.Conn) error {
	readErr := make(chan error, 1)
	go s.readAcks(conn, readErr)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-s.quit:
			s.flush(conn)
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case err := <-readErr:
			return err
		case <-ping.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		case data := <-s.outbox:
			if err := writeText(conn, data); err != nil {
				return err
			}
		}
	}
}

// flush writes whatever is still queued, giving up on the first error.
func (s *stream) flush(conn *ws.Conn) {
	for {
		select {
		case data := <-s.outbox:
			if writeText(conn, data) != nil {
				return
			}
		default:
			return
		}
	}
}

func writeText(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func (s *stream) readAcks(conn *ws.Conn, errc chan<- error) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		var ack streaming.AckMessage
		if json.Unmarshal(msg, &ack) != nil || ack.Type != streaming.TypeAck {
			s.log.Debug("Ignoring server message", "raw", string(msg))
			continue
		}
		select {
		case s.acks <- ack.For:
		default:
			s.log.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// redial tries up to maxRedials times with doubling backoff and replays the
// cached start_session on success. It returns nil when giving up or closing.
func (s *stream) redial() *ws.Conn {
	wait := s.backoff
	for attempt := 1; attempt <= maxRedials; attempt++ {
		select {
		case <-s.quit:
			return nil
		case <-time.After(wait):
		}

		conn, err := s.dial()
		if err == nil {
			if start := s.replay.Load(); start != nil {
				err = writeText(conn, *start)
			}
			if err == nil {
				s.log.Info("WebSocket reconnected", "attempt", attempt)
				return conn
			}
			_ = conn.Close()
		}
		s.log.Warn("WebSocket redial failed", "attempt", attempt, "error", err)
		wait = min(wait*2, maxBackoff)
	}
	s.log.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxRedials)
	return nil
}

// setReplay stores the envelope to resend after a reconnect; nil clears it.
func (s *stream) setReplay(data []byte) {
	if data == nil {
		s.replay.Store(nil)
		return
	}
	s.replay.Store(&data)
}

// send queues data without blocking. Messages are dropped when the outbox is
// full.
func (s *stream) send(data []byte) {
	select {
	case s.outbox <- data:
	default:
		if s.dropped.Add(1) == 1 {
			s.log.Warn("WebSocket outbox full, dropping messages")
		}
	}
}

// sendAndWait queues data and waits for the server to ack ackFor.
func (s *stream) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	s.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case got := <-s.acks:
			if got == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-s.quit:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close flushes the outbox, sends a close frame and waits for the supervisor.
func (s *stream) close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.stopped
}
