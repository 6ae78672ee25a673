package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/pkg/core"
	"github.com/towsim/pushback/pkg/streaming"
)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and sends acks for start_session/end_session.
func testServer(t *testing.T, ack bool) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.setSecret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if ack && (env.Type == streaming.TypeStartSession || env.Type == streaming.TypeEndSession) {
				data, _ := json.Marshal(streaming.AckMessage{Type: streaming.TypeAck, For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	secret   string
	messages []streaming.Envelope
}

func (m *messageLog) setSecret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = s
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testSession() *core.Session {
	return &core.Session{ID: "s-1", TruckID: "truck-1", StartTime: time.Now().UTC(),
		Geometry: core.Geometry{Wheelbase: 5, MaxSteer: 60}}
}

func TestStartAndEndSession(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	b := New(config.WebsocketConfig{URL: wsURL(srv), Secret: "test"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.EndSession())

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeStartSession, msgs[0].Type)
	assert.Equal(t, streaming.TypeEndSession, msgs[len(msgs)-1].Type)

	var start streaming.StartSessionPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &start))
	assert.Equal(t, "truck-1", start.TruckID)
	assert.Equal(t, "test", ml.secret)
}

func TestFireAndForgetMessages(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	b := New(config.WebsocketConfig{URL: wsURL(srv), Secret: "s"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordDriveRequest(&core.DriveRequest{ToPos: r2.Point{Y: 10}, Accepted: true}))
	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordTruckState(&core.TruckState{CaptureFrame: uint(i)}))
	}
	// end_session is written after every queued message, so its ack means all arrived
	require.NoError(t, b.EndSession())

	types := make(map[string]int)
	for _, m := range ml.all() {
		types[m.Type]++
	}

	assert.Equal(t, 1, types[streaming.TypeStartSession])
	assert.Equal(t, 1, types[streaming.TypeEndSession])
	assert.Equal(t, 1, types[streaming.TypeDriveRequest])
	assert.Equal(t, 3, types[streaming.TypeTruckState])
	assert.Zero(t, b.Dropped())
}

func TestStartSession_AckTimeoutAfterClose(t *testing.T) {
	srv, _ := testServer(t, false)
	defer srv.Close()

	b := New(config.WebsocketConfig{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())

	errCh := make(chan error, 1)
	go func() { errCh <- b.StartSession(testSession()) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "connection closed")
	case <-time.After(2 * time.Second):
		t.Fatal("StartSession did not return after Close")
	}
}

func TestInit_DialFailure(t *testing.T) {
	b := New(config.WebsocketConfig{URL: "ws://127.0.0.1:1/stream"}, nil)
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestInit_BadURL(t *testing.T) {
	b := New(config.WebsocketConfig{URL: "://bad"}, nil)
	assert.ErrorContains(t, b.Init(), "invalid websocket URL")
}

func TestCloseTwice(t *testing.T) {
	srv, _ := testServer(t, true)
	defer srv.Close()

	b := New(config.WebsocketConfig{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

func TestReconnectReplaysStartSession(t *testing.T) {
	var conns atomic.Int32
	ml := &messageLog{}
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := conns.Add(1)

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if json.Unmarshal(msg, &env) != nil {
				continue
			}
			ml.add(env)
			data, _ := json.Marshal(streaming.AckMessage{Type: streaming.TypeAck, For: env.Type})
			if err := c.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}
			// drop the first connection right after acking the session start
			if n == 1 && env.Type == streaming.TypeStartSession {
				return
			}
		}
	}))
	defer srv.Close()

	b := New(config.WebsocketConfig{URL: wsURL(srv)}, nil)
	b.backoff = 10 * time.Millisecond
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(testSession()))

	starts := func() int {
		n := 0
		for _, m := range ml.all() {
			if m.Type == streaming.TypeStartSession {
				n++
			}
		}
		return n
	}
	require.Eventually(t, func() bool { return starts() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), conns.Load())

	require.NoError(t, b.EndSession())
	msgs := ml.all()
	assert.Equal(t, streaming.TypeEndSession, msgs[len(msgs)-1].Type)
}

func TestRecordBeforeInit(t *testing.T) {
	b := New(config.WebsocketConfig{}, nil)
	assert.ErrorIs(t, b.RecordTruckState(&core.TruckState{}), errStreamClosed)
	assert.ErrorIs(t, b.StartSession(testSession()), errStreamClosed)
	assert.Zero(t, b.Dropped())
}
