package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/loteria-online/client/internal/faults"
	"github.com/loteria-online/client/internal/protocol"
)

type recordingSink struct {
	mu     sync.Mutex
	events []protocol.Envelope
	lost   []error
}

func (r *recordingSink) OnEvent(env *protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *env)
}

func (r *recordingSink) OnConnectionLost(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = append(r.lost, err)
}

func (r *recordingSink) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recordingSink) lostCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lost)
}

// testServer is a minimal websocket peer: it records every accepted
// connection and hands inbound request frames to onRequest.
type testServer struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	writeMu   sync.Mutex
	conns     []*websocket.Conn
	onRequest func(ws *websocket.Conn, env *protocol.Envelope)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{t: t}
	upgrader := websocket.Upgrader{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conns = append(ts.conns, ws)
		ts.mu.Unlock()
		for {
			var env protocol.Envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			ts.mu.Lock()
			handle := ts.onRequest
			ts.mu.Unlock()
			if handle != nil && env.Kind == protocol.FrameRequest {
				handle(ws, &env)
			}
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) handle(fn func(ws *websocket.Conn, env *protocol.Envelope)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.onRequest = fn
}

// conn waits for the i-th accepted connection.
func (ts *testServer) conn(i int) *websocket.Conn {
	ts.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ts.mu.Lock()
		n := len(ts.conns)
		ts.mu.Unlock()
		if n > i {
			ts.mu.Lock()
			defer ts.mu.Unlock()
			return ts.conns[i]
		}
		time.Sleep(2 * time.Millisecond)
	}
	ts.t.Fatalf("connection %d never arrived", i)
	return nil
}

func (ts *testServer) write(ws *websocket.Conn, env *protocol.Envelope) {
	ts.writeMu.Lock()
	defer ts.writeMu.Unlock()
	if err := ws.WriteJSON(env); err != nil {
		ts.t.Errorf("server write: %v", err)
	}
}

func (ts *testServer) push(ws *websocket.Conn, eventType protocol.EventType, payload interface{}) {
	ts.t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		ts.t.Fatalf("marshal push: %v", err)
	}
	ts.write(ws, &protocol.Envelope{Kind: protocol.FrameEvent, Type: string(eventType), Payload: raw})
}

func newTestSession(t *testing.T, ts *testServer, makeSink func() Sink) *Session {
	t.Helper()
	cfg := DefaultConfig(ts.url())
	cfg.DialTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	s := NewSession(cfg, clockwork.NewRealClock(), makeSink)
	t.Cleanup(s.CloseSafe)
	return s
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestCallRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ts.handle(func(ws *websocket.Conn, env *protocol.Envelope) {
		if env.Type != string(protocol.RequestCreateLobby) {
			t.Errorf("unexpected request type %s", env.Type)
		}
		ts.write(ws, &protocol.Envelope{
			Kind:    protocol.FrameResponse,
			ID:      env.ID,
			Type:    env.Type,
			Payload: json.RawMessage(`{"code":"482913"}`),
		})
	})

	sink := &recordingSink{}
	s := newTestSession(t, ts, func() Sink { return sink })
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	raw, err := s.Call(context.Background(), protocol.RequestCreateLobby, nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var resp protocol.LobbySnapshot
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "482913" {
		t.Fatalf("unexpected lobby code %q", resp.Code)
	}
}

func TestCallMapsServiceFault(t *testing.T) {
	ts := newTestServer(t)
	ts.handle(func(ws *websocket.Conn, env *protocol.Envelope) {
		ts.write(ws, &protocol.Envelope{
			Kind:  protocol.FrameResponse,
			ID:    env.ID,
			Type:  env.Type,
			Error: &protocol.Fault{Code: protocol.CodeLobbyFull, Message: "lobby is full"},
		})
	})

	s := newTestSession(t, ts, func() Sink { return &recordingSink{} })
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	_, err := s.Call(context.Background(), protocol.RequestJoinLobby, protocol.JoinLobbyRequest{Code: "482913"})
	if err == nil {
		t.Fatal("expected a fault")
	}
	if faults.Classify(err) != faults.KindService {
		t.Fatalf("expected a service fault, got %v (%v)", faults.Classify(err), err)
	}
	if !faults.IsCode(err, protocol.CodeLobbyFull) {
		t.Fatalf("expected LOBBY_FULL, got %v", err)
	}
}

func TestCloseSafeIsDeliberateAndIdempotent(t *testing.T) {
	ts := newTestServer(t)
	sink := &recordingSink{}
	s := newTestSession(t, ts, func() Sink { return sink })
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ts.conn(0)

	s.CloseSafe()
	s.CloseSafe() // second teardown is a no-op

	if s.Connected() {
		t.Fatal("handle should be cleared after teardown")
	}
	if _, err := s.Call(context.Background(), protocol.RequestLogout, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	// Deliberate teardown never raises the lost signal, even once the read
	// pump notices the socket is gone.
	time.Sleep(50 * time.Millisecond)
	if got := sink.lostCount(); got != 0 {
		t.Fatalf("lost signal raised %d times on deliberate teardown", got)
	}
}

func TestCloseSafeAbortsInFlightCalls(t *testing.T) {
	ts := newTestServer(t)
	// The server never answers, so the call stays pending.
	s := newTestSession(t, ts, func() Sink { return &recordingSink{} })
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ts.conn(0)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), protocol.RequestStartGame, protocol.StartGameRequest{Code: "482913"})
		errCh <- err
	}()

	waitFor(t, func() bool {
		s.mu.Lock()
		c := s.current
		s.mu.Unlock()
		if c == nil {
			return false
		}
		c.pendingMu.Lock()
		defer c.pendingMu.Unlock()
		return len(c.pending) == 1
	}, "pending call registration")

	s.CloseSafe()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
		if faults.Classify(err) != faults.KindConnection {
			t.Fatalf("expected a connection fault, got %v", faults.Classify(err))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call never unblocked")
	}
}

func TestConnectionLostFiresExactlyOnce(t *testing.T) {
	ts := newTestServer(t)
	sink := &recordingSink{}
	s := newTestSession(t, ts, func() Sink { return sink })
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ts.conn(0).Close()

	waitFor(t, func() bool { return sink.lostCount() == 1 }, "lost signal")
	time.Sleep(50 * time.Millisecond)
	if got := sink.lostCount(); got != 1 {
		t.Fatalf("lost signal fired %d times, want 1", got)
	}
	if faults.Classify(sink.lost[0]) != faults.KindConnection {
		t.Fatalf("expected a connection fault, got %v", sink.lost[0])
	}
}

func TestReconnectRoutesPushesToFreshSinkOnly(t *testing.T) {
	ts := newTestServer(t)

	var sinksMu sync.Mutex
	var sinks []*recordingSink
	makeSink := func() Sink {
		sinksMu.Lock()
		defer sinksMu.Unlock()
		sink := &recordingSink{}
		sinks = append(sinks, sink)
		return sink
	}

	s := newTestSession(t, ts, makeSink)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ts.conn(0)
	if err := s.Reconnect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	second := ts.conn(1)

	sinksMu.Lock()
	if len(sinks) != 2 {
		sinksMu.Unlock()
		t.Fatalf("expected a sink per connection, got %d", len(sinks))
	}
	old, fresh := sinks[0], sinks[1]
	sinksMu.Unlock()

	ts.push(second, protocol.EventChatMessageReceived, protocol.ChatMessagePayload{Nickname: "Ana", Text: "hola"})

	waitFor(t, func() bool { return fresh.eventCount() == 1 }, "push on fresh sink")
	if got := old.eventCount(); got != 0 {
		t.Fatalf("stale sink received %d events", got)
	}
	if got := old.lostCount(); got != 0 {
		t.Fatalf("stale sink saw %d lost signals after deliberate reconnect", got)
	}
}
