// Package transport owns the duplex websocket channel to the game server.
// Exactly one Session exists per process; every other component issues its
// requests through it and never holds a connection of its own.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/loteria-online/client/internal/faults"
	"github.com/loteria-online/client/internal/protocol"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrClosed       = errors.New("transport: channel closed during call")
)

// Sink receives everything the server pushes on one connection. Connect
// builds a fresh sink per connection; after CloseSafe the old connection can
// no longer reach it.
type Sink interface {
	// OnEvent is called from a transport-owned goroutine for every pushed
	// notification. Implementations marshal onto their own context.
	OnEvent(env *protocol.Envelope)
	// OnConnectionLost fires at most once per connection, on fault or
	// unexpected close. Deliberate teardown via CloseSafe does not fire it.
	OnConnectionLost(err error)
}

// Config holds connection tuning for the duplex channel.
type Config struct {
	URL            string
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns the connection tuning used against production
// servers.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		DialTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Session owns the lifecycle of the duplex connection.
type Session struct {
	cfg      Config
	clock    clockwork.Clock
	makeSink func() Sink

	mu      sync.Mutex
	current *conn
}

// conn is one connection generation: socket, its sink, and the in-flight
// request table. A new generation replaces it wholesale on Reconnect.
type conn struct {
	ws       *websocket.Conn
	sink     Sink
	detached atomic.Bool
	lostOnce sync.Once

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan pendingReply

	stopPing chan struct{}
}

// pendingReply resolves one in-flight call: either a response envelope or a
// channel-level failure.
type pendingReply struct {
	env *protocol.Envelope
	err error
}

// NewSession creates a Session. makeSink is invoked on every Connect so each
// connection gets its own callback sink.
func NewSession(cfg Config, clock clockwork.Clock, makeSink func() Sink) *Session {
	return &Session{cfg: cfg, clock: clock, makeSink: makeSink}
}

// Connect opens a new channel bound to a fresh sink. Any previous connection
// must have been torn down first; Reconnect does both.
func (s *Session) Connect(ctx context.Context) error {
	dialer := &websocket.Dialer{HandshakeTimeout: s.cfg.DialTimeout}
	ws, resp, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return faults.Connection(fmt.Errorf("dial %s: status %d: %w", s.cfg.URL, resp.StatusCode, err))
		}
		return faults.Connection(fmt.Errorf("dial %s: %w", s.cfg.URL, err))
	}

	ws.SetReadLimit(s.cfg.MaxMessageSize)
	ws.SetReadDeadline(s.clock.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(s.clock.Now().Add(s.cfg.PongWait))
	})

	c := &conn{
		ws:       ws,
		sink:     s.makeSink(),
		pending:  make(map[string]chan pendingReply),
		stopPing: make(chan struct{}),
	}

	s.mu.Lock()
	s.current = c
	s.mu.Unlock()

	go s.readPump(c)
	go s.pingLoop(c)

	log.Info().Str("url", s.cfg.URL).Msg("duplex channel connected")
	return nil
}

// Reconnect tears down the current channel and opens a new one. Teardown
// failures are swallowed; the only way Reconnect fails is a dial error.
func (s *Session) Reconnect(ctx context.Context) error {
	s.CloseSafe()
	return s.Connect(ctx)
}

// CloseSafe is idempotent teardown. It detaches the sink first so nothing
// in flight can reach subscribers mid-teardown, attempts a graceful close,
// falls back to a hard close on any error, and always clears the handle.
// It never fails.
func (s *Session) CloseSafe() {
	s.mu.Lock()
	c := s.current
	s.current = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	c.detached.Store(true)
	close(c.stopPing)
	c.failPending(faults.Connection(ErrClosed))

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Warn().Interface("panic", r).Msg("panic during channel teardown")
			}
			// Hard close regardless of how the graceful path went.
			_ = c.ws.Close()
		}()
		deadline := s.clock.Now().Add(s.cfg.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			log.Debug().Err(err).Msg("graceful close failed, aborting channel")
		}
	}()
}

// Connected reports whether a channel handle is currently exposed.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Call issues one correlated request on the channel and waits for its
// response. A faulted response comes back as a *faults.ServiceFault; channel
// problems as a *faults.ConnectionFault. Call never blocks the dispatch
// loop: callers invoke it from their own goroutines.
func (s *Session) Call(ctx context.Context, reqType protocol.RequestType, payload interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c == nil {
		return nil, faults.Connection(ErrNotConnected)
	}

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", reqType, err)
		}
		raw = data
	}

	id := uuid.NewString()
	reply := make(chan pendingReply, 1)
	c.pendingMu.Lock()
	c.pending[id] = reply
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	env := &protocol.Envelope{Kind: protocol.FrameRequest, ID: id, Type: string(reqType), Payload: raw}
	if err := c.write(env, s.clock.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return nil, faults.Connection(fmt.Errorf("write %s: %w", reqType, err))
	}

	select {
	case r := <-reply:
		if r.err != nil {
			return nil, r.err
		}
		if r.env.Error != nil {
			return nil, faults.FromProtocol(r.env.Error)
		}
		return r.env.Payload, nil
	case <-ctx.Done():
		return nil, faults.Connection(fmt.Errorf("%s: %w", reqType, ctx.Err()))
	}
}

func (c *conn) write(env *protocol.Envelope, deadline time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteJSON(env)
}

func (c *conn) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- pendingReply{err: err}
		delete(c.pending, id)
	}
}

// readPump decodes envelopes off the socket, routes responses to their
// waiters and events to the sink, and raises the lost signal on failure.
func (s *Session) readPump(c *conn) {
	for {
		var env protocol.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			c.failPending(faults.Connection(err))
			if !c.detached.Load() {
				c.lostOnce.Do(func() {
					log.Warn().Err(err).Msg("duplex channel lost")
					c.sink.OnConnectionLost(faults.Connection(err))
				})
			}
			return
		}

		switch env.Kind {
		case protocol.FrameResponse:
			c.pendingMu.Lock()
			reply := c.pending[env.ID]
			delete(c.pending, env.ID)
			c.pendingMu.Unlock()
			if reply != nil {
				reply <- pendingReply{env: &env}
			} else {
				log.Debug().Str("id", env.ID).Msg("response with no waiter dropped")
			}
		case protocol.FrameEvent:
			if !c.detached.Load() {
				c.sink.OnEvent(&env)
			}
		default:
			log.Debug().Str("kind", string(env.Kind)).Msg("unknown frame kind dropped")
		}
	}
}

func (s *Session) pingLoop(c *conn) {
	ticker := s.clock.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopPing:
			return
		case <-ticker.Chan():
			c.writeMu.Lock()
			deadline := s.clock.Now().Add(s.cfg.WriteTimeout)
			err := c.ws.WriteControl(websocket.PingMessage, nil, deadline)
			c.writeMu.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("ping write failed")
				return
			}
		}
	}
}
