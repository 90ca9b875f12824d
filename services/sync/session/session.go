// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session maintains the websocket link to the observed model
// process. It is the ordering boundary of the whole pipeline: frames
// are read one at a time and dispatched sequentially, so diff
// application downstream sees exactly the wire order.
//
// The session survives connection loss. Outbound messages produced
// while the link is down are queued in FIFO order and flushed when the
// connection reopens; reconnects back off exponentially up to a cap.
// A manual Close is sticky: no reconnect is attempted until the next
// Run.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/tensorviz/pkg/logging"
	"github.com/AleutianAI/tensorviz/services/sync/protocol"
)

// Status describes the session lifecycle state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
	StatusClosed       Status = "closed"
)

// ErrClosed is returned by Send after a manual Close.
var ErrClosed = errors.New("session closed")

// Conn is a single established message connection.
//
// ReadMessage blocks until a frame arrives or the connection fails.
// Implementations need not be safe for concurrent writes; the session
// serializes them.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens connections to the sync endpoint. The session redials
// through the same Dialer on every reconnect.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Handler receives a validated inbound message. Handlers run on the
// read goroutine, one at a time, in subscription order. A slow handler
// delays everything behind it.
type Handler func(msgType protocol.MessageType, msg any)

// Config holds session tuning knobs.
type Config struct {
	// URL is the websocket endpoint of the model process.
	URL string

	// BackoffBase is the delay of the first reconnect attempt.
	// Default: DefaultBackoffBase.
	BackoffBase time.Duration

	// BackoffCap bounds the reconnect delay.
	// Default: DefaultBackoffCap.
	BackoffCap time.Duration

	// MaxAttempts bounds consecutive reconnect attempts. When the
	// budget is spent the session goes terminally disconnected; the
	// state is reported, never returned as an error.
	// Default: DefaultMaxAttempts.
	MaxAttempts int

	// OnStatus, when non-nil, is invoked on every lifecycle state
	// change. Called from session goroutines; keep it fast.
	OnStatus func(Status)
}

type subscription struct {
	id      int
	msgType protocol.MessageType
	fn      Handler
}

// Session is a reconnecting websocket client with validated dispatch.
//
// # Description
// Run drives the connect/read/reconnect loop until the context is
// cancelled or Close is called. Inbound frames pass through the
// protocol validator; frames that fail are counted, logged, and
// dropped without disturbing the stream. Outbound messages are
// validated and marshalled at Send time, then written immediately or
// queued until a connection is open.
//
// # Thread Safety
// All exported methods are safe for concurrent use. Dispatch itself is
// single-threaded on the read goroutine.
type Session struct {
	cfg       Config
	dialer    Dialer
	validator *protocol.Validator
	logger    *logging.Logger
	tracer    trace.Tracer

	mu          sync.Mutex
	status      Status
	conn        Conn
	connID      string
	manualClose bool
	pending     [][]byte
	subs        []subscription
	nextSubID   int

	// test hook
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a session. The dialer abstracts the transport; use
// NewWebsocketDialer for the real thing.
func New(cfg Config, dialer Dialer, logger *logging.Logger) *Session {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Session{
		cfg:       cfg,
		dialer:    dialer,
		validator: protocol.NewValidator(),
		logger:    logger,
		tracer:    otel.Tracer("tensorviz/session"),
		status:    StatusIdle,
		sleep:     sleepCtx,
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ConnectionID returns the id of the current connection, or "" when
// no connection is open. Each successful dial gets a fresh id.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// QueueLen reports how many outbound frames are waiting for a
// connection.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Subscribe registers a handler for one message type and returns an
// unsubscribe function. Handlers for the same type fire in
// registration order.
func (s *Session) Subscribe(msgType protocol.MessageType, fn Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, msgType: msgType, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Send validates, marshals, and transmits an outbound message.
//
// The message is serialized immediately, so later mutation of msg
// cannot change what goes on the wire. If no connection is open the
// frame is queued FIFO and flushed on the next successful dial. A
// write failure re-queues the frame at the head; it is never lost
// short of process exit.
//
// # Outputs
//   - error: validation or marshal failure (frame dropped), or
//     ErrClosed after a manual Close.
func (s *Session) Send(msg any) error {
	if err := s.validator.ValidateOutbound(msg); err != nil {
		return err
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manualClose {
		return ErrClosed
	}
	if s.status == StatusOpen && s.conn != nil {
		if werr := s.conn.WriteMessage(frame); werr != nil {
			// The read loop will notice the dead connection and
			// reconnect; keep the frame for the flush.
			s.pending = append([][]byte{frame}, s.pending...)
			s.logger.Warn("write failed, frame queued",
				"connection_id", s.connID, "error", werr.Error())
			return nil
		}
		return nil
	}
	s.pending = append(s.pending, frame)
	return nil
}

// Close shuts the session down. The closed state is sticky: the read
// loop exits, Send returns ErrClosed, and no reconnect happens until
// Run is called again.
func (s *Session) Close() error {
	s.mu.Lock()
	s.manualClose = true
	s.status = StatusClosed
	conn := s.conn
	s.conn = nil
	s.connID = ""
	s.mu.Unlock()
	s.notify(StatusClosed)

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Run drives the session until the context is cancelled, Close is
// called, or the reconnect budget is exhausted. It clears any previous
// manual-close state, so a closed session can be restarted by calling
// Run again.
//
// Exhausting the reconnect budget is not an error: the session settles
// into StatusDisconnected and Run returns nil. Callers observe the
// state through Status or the OnStatus callback.
//
// # Outputs
//   - error: the context error on cancellation; nil on manual Close
//     or terminal disconnect.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.manualClose = false
	s.status = StatusConnecting
	s.mu.Unlock()
	s.notify(StatusConnecting)

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			s.setStatus(StatusDisconnected)
			return err
		}

		conn, err := s.dialer.Dial(ctx, s.cfg.URL)
		if err != nil {
			if ctx.Err() != nil {
				s.setStatus(StatusDisconnected)
				return ctx.Err()
			}
			if s.isClosed() {
				return nil
			}
			if attempts >= s.cfg.MaxAttempts {
				// Budget spent: terminal, reported state.
				s.setStatus(StatusDisconnected)
				s.logger.Error("reconnect budget exhausted",
					"endpoint", s.cfg.URL, "attempts", attempts)
				return nil
			}
			// The counter is bumped before scheduling, so the first
			// retry already waits base*2.
			attempts++
			reconnectsTotal.Inc()
			delay := BackoffDelay(attempts, s.cfg.BackoffBase, s.cfg.BackoffCap)
			s.setStatus(StatusReconnecting)
			s.logger.Warn("dial failed, backing off",
				"endpoint", s.cfg.URL, "attempt", attempts,
				"delay", delay.String(), "error", err.Error())
			if serr := s.sleep(ctx, delay); serr != nil {
				s.setStatus(StatusDisconnected)
				return serr
			}
			continue
		}

		connID := uuid.NewString()
		s.mu.Lock()
		if s.manualClose {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conn = conn
		s.connID = connID
		s.status = StatusOpen
		s.mu.Unlock()
		s.notify(StatusOpen)
		attempts = 0
		s.logger.Info("connection open",
			"endpoint", s.cfg.URL, "connection_id", connID)

		s.flushPending(conn)

		if done := s.readLoop(ctx, conn); done {
			return ctx.Err()
		}
		attempts++
		reconnectsTotal.Inc()
		delay := BackoffDelay(attempts, s.cfg.BackoffBase, s.cfg.BackoffCap)
		s.setStatus(StatusReconnecting)
		s.logger.Warn("connection lost, reconnecting",
			"endpoint", s.cfg.URL, "attempt", attempts, "delay", delay.String())
		if serr := s.sleep(ctx, delay); serr != nil {
			s.setStatus(StatusDisconnected)
			return serr
		}
	}
}

// flushPending writes queued frames oldest first. A write failure
// stops the flush; the remaining frames wait for the next connection.
func (s *Session) flushPending(conn Conn) {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		frame := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		if err := conn.WriteMessage(frame); err != nil {
			s.mu.Lock()
			s.pending = append([][]byte{frame}, s.pending...)
			s.mu.Unlock()
			s.logger.Warn("queue flush interrupted", "error", err.Error())
			return
		}
		queueFlushedTotal.Inc()
	}
}

// readLoop pumps frames until the connection dies. Returns true when
// the loop must not reconnect (context done or manual close).
func (s *Session) readLoop(ctx context.Context, conn Conn) bool {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connID = ""
			}
			closed := s.manualClose
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				return true
			}
			s.setStatus(StatusDisconnected)
			return false
		}
		s.dispatch(ctx, frame)
	}
}

// dispatch validates one frame and fans it out to subscribers in
// registration order. Invalid frames are dropped; the stream
// continues.
func (s *Session) dispatch(ctx context.Context, frame []byte) {
	framesReceivedTotal.Inc()

	ctx, span := s.tracer.Start(ctx, "session.dispatch")
	defer span.End()

	msgType, msg, err := s.validator.Decode(frame)
	if err != nil {
		reason := "schema"
		switch {
		case errors.Is(err, protocol.ErrMalformedFrame):
			reason = "malformed"
		case errors.Is(err, protocol.ErrUnknownType):
			reason = "unknown_type"
		}
		framesDroppedTotal.WithLabelValues(reason).Inc()
		span.RecordError(err)
		s.logger.Warn("frame dropped",
			"reason", reason, "type", string(msgType), "error", err.Error())
		return
	}
	span.SetAttributes(attribute.String("message.type", string(msgType)))
	framesDispatchedTotal.WithLabelValues(string(msgType)).Inc()

	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.msgType == msgType {
			handlers = append(handlers, sub.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(msgType, msg)
	}
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	if s.manualClose {
		s.mu.Unlock()
		return
	}
	s.status = st
	s.mu.Unlock()
	s.notify(st)
}

func (s *Session) notify(st Status) {
	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(st)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manualClose
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// wsConn adapts a gorilla connection to Conn. Control frames are
// handled inside gorilla's ReadMessage.
type wsConn struct {
	c  *websocket.Conn
	wm sync.Mutex
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) WriteMessage(data []byte) error {
	w.wm.Lock()
	defer w.wm.Unlock()
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	w.wm.Lock()
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.wm.Unlock()
	return w.c.Close()
}

// WebsocketDialer dials real websocket endpoints.
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer returns a dialer with a 10s handshake timeout.
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial opens a websocket connection to url.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{c: c}, nil
}
