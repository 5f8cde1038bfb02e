package wled

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnecting
	stateOpen
)

// wsConn is the slice of *websocket.Conn the session uses; tests
// substitute a fake.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	Close() error
}

type dialFunc func(ctx context.Context, url string) (wsConn, error)

type connectAttempt struct {
	done chan struct{}
	err  error
}

// Session is the single lazily-connected WebSocket to the hardware
// endpoint, shared process-wide. Messages sent while not open are
// queued and flushed FIFO once the connection establishes. There is no
// backoff here; retry cadence is driven entirely by the sync loop.
type Session struct {
	url  string
	dial dialFunc
	log  zerolog.Logger

	mu      sync.Mutex
	state   sessionState
	conn    wsConn
	attempt *connectAttempt
	queue   [][]byte
}

// NewSession prepares a session for url without connecting.
func NewSession(url string, log zerolog.Logger) *Session {
	return &Session{
		url: url,
		dial: func(ctx context.Context, url string) (wsConn, error) {
			c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		log: log,
	}
}

// Send delivers payload immediately when the connection is open,
// otherwise enqueues it and triggers (or joins) a connect attempt.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	if s.state == stateOpen {
		err := s.conn.WriteMessage(websocket.TextMessage, payload)
		if err != nil {
			s.resetLocked()
		}
		s.mu.Unlock()
		return err
	}
	s.queue = append(s.queue, payload)
	s.mu.Unlock()
	return s.ensureConnected(ctx)
}

// ensureConnected is idempotent: concurrent callers share one in-flight
// connect attempt instead of racing to open duplicate sockets.
func (s *Session) ensureConnected(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateOpen:
		s.mu.Unlock()
		return nil
	case stateConnecting:
		att := s.attempt
		s.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	att := &connectAttempt{done: make(chan struct{})}
	s.attempt = att
	s.state = stateConnecting
	s.mu.Unlock()

	conn, err := s.dial(ctx, s.url)

	s.mu.Lock()
	s.attempt = nil
	if err != nil {
		s.state = stateDisconnected
		att.err = err
		close(att.done)
		s.mu.Unlock()
		return err
	}
	s.conn = conn
	s.state = stateOpen
	s.flushQueueLocked()
	close(att.done)
	s.mu.Unlock()

	go s.readUntilClosed(conn)
	return nil
}

// flushQueueLocked drains the queue FIFO over the open connection. A
// write failure resets the session; undelivered messages stay queued
// for the next connect.
func (s *Session) flushQueueLocked() {
	for len(s.queue) > 0 {
		msg := s.queue[0]
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.log.Warn().Err(err).Msg("queue flush write failed")
			s.resetLocked()
			return
		}
		s.queue = s.queue[1:]
	}
	s.queue = nil
}

// readUntilClosed drains inbound frames (WLED echoes state) and resets
// the session when the peer closes or errors.
func (s *Session) readUntilClosed(conn wsConn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.resetLocked()
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *Session) resetLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.state = stateDisconnected
}

// Close discards the connection; queued messages are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	s.resetLocked()
	s.queue = nil
	s.mu.Unlock()
}
