package handler

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/freeeve/backstab/internal/logger"
)

const sendBufSize = 256

var errSessionClosed = errors.New("session closed")

// WSConn wraps a WebSocket connection as one server session. Frames queued
// through Write drain to the socket in FIFO order, which is what gives
// per-session notification ordering.
type WSConn struct {
	id       string
	username string
	conn     *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newWSConn(conn *websocket.Conn, username string) *WSConn {
	return &WSConn{
		id:       logger.NewRequestID(),
		username: username,
		conn:     conn,
		send:     make(chan []byte, sendBufSize),
	}
}

// ID returns the session identifier.
func (c *WSConn) ID() string { return c.id }

// Write queues a frame for delivery. Returns an error once the session is
// closed or its buffer is full (slow consumer).
func (c *WSConn) Write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errSessionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errors.New("session send buffer full")
	}
}

// closeSend marks the session closed and closes the send queue.
func (c *WSConn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub tracks the live WebSocket sessions.
type Hub struct {
	mu    sync.RWMutex
	conns map[*WSConn]bool
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*WSConn]bool)}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = true
}

// Unregister removes a connection and closes its send queue.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[c] {
		delete(h.conns, c)
		c.closeSend()
	}
}

// ConnectionCount returns the number of active sessions.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
