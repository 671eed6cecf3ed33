// Package client implements the connection side of the protocol: request
// futures, channels, network games, and the reconnection routine that
// resynchronises state after a connection loss.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/backstab/internal/protocol"
)

// RequestContext stores a request awaiting its response, with the game it
// belongs to when game-level.
type RequestContext struct {
	Header  protocol.Header
	Payload any
	Game    *NetworkGame

	done     chan struct{}
	mu       sync.Mutex
	response *protocol.Response
	err      error
}

func newRequestContext(h protocol.Header, payload any, game *NetworkGame) *RequestContext {
	return &RequestContext{Header: h, Payload: payload, Game: game, done: make(chan struct{})}
}

// complete resolves the future once; later completions are dropped.
func (rc *RequestContext) complete(resp *protocol.Response, err error) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	select {
	case <-rc.done:
		return false
	default:
	}
	rc.response = resp
	rc.err = err
	close(rc.done)
	return true
}

// Wait blocks until the response or an error arrives.
func (rc *RequestContext) Wait(ctx context.Context) (*protocol.Response, error) {
	select {
	case <-rc.done:
		if rc.err != nil {
			return nil, rc.err
		}
		if rc.response != nil && rc.response.Error != nil {
			return nil, rc.response.Error
		}
		return rc.response, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NotificationHandler receives server notifications.
type NotificationHandler func(*protocol.Notification)

// Connection is one long-lived bidirectional frame channel plus its
// channels (one per token) and pending request futures.
type Connection struct {
	url string

	mu       sync.Mutex
	ws       *websocket.Conn
	pending  map[string]*RequestContext // requests awaiting responses
	channels map[string]*Channel        // token -> channel
	seq      int
	epoch    int // incremented on each reconnect
	closed   bool

	writeMu sync.Mutex

	onNotification NotificationHandler
	reconnected    chan struct{} // signalled when a reconnection completes
}

// Dial opens a connection to the server's WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Connection, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	c := &Connection{
		url:         url,
		ws:          ws,
		pending:     make(map[string]*RequestContext),
		channels:    make(map[string]*Channel),
		reconnected: make(chan struct{}, 1),
	}
	go c.readLoop(ws, c.epoch)
	return c, nil
}

// OnNotification installs the notification callback.
func (c *Connection) OnNotification(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNotification = h
}

// Close tears down the connection without reconnecting.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.closed = true
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		return ws.Close()
	}
	return nil
}

// Reconnected exposes the reconnection-complete signal.
func (c *Connection) Reconnected() <-chan struct{} { return c.reconnected }

// nextRequestID mints a connection-unique request id.
func (c *Connection) nextRequestID() string {
	c.seq++
	return fmt.Sprintf("req-%06d", c.seq)
}

// Send registers a request future and writes its frame.
func (c *Connection) Send(h protocol.Header, payload any, game *NetworkGame) (*RequestContext, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("client: connection closed")
	}
	if h.RequestID == "" {
		h.RequestID = c.nextRequestID()
	}
	rc := newRequestContext(h, payload, game)
	c.pending[h.RequestID] = rc
	c.mu.Unlock()

	if err := c.writeRequest(rc); err != nil {
		c.mu.Lock()
		delete(c.pending, h.RequestID)
		c.mu.Unlock()
		return nil, err
	}
	return rc, nil
}

// writeRequest frames and writes one request.
func (c *Connection) writeRequest(rc *RequestContext) error {
	frame, err := protocol.EncodeFrame(rc.Header, rc.Payload)
	if err != nil {
		return fmt.Errorf("client: encode %s: %w", rc.Header.Name, err)
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("client: not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("client: write %s: %w", rc.Header.Name, err)
	}
	return nil
}

// Do sends a request and waits for its response.
func (c *Connection) Do(ctx context.Context, h protocol.Header, payload any, game *NetworkGame) (*protocol.Response, error) {
	rc, err := c.Send(h, payload, game)
	if err != nil {
		return nil, err
	}
	return rc.Wait(ctx)
}

// SignIn authenticates and returns the channel for the minted token.
func (c *Connection) SignIn(ctx context.Context, username, password string) (*Channel, error) {
	resp, err := c.Do(ctx, protocol.Header{Name: protocol.ReqSignIn},
		protocol.SignIn{Username: username, Password: password}, nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("client: sign_in response: %w", err)
	}
	ch := newChannel(c, data.Token)
	c.mu.Lock()
	c.channels[data.Token] = ch
	c.mu.Unlock()
	return ch, nil
}

// readLoop consumes frames until the socket dies, then triggers the
// reconnection routine. The epoch guards against a stale loop delivering
// into a newer connection.
func (c *Connection) readLoop(ws *websocket.Conn, epoch int) {
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			c.handleDisconnect(epoch, err)
			return
		}
		c.handleFrame(frame)
	}
}

func (c *Connection) handleFrame(frame []byte) {
	switch protocol.ClassifyFrame(frame) {
	case protocol.FrameResponse:
		var resp protocol.Response
		if err := json.Unmarshal(frame, &resp); err != nil {
			log.Warn().Err(err).Msg("Malformed response frame")
			return
		}
		c.mu.Lock()
		rc := c.pending[resp.RequestID]
		delete(c.pending, resp.RequestID)
		c.mu.Unlock()
		if rc != nil {
			rc.complete(&resp, nil)
		}

	case protocol.FrameNotification:
		notif, err := protocol.DecodeNotificationHeader(frame)
		if err != nil {
			log.Warn().Err(err).Msg("Malformed notification frame")
			return
		}
		c.dispatchNotification(&notif)
	}
}

func (c *Connection) dispatchNotification(n *protocol.Notification) {
	c.mu.Lock()
	handler := c.onNotification
	ch := c.channels[n.Token]
	c.mu.Unlock()

	if ch != nil && n.GameID != "" {
		ch.applyNotification(n)
	}
	if handler != nil {
		handler(n)
	}
}

// handleDisconnect redials and runs the reconnection routine.
func (c *Connection) handleDisconnect(epoch int, cause error) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.epoch++
	newEpoch := c.epoch
	c.ws = nil
	c.mu.Unlock()

	log.Warn().Err(cause).Msg("Connection lost, reconnecting")

	ws, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		log.Error().Err(err).Msg("Redial failed")
		return
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	go c.readLoop(ws, newEpoch)

	newReconnection(c, newEpoch).reconnect()
}

// takePending atomically drains the pending request map.
func (c *Connection) takePending() map[string]*RequestContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = make(map[string]*RequestContext)
	return out
}

// restorePending re-registers a future under its request id.
func (c *Connection) restorePending(rc *RequestContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[rc.Header.RequestID] = rc
}

// allChannels snapshots the channels map.
func (c *Connection) allChannels() []*Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// signalReconnected makes one reconnection-complete signal available.
func (c *Connection) signalReconnected() {
	select {
	case c.reconnected <- struct{}{}:
	default:
	}
}
