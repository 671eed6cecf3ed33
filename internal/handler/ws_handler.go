package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/backstab/internal/auth"
	"github.com/freeeve/backstab/internal/server"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second // Must be less than pongWait
	maxMsgSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware; tighten in production
	},
}

// WSHandler upgrades HTTP requests to the long-lived frame channel and
// pumps request frames into the dispatcher.
type WSHandler struct {
	hub    *Hub
	srv    *server.Server
	jwtMgr *auth.JWTManager
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, srv *server.Server, jwtMgr *auth.JWTManager) *WSHandler {
	return &WSHandler{hub: hub, srv: srv, jwtMgr: jwtMgr}
}

// ServeWS handles GET /ws — upgrades to WebSocket. The connection
// authenticates via a ?token= JWT from the login endpoint (WebSocket
// clients cannot send headers); channel tokens are issued later by
// sign_in frames.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, `{"error":"missing token parameter"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtMgr.ValidateToken(tokenStr)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := newWSConn(conn, claims.Username)
	h.hub.Register(client)
	h.srv.AttachSession(client)

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("username", claims.Username).Str("session", client.ID()).
		Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump reads request frames and dispatches them synchronously, so a
// session's responses commit in the order its requests arrived.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		h.srv.DetachSession(c.ID())
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("username", c.username).Str("session", c.ID()).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("username", c.username).Msg("WebSocket unexpected close")
			}
			break
		}
		h.srv.Dispatch(c, message)
	}
}

// writePump drains the session's send queue to the socket.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
