package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/classroomgames/tugquiz/internal/router"
	"github.com/classroomgames/tugquiz/internal/session"
	"github.com/classroomgames/tugquiz/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 32 * 1024
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConnection adapts a gorilla/websocket.Conn to session.Connection.
// Outbound writes never happen directly from the actor goroutine: every
// Send just pushes onto a buffered channel that a dedicated write pump
// drains, so a slow client can never block the session actor (§4.6, §4.8).
type wsConnection struct {
	id     string
	role   session.Role
	userID string
	teamID string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	limiter *session.RateLimiter
	log     zerolog.Logger
}

func newWSConnection(conn *websocket.Conn, claims *Claims, rateLimitPerSecond int, log zerolog.Logger) *wsConnection {
	return &wsConnection{
		id:      uuid.NewString(),
		role:    claims.Role,
		userID:  claims.UserID,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		limiter: session.NewRateLimiter(rateLimitPerSecond, time.Second),
		log:     log,
	}
}

func (c *wsConnection) ID() string              { return c.id }
func (c *wsConnection) Role() session.Role      { return c.role }
func (c *wsConnection) UserID() string          { return c.userID }
func (c *wsConnection) TeamID() string          { return c.teamID }
func (c *wsConnection) SetTeamID(teamID string) { c.teamID = teamID }

func (c *wsConnection) Send(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		// Slow consumer: drop rather than block the broadcaster, matching
		// the non-blocking select-with-default send used elsewhere in the
		// pack's hub implementations.
		c.log.Warn().Str("connId", c.id).Msg("send buffer full, dropping frame")
		return nil
	}
}

func (c *wsConnection) Close(code int, reason string) error {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return c.conn.Close()
}

// writePump drains c.send and forwards frames to the socket, plus a
// periodic ping to keep intermediaries from closing an idle connection.
func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump authenticates the connection via the first HELLO frame, then
// decodes and dispatches every subsequent frame through the Message
// Router, enforcing the per-connection rate limit before it ever reaches
// the actor (§4.8).
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}
	var hello wire.Hello
	if err := json.Unmarshal(raw, &hello); err != nil || hello.Type != wire.TypeHello {
		_ = conn.WriteJSON(wire.Error{Type: wire.TypeError, Code: wire.ErrInvalidMessage, Message: "first frame must be HELLO"})
		conn.Close()
		return
	}
	claims, err := s.auth.Verify(hello.Token)
	if err != nil {
		_ = conn.WriteJSON(wire.Error{Type: wire.TypeError, Code: wire.ErrInvalidToken, Message: "token is invalid or expired"})
		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"), deadline)
		conn.Close()
		return
	}

	actor, err := s.manager.Get(ctx, claims.SessionID)
	if err != nil {
		_ = conn.WriteJSON(wire.Error{Type: wire.TypeError, Code: wire.ErrSessionNotFound, Message: "session not found"})
		conn.Close()
		return
	}

	wc := newWSConnection(conn, claims, s.cfg.WSRateLimitPerSecond, s.log)
	go wc.writePump()
	actor.Enqueue(func(ctx context.Context) { actor.HandleConnect(ctx, wc, &hello) })

	defer func() {
		actor.Enqueue(func(ctx context.Context) { actor.HandleDisconnect(ctx, wc) })
		_ = wc.Close(wire.CloseNormal, "")
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !wc.limiter.Allow() {
			_ = wc.Send(wire.Error{Type: wire.TypeError, Code: wire.ErrRateLimited, Message: "too many messages"})
			continue
		}
		if err := router.Dispatch(actor, wc, raw); err != nil {
			_ = wc.Send(wire.Error{Type: wire.TypeError, Code: wire.ErrInvalidMessage, Message: err.Error()})
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and blocks
// for the lifetime of the connection; the session id is resolved from the
// HELLO frame's token, not the URL, so one endpoint serves every session.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.readPump(r.Context(), conn)
}
