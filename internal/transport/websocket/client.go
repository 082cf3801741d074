package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/rs/zerolog"
)

// Socket is the part of *websocket.Conn the hub uses.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
	Close() error
}

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// FrameHandler processes one inbound frame read from c.
type FrameHandler func(ctx context.Context, c *Client, data []byte)

// Client is one live chat connection. A user may hold several.
type Client struct {
	id          string
	userID      int64
	nickname    string
	sessionID   string
	token       string
	connectedAt time.Time

	hub     *Hub
	socket  Socket
	send    chan []byte
	done    chan struct{}
	state   atomic.Int32
	limiter *rateLimiter
	log     zerolog.Logger
}

func newClient(h *Hub, socket Socket, sess domain.Session, token string) *Client {
	id := uuid.New().String()
	return &Client{
		id:          id,
		userID:      sess.UserID,
		nickname:    sess.Nickname,
		sessionID:   sess.SessionID,
		token:       token,
		connectedAt: h.now(),
		hub:         h,
		socket:      socket,
		send:        make(chan []byte, h.cfg.SendBuffer),
		done:        make(chan struct{}),
		limiter:     newRateLimiter(h.cfg.RateBurst, h.cfg.RateInterval, h.now),
		log:         h.log.With().Str("conn_id", id).Int64("user_id", sess.UserID).Logger(),
	}
}

func (c *Client) ID() string             { return c.id }
func (c *Client) UserID() int64          { return c.userID }
func (c *Client) Nickname() string       { return c.nickname }
func (c *Client) SessionID() string      { return c.sessionID }
func (c *Client) Token() string          { return c.token }
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }
func (c *Client) State() State           { return State(c.state.Load()) }

// Done is closed once the connection is unregistered.
func (c *Client) Done() <-chan struct{} { return c.done }

// SendFrame queues a frame for this connection only.
func (c *Client) SendFrame(msg domain.ServerMessage) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode frame")
		return false
	}
	return c.enqueue(payload, c.hub.cfg.SendTimeout)
}

// Serve runs the read loop on the calling goroutine until the connection
// closes, then unregisters it.
func (c *Client) Serve(ctx context.Context, handle FrameHandler) {
	defer c.hub.Unregister(c)

	pongWait := c.hub.cfg.PongWait
	c.socket.SetReadLimit(c.hub.cfg.MaxFrameSize)
	if err := c.socket.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug().Err(err).Msg("failed to set read deadline")
		return
	}
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.allow() {
			c.log.Warn().Int("burst", c.hub.cfg.RateBurst).Dur("interval", c.hub.cfg.RateInterval).Msg("rate limit exceeded, frame discarded")
			c.SendFrame(domain.ServerMessage{Type: domain.FrameError, Message: "rate limit exceeded"})
			continue
		}

		handle(ctx, c, data)
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.hub.cfg.MaxFrameSize).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Debug().Msg("client closed connection")
	case c.State() == StateClosed:
		c.log.Debug().Msg("connection closed by server")
	default:
		c.log.Info().Err(err).Msg("connection lost")
	}
}

// enqueue waits at most timeout for room in the write queue.
func (c *Client) enqueue(payload []byte, timeout time.Duration) bool {
	if c.State() != StateOpen {
		return false
	}

	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	case <-timer.C:
		return false
	}
}

// closeAfter queues payload followed by a close marker so the write pump
// flushes the frame before closing. A full queue closes immediately.
func (c *Client) closeAfter(payload []byte) {
	if c.State() != StateOpen {
		return
	}
	if payload != nil {
		select {
		case c.send <- payload:
		default:
			c.hub.Unregister(c)
			return
		}
	}
	select {
	case c.send <- nil:
	default:
		c.hub.Unregister(c)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.Unregister(c)
		c.hub.wg.Done()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if payload == nil {
				c.writeClose()
				return
			}
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.log.Info().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Info().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.socket.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait)); err != nil {
		return err
	}
	return c.socket.WriteMessage(messageType, data)
}

func (c *Client) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.hub.cfg.WriteWait)); err != nil {
		c.log.Debug().Err(err).Msg("failed to write close frame")
	}
}
