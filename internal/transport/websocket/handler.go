package websocket

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/iamasit07/forum-chat/backend/pkg/httputil"
	"github.com/rs/zerolog"
)

type MessageRouter interface {
	Route(ctx context.Context, senderToken string, receiverID int64, content string) (domain.PrivateMessage, error)
}

type Handler struct {
	hub      *Hub
	router   MessageRouter
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHandler(hub *Hub, router MessageRouter, allowedOrigins []string, log zerolog.Logger) *Handler {
	policy := newOriginPolicy(allowedOrigins)
	return &Handler{
		hub:    hub,
		router: router,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if policy.check(r) {
					return true
				}
				log.Warn().Str("origin", r.Header.Get("Origin")).Msg("blocked chat connection from disallowed origin")
				return false
			},
		},
	}
}

// HandleWebSocket authenticates the handshake, upgrades and serves the
// connection until it closes.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token, err := httputil.GetTokenFromRequest(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if _, err := h.hub.sessions.Validate(c.Request.Context(), token); err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, domain.ErrUnauthorized) {
			status = http.StatusInternalServerError
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	client, err := h.hub.Register(ctx, token, conn)
	if err != nil {
		h.log.Info().Err(err).Msg("connection rejected")
		return
	}

	client.Serve(ctx, h.handleFrame)
}

func (h *Handler) handleFrame(ctx context.Context, c *Client, data []byte) {
	msg, err := parseClientMessage(data)
	if err != nil {
		c.SendFrame(domain.ServerMessage{Type: domain.FrameError, Message: "invalid message format"})
		return
	}
	if msg.Type != domain.FramePrivateMessage {
		c.SendFrame(domain.ServerMessage{Type: domain.FrameError, Message: "unsupported message type"})
		return
	}

	pm, err := h.router.Route(ctx, c.Token(), int64(msg.ReceiverID), msg.Content)
	switch {
	case err == nil:
		c.SendFrame(deliveryFrame(pm, ""))
	case errors.Is(err, domain.ErrUnauthorized):
		c.SendFrame(domain.ServerMessage{Type: domain.FrameError, Message: "session expired"})
		c.closeAfter(nil)
	case errors.Is(err, domain.ErrInvalidMessage), errors.Is(err, domain.ErrUnknownReceiver):
		c.SendFrame(domain.ServerMessage{Type: domain.FrameError, Message: err.Error()})
	case errors.Is(err, domain.ErrNoActiveConnection):
		c.SendFrame(deliveryFrame(pm, "user offline"))
	default:
		c.log.Error().Err(err).Int64("receiver_id", int64(msg.ReceiverID)).Msg("routing failed")
		pm.ReceiverID = int64(msg.ReceiverID)
		pm.DeliveryState = domain.DeliveryFailed
		c.SendFrame(deliveryFrame(pm, "delivery failed"))
	}
}
