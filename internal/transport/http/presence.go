package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/iamasit07/forum-chat/backend/internal/domain"
)

type OnlineLister interface {
	ListOnline() []domain.OnlineUser
}

type PresenceHandler struct {
	presence OnlineLister
}

func NewPresenceHandler(presence OnlineLister) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// OnlineUsers is the polling fallback for clients without a chat socket.
func (h *PresenceHandler) OnlineUsers(c *gin.Context) {
	users := h.presence.ListOnline()
	if users == nil {
		users = []domain.OnlineUser{}
	}
	c.JSON(http.StatusOK, users)
}
