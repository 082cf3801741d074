package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/iamasit07/forum-chat/backend/pkg/httputil"
	"github.com/rs/zerolog"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID    = "user_id"
	ContextNickname  = "nickname"
	ContextSessionID = "session_id"
	ContextToken     = "session_token"
)

const touchTimeout = 5 * time.Second

type SessionValidator interface {
	Validate(ctx context.Context, token string) (domain.Session, error)
	Touch(ctx context.Context, sessionID string) error
}

// AuthMiddleware rejects requests without a live session with 401.
func AuthMiddleware(sessions SessionValidator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := httputil.GetTokenFromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		sess, err := sessions.Validate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, domain.ErrUnauthorized) {
				log.Error().Err(err).Msg("session validation failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				return
			}
			httputil.ClearAuthCookie(c.Writer)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		go func(sessionID string) {
			ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
			defer cancel()
			if err := sessions.Touch(ctx, sessionID); err != nil {
				log.Debug().Err(err).Msg("failed to record session activity")
			}
		}(sess.SessionID)

		c.Set(ContextUserID, sess.UserID)
		c.Set(ContextNickname, sess.Nickname)
		c.Set(ContextSessionID, sess.SessionID)
		c.Set(ContextToken, token)
		c.Next()
	}
}
