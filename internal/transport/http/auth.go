package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/iamasit07/forum-chat/backend/internal/service/account"
	"github.com/iamasit07/forum-chat/backend/internal/transport/http/middleware"
	"github.com/iamasit07/forum-chat/backend/pkg/httputil"
	"github.com/iamasit07/forum-chat/backend/pkg/useragent"
	"github.com/rs/zerolog"
)

const sessionHistoryLimit = 20

type AuthHandler struct {
	accounts *account.Service
	cookie   httputil.CookieOptions
	log      zerolog.Logger
}

func NewAuthHandler(accounts *account.Service, cookie httputil.CookieOptions, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, cookie: cookie, log: log}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req account.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{"Invalid request body"}})
		return
	}

	user, problems, err := h.accounts.Register(c.Request.Context(), req)
	switch {
	case errors.Is(err, domain.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"errors": []string{"Nickname or email already taken"}})
		return
	case err != nil:
		h.log.Error().Err(err).Msg("registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"errors": []string{"Internal server error"}})
		return
	case len(problems) > 0:
		c.JSON(http.StatusBadRequest, gin.H{"errors": problems})
		return
	}

	resp := gin.H{"message": "Registration successful", "user_id": user.ID, "nickname": user.Nickname}

	// Registration also signs the user in; a failure here still leaves a valid account.
	res, err := h.accounts.StartSession(c.Request.Context(), user, sessionMeta(c))
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to start session after registration")
	} else {
		httputil.SetAuthCookie(c.Writer, res.Token, h.cookie)
		resp["session_token"] = res.Token
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username   string `json:"username"`
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Username)
	}

	res, err := h.accounts.Login(c.Request.Context(), identifier, req.Password, sessionMeta(c))
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error_type": "user_not_found"})
		return
	case errors.Is(err, domain.ErrBadPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error_type": "bad_password"})
		return
	case err != nil:
		h.log.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	httputil.SetAuthCookie(c.Writer, res.Token, h.cookie)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"session_token": res.Token,
		"nickname":      res.User.Nickname,
		"user_id":       res.User.ID,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	err := h.accounts.Logout(c.Request.Context(), c.GetString(middleware.ContextToken))
	if err != nil && !errors.Is(err, domain.ErrUnauthorized) {
		h.log.Error().Err(err).Msg("logout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	httputil.ClearAuthCookie(c.Writer)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.accounts.Profile(c.Request.Context(), c.GetInt64(middleware.ContextUserID))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		h.log.Error().Err(err).Msg("profile lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) UpdateNickname(c *gin.Context) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": []string{"Invalid request body"}})
		return
	}

	user, problems, err := h.accounts.UpdateNickname(c.Request.Context(), c.GetInt64(middleware.ContextUserID), req.Nickname)
	switch {
	case errors.Is(err, domain.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"errors": []string{"Nickname already taken"}})
	case errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"errors": []string{"User not found"}})
	case err != nil:
		h.log.Error().Err(err).Msg("nickname update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"errors": []string{"Internal server error"}})
	case len(problems) > 0:
		c.JSON(http.StatusBadRequest, gin.H{"errors": problems})
	default:
		c.JSON(http.StatusOK, user)
	}
}

type sessionView struct {
	DeviceInfo   string    `json:"device_info"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsActive     bool      `json:"is_active"`
	Current      bool      `json:"current"`
}

func (h *AuthHandler) GetSessionHistory(c *gin.Context) {
	sessions, err := h.accounts.Sessions(c.Request.Context(), c.GetInt64(middleware.ContextUserID), sessionHistoryLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("session history lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	current := c.GetString(middleware.ContextSessionID)
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			DeviceInfo:   s.DeviceInfo,
			IPAddress:    s.IPAddress,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			ExpiresAt:    s.ExpiresAt,
			IsActive:     s.IsActive,
			Current:      s.SessionID == current,
		})
	}
	c.JSON(http.StatusOK, views)
}

func sessionMeta(c *gin.Context) domain.SessionMeta {
	return domain.SessionMeta{
		DeviceInfo: useragent.ExtractDeviceInfo(c.Request),
		IPAddress:  useragent.ExtractIPAddress(c.Request),
	}
}
