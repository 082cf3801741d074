package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/iamasit07/forum-chat/backend/internal/transport/http/middleware"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Auth     *AuthHandler
	Presence *PresenceHandler
	Posts    *PostHandler
	Chat     gin.HandlerFunc
	Sessions middleware.SessionValidator

	AllowedOrigins []string
	StaticDir      string
	Log            zerolog.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(cfg.Log), gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins, cfg.Log))

	authMW := middleware.AuthMiddleware(cfg.Sessions, cfg.Log)

	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

	api := router.Group("/api")
	{
		api.POST("/register", cfg.Auth.Register)
		api.POST("/login", cfg.Auth.Login)
		api.GET("/online-users", cfg.Presence.OnlineUsers)
		api.GET("/posts", cfg.Posts.ListPosts)
	}

	protected := api.Group("/")
	protected.Use(authMW)
	{
		protected.POST("/logout", cfg.Auth.Logout)
		protected.GET("/me", cfg.Auth.Me)
		protected.PUT("/me/nickname", cfg.Auth.UpdateNickname)
		protected.GET("/sessions", cfg.Auth.GetSessionHistory)
		protected.POST("/posts", cfg.Posts.CreatePost)
		protected.POST("/create-post", cfg.Posts.CreatePost)
	}

	// Authenticated inside the handler so a bad token is refused before the upgrade.
	router.GET("/ws/chat", cfg.Chat)

	if cfg.StaticDir != "" {
		serveStatic(router, cfg.StaticDir)
	}

	return router
}

// serveStatic serves the browser client with an index.html fallback for
// client-side routes.
func serveStatic(router *gin.Engine, dir string) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	index := filepath.Join(dir, "index.html")

	router.GET("/", func(c *gin.Context) { c.File(index) })
	router.NoRoute(func(c *gin.Context) {
		urlPath := c.Request.URL.Path
		if strings.HasPrefix(urlPath, "/api/") || strings.HasPrefix(urlPath, "/ws/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		path := filepath.Join(dir, filepath.Clean("/"+urlPath))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			c.File(path)
			return
		}

		if ext := filepath.Ext(urlPath); ext == ".css" || ext == ".js" || ext == ".png" || ext == ".ico" {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(index)
	})
}
