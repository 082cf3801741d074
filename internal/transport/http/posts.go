package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/iamasit07/forum-chat/backend/internal/transport/http/middleware"
	"github.com/rs/zerolog"
)

const (
	defaultPostLimit = 50
	maxPostLimit     = 100
	maxTitleLength   = 200
)

type PostRepository interface {
	CreatePost(ctx context.Context, p *domain.Post) (int64, error)
	ListPosts(ctx context.Context, limit, offset int) ([]domain.Post, error)
}

type PostHandler struct {
	posts PostRepository
	log   zerolog.Logger
}

func NewPostHandler(posts PostRepository, log zerolog.Logger) *PostHandler {
	return &PostHandler{posts: posts, log: log}
}

func (h *PostHandler) ListPosts(c *gin.Context) {
	limit := queryInt(c, "limit", defaultPostLimit)
	if limit <= 0 || limit > maxPostLimit {
		limit = defaultPostLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	posts, err := h.posts.ListPosts(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list posts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if posts == nil {
		posts = []domain.Post{}
	}
	c.JSON(http.StatusOK, posts)
}

func (h *PostHandler) CreatePost(c *gin.Context) {
	var req struct {
		Title    string `json:"title"`
		Content  string `json:"content"`
		Category string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	post := domain.Post{
		UserID:   c.GetInt64(middleware.ContextUserID),
		Author:   c.GetString(middleware.ContextNickname),
		Title:    strings.TrimSpace(req.Title),
		Content:  strings.TrimSpace(req.Content),
		Category: strings.ToLower(strings.TrimSpace(req.Category)),
	}
	if post.Title == "" || post.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrPostInvalid.Error()})
		return
	}
	if len([]rune(post.Title)) > maxTitleLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is too long"})
		return
	}
	if post.Category == "" {
		post.Category = domain.DefaultPostCategory
	}

	id, err := h.posts.CreatePost(c.Request.Context(), &post)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create post")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	post.ID = id

	c.JSON(http.StatusCreated, post)
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
