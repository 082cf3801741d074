package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iamasit07/forum-chat/backend/internal/domain"
)

type PostRepo struct {
	DB *sql.DB
}

func NewPostRepo(db *sql.DB) *PostRepo {
	return &PostRepo{DB: db}
}

func (r *PostRepo) CreatePost(ctx context.Context, p *domain.Post) (int64, error) {
	query := `
	INSERT INTO posts (user_id, title, content, category)
	VALUES ($1, $2, $3, $4)
	RETURNING id, created_at;
	`
	if err := r.DB.QueryRowContext(ctx, query, p.UserID, p.Title, p.Content, p.Category).Scan(&p.ID, &p.CreatedAt); err != nil {
		return 0, fmt.Errorf("failed to create post: %w", err)
	}
	return p.ID, nil
}

// ListPosts returns newest first together with the author's nickname.
func (r *PostRepo) ListPosts(ctx context.Context, limit, offset int) ([]domain.Post, error) {
	query := `
	SELECT p.id, p.user_id, u.nickname, p.title, p.content, p.category, p.created_at
	FROM posts p
	JOIN users u ON u.id = p.user_id
	ORDER BY p.created_at DESC, p.id DESC
	LIMIT $1 OFFSET $2;
	`
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]domain.Post, 0)
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.Author, &p.Title, &p.Content, &p.Category, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate post rows: %w", err)
	}

	return posts, nil
}
