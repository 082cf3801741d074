// Package memory holds map-backed repositories used when no database is
// configured and as fakes in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/samber/lo"
)

type UserRepo struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]domain.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[int64]domain.User)}
}

func (r *UserRepo) CreateUser(_ context.Context, u *domain.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	taken := lo.SomeBy(lo.Values(r.users), func(existing domain.User) bool {
		return existing.Nickname == u.Nickname || strings.EqualFold(existing.Email, u.Email)
	})
	if taken {
		return 0, domain.ErrUserExists
	}

	r.nextID++
	stored := *u
	stored.ID = r.nextID
	if stored.RegisteredAt.IsZero() {
		stored.RegisteredAt = time.Now()
	}
	r.users[stored.ID] = stored
	return stored.ID, nil
}

func (r *UserRepo) GetUserByID(_ context.Context, userID int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// GetUserByIdentifier matches the nickname exactly or the email case-insensitively.
func (r *UserRepo) GetUserByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := lo.Find(lo.Values(r.users), func(u domain.User) bool {
		return u.Nickname == identifier || strings.EqualFold(u.Email, identifier)
	})
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepo) UpdateNickname(_ context.Context, userID int64, nickname string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if lo.SomeBy(lo.Values(r.users), func(other domain.User) bool { return other.ID != userID && other.Nickname == nickname }) {
		return domain.ErrUserExists
	}
	u.Nickname = nickname
	r.users[userID] = u
	return nil
}

type PostRepo struct {
	mu     sync.RWMutex
	nextID int64
	posts  []domain.Post
	now    func() time.Time
}

func NewPostRepo() *PostRepo {
	return &PostRepo{now: time.Now}
}

func (r *PostRepo) CreatePost(_ context.Context, p *domain.Post) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := *p
	stored.ID = r.nextID
	stored.CreatedAt = r.now()
	r.posts = append(r.posts, stored)
	p.ID, p.CreatedAt = stored.ID, stored.CreatedAt
	return stored.ID, nil
}

// ListPosts returns newest first.
func (r *PostRepo) ListPosts(_ context.Context, limit, offset int) ([]domain.Post, error) {
	r.mu.RLock()
	posts := make([]domain.Post, len(r.posts))
	copy(posts, r.posts)
	r.mu.RUnlock()

	sort.SliceStable(posts, func(i, j int) bool { return posts[i].ID > posts[j].ID })

	if offset >= len(posts) {
		return []domain.Post{}, nil
	}
	posts = posts[offset:]
	if limit > 0 && limit < len(posts) {
		posts = posts[:limit]
	}
	return posts, nil
}
