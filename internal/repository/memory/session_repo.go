package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/samber/lo"
)

type SessionRepo struct {
	mu       sync.RWMutex
	nextID   int64
	sessions map[string]domain.Session
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{sessions: make(map[string]domain.Session)}
}

func (r *SessionRepo) CreateSession(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := *s
	stored.ID = r.nextID
	r.sessions[s.SessionID] = stored
	s.ID = stored.ID
	return nil
}

func (r *SessionRepo) GetSessionByID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *SessionRepo) DeactivateSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		s.IsActive = false
		r.sessions[sessionID] = s
	}
	return nil
}

func (r *SessionRepo) DeactivateAllUserSessions(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			r.sessions[id] = s
		}
	}
	return nil
}

func (r *SessionRepo) UpdateSessionActivity(_ context.Context, sessionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		s.LastActivity = at
		r.sessions[sessionID] = s
	}
	return nil
}

func (r *SessionRepo) GetUserSessionHistory(_ context.Context, userID int64, limit int) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := lo.Filter(lo.Values(r.sessions), func(s domain.Session, _ int) bool { return s.UserID == userID })
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID > sessions[j].ID })
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// CleanupExpiredSessions drops sessions that are expired or were deactivated.
func (r *SessionRepo) CleanupExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, s := range r.sessions {
		if !s.IsActive || s.ExpiredAt(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}
