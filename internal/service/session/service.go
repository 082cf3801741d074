package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/iamasit07/forum-chat/backend/pkg/auth"
	"github.com/rs/zerolog"
)

const sessionKeyPrefix = "session:"
const blockedSessionKeyPrefix = "blocked_session:"

// revokeAllScan bounds how many past sessions are blocklisted by RevokeAllForUser.
const revokeAllScan = 100

type SessionRepository interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSessionByID(ctx context.Context, sessionID string) (*domain.Session, error)
	DeactivateSession(ctx context.Context, sessionID string) error
	DeactivateAllUserSessions(ctx context.Context, userID int64) error
	UpdateSessionActivity(ctx context.Context, sessionID string, at time.Time) error
	GetUserSessionHistory(ctx context.Context, userID int64, limit int) ([]domain.Session, error)
	CleanupExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// CacheRepository is optional. Get returns "" on a miss.
type CacheRepository interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Store issues, validates and revokes session tokens. Validation is served
// from an in-process index under a read lock and falls back to the cache and
// then the repository.
type Store struct {
	repo   SessionRepository
	cache  CacheRepository
	signer *auth.TokenSigner
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger

	mu    sync.RWMutex
	local map[string]domain.Session
	// gen advances on every revocation. A lookup only fills the index if no
	// revocation happened while it was reading the cache or repository.
	gen uint64
}

type Option func(*Store)

func WithCache(cache CacheRepository) Option {
	return func(s *Store) { s.cache = cache }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(repo SessionRepository, signer *auth.TokenSigner, ttl time.Duration, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		signer: signer,
		ttl:    ttl,
		now:    time.Now,
		log:    log,
		local:  make(map[string]domain.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.signer.WithClock(s.now)
	return s
}

// CreateSession stores a new session for the user and returns its token.
func (s *Store) CreateSession(ctx context.Context, userID int64, nickname string, meta domain.SessionMeta) (string, domain.Session, error) {
	sessionID, err := auth.GenerateSessionID()
	if err != nil {
		return "", domain.Session{}, err
	}

	now := s.now()
	sess := domain.Session{
		SessionID:    sessionID,
		UserID:       userID,
		Nickname:     nickname,
		DeviceInfo:   meta.DeviceInfo,
		IPAddress:    meta.IPAddress,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
		LastActivity: now,
		IsActive:     true,
	}

	if err := s.repo.CreateSession(ctx, &sess); err != nil {
		return "", domain.Session{}, fmt.Errorf("failed to store session: %w", err)
	}

	token, err := s.signer.Sign(userID, nickname, sessionID, sess.ExpiresAt)
	if err != nil {
		return "", domain.Session{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	s.remember(sess)
	s.cacheSession(ctx, sess)

	s.log.Debug().Int64("user_id", userID).Str("device", meta.DeviceInfo).Msg("session created")
	return token, sess, nil
}

// Validate resolves a token to its session. Unknown, malformed and revoked
// tokens fail with domain.ErrSessionNotFound, expired ones with
// domain.ErrSessionExpired.
func (s *Store) Validate(ctx context.Context, token string) (domain.Session, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Session{}, domain.ErrSessionExpired
		}
		return domain.Session{}, domain.ErrSessionNotFound
	}

	sess, err := s.lookup(ctx, claims.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess == nil || !sess.IsActive || sess.UserID != claims.UserID {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if sess.ExpiredAt(s.now()) {
		return domain.Session{}, domain.ErrSessionExpired
	}
	return *sess, nil
}

// Revoke deactivates the token's session. Unknown and expired tokens are a no-op.
func (s *Store) Revoke(ctx context.Context, token string) error {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil
	}

	if err := s.repo.DeactivateSession(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	s.forget(claims.SessionID)
	s.blocklist(ctx, claims.SessionID, claims.ExpiresAt.Time)
	return nil
}

// RevokeAllForUser deactivates every session the user holds.
func (s *Store) RevokeAllForUser(ctx context.Context, userID int64) error {
	if err := s.repo.DeactivateAllUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}

	s.mu.Lock()
	for id, sess := range s.local {
		if sess.UserID == userID {
			delete(s.local, id)
		}
	}
	s.gen++
	s.mu.Unlock()

	if s.cache == nil {
		return nil
	}
	history, err := s.repo.GetUserSessionHistory(ctx, userID, revokeAllScan)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("could not list sessions to blocklist")
		return nil
	}
	for _, sess := range history {
		s.blocklist(ctx, sess.SessionID, sess.ExpiresAt)
	}
	return nil
}

// Touch records activity on the session.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	now := s.now()
	if err := s.repo.UpdateSessionActivity(ctx, sessionID, now); err != nil {
		return err
	}

	s.mu.Lock()
	if sess, ok := s.local[sessionID]; ok {
		sess.LastActivity = now
		s.local[sessionID] = sess
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) History(ctx context.Context, userID int64, limit int) ([]domain.Session, error) {
	return s.repo.GetUserSessionHistory(ctx, userID, limit)
}

// CleanupExpired removes expired and revoked sessions from storage and from
// the in-process index.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.now()
	removed, err := s.repo.CleanupExpiredSessions(ctx, now)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	for id, sess := range s.local {
		if !sess.IsActive || sess.ExpiredAt(now) {
			delete(s.local, id)
		}
	}
	s.mu.Unlock()

	return removed, nil
}

func (s *Store) lookup(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	sess, ok := s.local[sessionID]
	gen := s.gen
	s.mu.RUnlock()
	if ok {
		return &sess, nil
	}

	if s.cache != nil {
		if s.isBlocked(ctx, sessionID) {
			return nil, nil
		}
		if cached := s.getCachedSession(ctx, sessionID); cached != nil {
			if s.rememberAt(*cached, gen) {
				return cached, nil
			}
			return s.reload(ctx, sessionID)
		}
	}

	stored, err := s.reload(ctx, sessionID)
	if err != nil || stored == nil || !stored.IsActive {
		return stored, err
	}
	if !s.rememberAt(*stored, gen) {
		// Revoked while we were reading; the row may be stale.
		return s.reload(ctx, sessionID)
	}
	s.cacheSession(ctx, *stored)
	return stored, nil
}

func (s *Store) reload(ctx context.Context, sessionID string) (*domain.Session, error) {
	stored, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
	return stored, nil
}

func (s *Store) remember(sess domain.Session) {
	s.mu.Lock()
	s.local[sess.SessionID] = sess
	s.mu.Unlock()
}

// rememberAt indexes sess only if no revocation happened since gen was read.
func (s *Store) rememberAt(sess domain.Session, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.local[sess.SessionID] = sess
	return true
}

func (s *Store) forget(sessionID string) {
	s.mu.Lock()
	delete(s.local, sessionID)
	s.gen++
	s.mu.Unlock()
}

func (s *Store) cacheSession(ctx context.Context, sess domain.Session) {
	if s.cache == nil {
		return
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, sessionKeyPrefix+sess.SessionID, data, ttl); err != nil {
		s.log.Warn().Err(err).Msg("failed to cache session")
	}
}

func (s *Store) getCachedSession(ctx context.Context, sessionID string) *domain.Session {
	data, err := s.cache.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil || data == "" {
		return nil
	}
	var sess domain.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil
	}
	return &sess
}

// blocklist keeps a revoked id refused by any cache reader until it would
// have expired anyway.
func (s *Store) blocklist(ctx context.Context, sessionID string, expiresAt time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, sessionKeyPrefix+sessionID); err != nil {
		s.log.Warn().Err(err).Msg("failed to drop cached session")
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, blockedSessionKeyPrefix+sessionID, "1", ttl); err != nil {
		s.log.Warn().Err(err).Msg("failed to blocklist session")
	}
}

func (s *Store) isBlocked(ctx context.Context, sessionID string) bool {
	val, err := s.cache.Get(ctx, blockedSessionKeyPrefix+sessionID)
	return err == nil && val != ""
}
