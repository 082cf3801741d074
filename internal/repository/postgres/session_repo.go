package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamasit07/forum-chat/backend/internal/domain"
)

type SessionRepo struct {
	DB *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db}
}

// CreateSession creates a new session in the database
func (r *SessionRepo) CreateSession(ctx context.Context, s *domain.Session) error {
	query := `
	INSERT INTO user_sessions (user_id, session_id, nickname, device_info, ip_address, created_at, expires_at, last_activity, is_active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $6, TRUE)
	RETURNING id;
	`
	err := r.DB.QueryRowContext(ctx, query,
		s.UserID, s.SessionID, s.Nickname, s.DeviceInfo, s.IPAddress, s.CreatedAt, s.ExpiresAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

const sessionSelectFields = `id, user_id, session_id, nickname, device_info, ip_address, created_at, expires_at, last_activity, is_active`

func scanSession(row interface{ Scan(dest ...any) error }) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.SessionID,
		&s.Nickname,
		&s.DeviceInfo,
		&s.IPAddress,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.LastActivity,
		&s.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionByID returns nil, nil when the session does not exist.
func (r *SessionRepo) GetSessionByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT ` + sessionSelectFields + ` FROM user_sessions WHERE session_id = $1;`
	s, err := scanSession(r.DB.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) DeactivateSession(ctx context.Context, sessionID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE user_sessions SET is_active = FALSE WHERE session_id = $1;`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}

func (r *SessionRepo) DeactivateAllUserSessions(ctx context.Context, userID int64) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE user_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE;`, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate user sessions: %w", err)
	}
	return nil
}

func (r *SessionRepo) UpdateSessionActivity(ctx context.Context, sessionID string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE user_sessions SET last_activity = $2 WHERE session_id = $1;`, sessionID, at)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	return nil
}

// GetUserSessionHistory retrieves recent login sessions for a user
func (r *SessionRepo) GetUserSessionHistory(ctx context.Context, userID int64, limit int) ([]domain.Session, error) {
	query := `SELECT ` + sessionSelectFields + ` FROM user_sessions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session history: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}

	return sessions, nil
}

// CleanupExpiredSessions deletes sessions that expired or were deactivated.
func (r *SessionRepo) CleanupExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM user_sessions WHERE is_active = FALSE OR expires_at <= $1;`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old sessions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
