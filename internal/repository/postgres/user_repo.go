package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iamasit07/forum-chat/backend/internal/domain"
)

type UserRepo struct {
	DB *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

// CreateUser inserts a registered user; duplicates map to domain.ErrUserExists.
func (r *UserRepo) CreateUser(ctx context.Context, u *domain.User) (int64, error) {
	query := `
	INSERT INTO users (nickname, email, password_hash, first_name, last_name, age, gender)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id;
	`
	var userID int64
	err := r.DB.QueryRowContext(ctx, query,
		u.Nickname, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Age, u.Gender,
	).Scan(&userID)
	if isUniqueViolation(err) {
		return 0, domain.ErrUserExists
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return userID, nil
}

// scanUser is a helper that scans a row into a User struct
func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Nickname,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Age,
		&u.Gender,
		&u.RegisteredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userSelectFields = `id, nickname, email, password_hash, first_name, last_name, age, gender, created_at`

func (r *UserRepo) GetUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	query := `SELECT ` + userSelectFields + ` FROM users WHERE id = $1;`
	u, err := scanUser(r.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByIdentifier retrieves a user by nickname OR email
func (r *UserRepo) GetUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	query := `SELECT ` + userSelectFields + ` FROM users WHERE nickname = $1 OR LOWER(email) = LOWER($1) LIMIT 1;`
	u, err := scanUser(r.DB.QueryRowContext(ctx, query, identifier))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) UpdateNickname(ctx context.Context, userID int64, nickname string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET nickname = $2 WHERE id = $1;`, userID, nickname)
	if isUniqueViolation(err) {
		return domain.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to update nickname: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
