package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/iamasit07/forum-chat/backend/pkg/auth"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var genders = []string{"male", "female", "other", "prefer not to say"}

type UserRepository interface {
	CreateUser(ctx context.Context, u *domain.User) (int64, error)
	GetUserByID(ctx context.Context, userID int64) (*domain.User, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	UpdateNickname(ctx context.Context, userID int64, nickname string) error
}

type SessionManager interface {
	CreateSession(ctx context.Context, userID int64, nickname string, meta domain.SessionMeta) (string, domain.Session, error)
	Validate(ctx context.Context, token string) (domain.Session, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID int64) error
	History(ctx context.Context, userID int64, limit int) ([]domain.Session, error)
}

// Disconnector closes live chat connections.
type Disconnector interface {
	DisconnectUser(userID int64, reason string)
	DisconnectSession(userID int64, sessionID string, reason string)
}

type RegisterRequest struct {
	Nickname  string          `json:"nickname" validate:"required,min=3,max=30,excludes=@"`
	Email     string          `json:"email" validate:"required,email"`
	Password  string          `json:"password" validate:"required,min=8,max=72"`
	FirstName string          `json:"first_name" validate:"required"`
	LastName  string          `json:"last_name" validate:"required"`
	Age       json.RawMessage `json:"age" validate:"-"`
	Gender    string          `json:"gender" validate:"gender"`
}

type LoginResult struct {
	Token   string
	Session domain.Session
	User    domain.User
}

type Service struct {
	users         UserRepository
	sessions      SessionManager
	disconnector  Disconnector
	singleSession bool
	validate      *validator.Validate
	now           func() time.Time
	log           zerolog.Logger
}

func NewService(users UserRepository, sessions SessionManager, disconnector Disconnector, singleSession bool, log zerolog.Logger) *Service {
	v := validator.New()
	_ = v.RegisterValidation("gender", func(fl validator.FieldLevel) bool {
		return lo.Contains(genders, fl.Field().String())
	})

	return &Service{
		users:         users,
		sessions:      sessions,
		disconnector:  disconnector,
		singleSession: singleSession,
		validate:      v,
		now:           time.Now,
		log:           log,
	}
}

// Register creates the account. Validation problems come back as
// human-readable messages with a nil error.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (domain.User, []string, error) {
	req.Nickname = strings.TrimSpace(req.Nickname)
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Gender = strings.ToLower(strings.TrimSpace(req.Gender))

	var problems []string
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.User{}, nil, err
		}
		problems = lo.Uniq(lo.Map(verrs, func(fe validator.FieldError, _ int) string {
			return fieldMessage(fe)
		}))
	}

	age, ok := parseAge(req.Age)
	switch {
	case !ok:
		problems = append(problems, "Age must be a whole number")
	case age < domain.MinimumAge:
		problems = append(problems, fmt.Sprintf("Must be at least %d years old", domain.MinimumAge))
	}

	if len(problems) > 0 {
		return domain.User{}, problems, nil
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return domain.User{}, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := domain.User{
		Nickname:     req.Nickname,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Age:          age,
		Gender:       req.Gender,
		PasswordHash: hash,
		RegisteredAt: s.now().UTC(),
	}
	id, err := s.users.CreateUser(ctx, &user)
	if err != nil {
		return domain.User{}, nil, err
	}
	user.ID = id

	s.log.Info().Int64("user_id", id).Str("nickname", user.Nickname).Msg("user registered")
	return user, nil, nil
}

// Login accepts a nickname or an email as identifier.
func (s *Service) Login(ctx context.Context, identifier, password string, meta domain.SessionMeta) (LoginResult, error) {
	user, err := s.users.GetUserByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return LoginResult{}, domain.ErrUserNotFound
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return LoginResult{}, domain.ErrBadPassword
	}

	return s.StartSession(ctx, *user, meta)
}

// StartSession issues a session for an already authenticated user.
func (s *Service) StartSession(ctx context.Context, user domain.User, meta domain.SessionMeta) (LoginResult, error) {
	if s.singleSession {
		if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
			return LoginResult{}, err
		}
		if s.disconnector != nil {
			s.disconnector.DisconnectUser(user.ID, "signed in from another device")
		}
	}

	token, sess, err := s.sessions.CreateSession(ctx, user.ID, user.Nickname, meta)
	if err != nil {
		return LoginResult{}, err
	}

	s.log.Info().Int64("user_id", user.ID).Str("device", meta.DeviceInfo).Msg("user logged in")
	return LoginResult{Token: token, Session: sess, User: user}, nil
}

// Logout revokes the token and closes the chat connections opened with it.
func (s *Service) Logout(ctx context.Context, token string) error {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return err
	}
	if s.disconnector != nil {
		s.disconnector.DisconnectSession(sess.UserID, sess.SessionID, "logged out")
	}

	s.log.Info().Int64("user_id", sess.UserID).Msg("user logged out")
	return nil
}

func (s *Service) Profile(ctx context.Context, userID int64) (domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return *user, nil
}

// UpdateNickname returns validation messages the same way Register does.
func (s *Service) UpdateNickname(ctx context.Context, userID int64, nickname string) (domain.User, []string, error) {
	nickname = strings.TrimSpace(nickname)
	if err := s.validate.Var(nickname, "required,min=3,max=30,excludes=@"); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.User{}, []string{nicknameMessage(verrs[0].Tag())}, nil
		}
		return domain.User{}, nil, err
	}

	if err := s.users.UpdateNickname(ctx, userID, nickname); err != nil {
		return domain.User{}, nil, err
	}

	user, err := s.Profile(ctx, userID)
	return user, nil, err
}

func (s *Service) Sessions(ctx context.Context, userID int64, limit int) ([]domain.Session, error) {
	return s.sessions.History(ctx, userID, limit)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Nickname":
		return nicknameMessage(fe.Tag())
	case "Email":
		return "Invalid email format"
	case "Password":
		if fe.Tag() == "max" {
			return "Password must be at most 72 characters"
		}
		return "Password must be at least 8 characters"
	case "FirstName":
		return "First name is required"
	case "LastName":
		return "Last name is required"
	case "Gender":
		return "Invalid gender selection"
	default:
		return fmt.Sprintf("Invalid %s", strings.ToLower(fe.Field()))
	}
}

func nicknameMessage(tag string) string {
	switch tag {
	case "max":
		return "Nickname must be at most 30 characters"
	case "excludes":
		return "Nickname cannot contain @"
	default:
		return "Nickname must be at least 3 characters"
	}
}

// parseAge accepts a JSON integer or a string holding one.
func parseAge(raw json.RawMessage) (int, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	age, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return age, true
}
