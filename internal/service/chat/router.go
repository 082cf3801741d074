package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/rs/zerolog"
)

type SessionValidator interface {
	Validate(ctx context.Context, token string) (domain.Session, error)
}

type UserDirectory interface {
	GetUserByID(ctx context.Context, userID int64) (*domain.User, error)
}

// Deliverer returns domain.ErrNoActiveConnection when no connection of the
// user accepted the payload.
type Deliverer interface {
	SendToUser(userID int64, payload []byte) error
}

type senderLock struct {
	mu   sync.Mutex
	refs int
}

// Router delivers private messages between users.
type Router struct {
	sessions  SessionValidator
	users     UserDirectory
	deliverer Deliverer
	maxLength int
	now       func() time.Time
	newID     func() string
	log       zerolog.Logger

	locksMu sync.Mutex
	locks   map[int64]*senderLock
}

func NewRouter(sessions SessionValidator, users UserDirectory, deliverer Deliverer, maxLength int, log zerolog.Logger) *Router {
	return &Router{
		sessions:  sessions,
		users:     users,
		deliverer: deliverer,
		maxLength: maxLength,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		log:       log,
		locks:     make(map[int64]*senderLock),
	}
}

// Route authenticates the sender and hands the message to the receiver's
// live connections. A message that reached no connection is returned in
// state failed together with domain.ErrNoActiveConnection.
func (r *Router) Route(ctx context.Context, senderToken string, receiverID int64, content string) (domain.PrivateMessage, error) {
	sess, err := r.sessions.Validate(ctx, senderToken)
	if err != nil {
		return domain.PrivateMessage{}, err
	}

	content = strings.TrimSpace(content)
	if content == "" || (r.maxLength > 0 && utf8.RuneCountInString(content) > r.maxLength) {
		return domain.PrivateMessage{}, domain.ErrInvalidMessage
	}

	if receiverID <= 0 {
		return domain.PrivateMessage{}, domain.ErrUnknownReceiver
	}
	receiver, err := r.users.GetUserByID(ctx, receiverID)
	if err != nil {
		return domain.PrivateMessage{}, fmt.Errorf("failed to resolve receiver: %w", err)
	}
	if receiver == nil {
		return domain.PrivateMessage{}, domain.ErrUnknownReceiver
	}

	msg := domain.PrivateMessage{
		MessageID:      r.newID(),
		SenderID:       sess.UserID,
		SenderNickname: sess.Nickname,
		ReceiverID:     receiverID,
		Content:        content,
		SentAt:         r.now().UTC(),
		DeliveryState:  domain.DeliveryQueued,
	}

	payload, err := json.Marshal(domain.NewPrivateMessageFrame(msg))
	if err != nil {
		return domain.PrivateMessage{}, fmt.Errorf("failed to encode message: %w", err)
	}

	unlock := r.lockSender(sess.UserID)
	err = r.deliverer.SendToUser(receiverID, payload)
	unlock()

	if err != nil {
		msg.DeliveryState = domain.DeliveryFailed
		if errors.Is(err, domain.ErrNoActiveConnection) {
			r.log.Debug().Int64("sender_id", msg.SenderID).Int64("receiver_id", receiverID).Msg("receiver offline")
			return msg, domain.ErrNoActiveConnection
		}
		return msg, fmt.Errorf("delivery failed: %w", err)
	}

	msg.DeliveryState = domain.DeliveryDelivered
	r.log.Debug().
		Str("message_id", msg.MessageID).
		Int64("sender_id", msg.SenderID).
		Int64("receiver_id", receiverID).
		Msg("message delivered")
	return msg, nil
}

func (r *Router) lockSender(senderID int64) func() {
	r.locksMu.Lock()
	l, ok := r.locks[senderID]
	if !ok {
		l = &senderLock{}
		r.locks[senderID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, senderID)
		}
		r.locksMu.Unlock()
	}
}
