package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/iamasit07/forum-chat/backend/internal/repository/memory"
	"github.com/iamasit07/forum-chat/backend/internal/service/session"
	"github.com/iamasit07/forum-chat/backend/pkg/auth"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeliverer struct {
	mu     sync.Mutex
	online map[int64]bool
	fail   error
	sent   map[int64][][]byte
}

func newFakeDeliverer(online ...int64) *fakeDeliverer {
	d := &fakeDeliverer{online: make(map[int64]bool), sent: make(map[int64][][]byte)}
	for _, id := range online {
		d.online[id] = true
	}
	return d
}

func (d *fakeDeliverer) SendToUser(userID int64, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	if !d.online[userID] {
		return domain.ErrNoActiveConnection
	}
	d.sent[userID] = append(d.sent[userID], payload)
	return nil
}

func (d *fakeDeliverer) frames(t *testing.T, userID int64) []domain.ServerMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.ServerMessage, 0, len(d.sent[userID]))
	for _, p := range d.sent[userID] {
		var m domain.ServerMessage
		require.NoError(t, json.Unmarshal(p, &m))
		out = append(out, m)
	}
	return out
}

type fixture struct {
	router   *Router
	store    *session.Store
	delivery *fakeDeliverer
	alice    int64
	bob      int64
	token    string
}

func newFixture(t *testing.T, online ...int64) *fixture {
	t.Helper()
	ctx := context.Background()

	users := memory.NewUserRepo()
	alice, err := users.CreateUser(ctx, &domain.User{Nickname: "alice", Email: "alice@example.com", Age: 20})
	require.NoError(t, err)
	bob, err := users.CreateUser(ctx, &domain.User{Nickname: "bob", Email: "bob@example.com", Age: 20})
	require.NoError(t, err)

	store := session.NewStore(memory.NewSessionRepo(), auth.NewTokenSigner("secret"), time.Hour, zerolog.Nop())
	token, _, err := store.CreateSession(ctx, bob, "bob", domain.SessionMeta{})
	require.NoError(t, err)

	delivery := newFakeDeliverer(online...)
	return &fixture{
		router:   NewRouter(store, users, delivery, 20, zerolog.Nop()),
		store:    store,
		delivery: delivery,
		alice:    alice,
		bob:      bob,
		token:    token,
	}
}

func TestRouteDelivers(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	msg, err := f.router.Route(ctx, f.token, f.alice, "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryDelivered, msg.DeliveryState)
	assert.Equal(t, f.bob, msg.SenderID)
	assert.Equal(t, "bob", msg.SenderNickname)
	assert.Equal(t, "hi", msg.Content)
	assert.NotEmpty(t, msg.MessageID)

	frames := f.delivery.frames(t, f.alice)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.FramePrivateMessage, frames[0].Type)
	assert.Equal(t, f.bob, frames[0].SenderID)
	assert.Equal(t, f.alice, frames[0].ReceiverID)
	assert.Equal(t, "hi", frames[0].Content)
	require.NotNil(t, frames[0].SentAt)
}

func TestRouteErrors(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tests := []struct {
		name     string
		token    string
		receiver int64
		content  string
		want     error
	}{
		{"bad token", "nope", 1, "hi", domain.ErrUnauthorized},
		{"empty content", f.token, 1, "   ", domain.ErrInvalidMessage},
		{"too long", f.token, 1, strings.Repeat("x", 21), domain.ErrInvalidMessage},
		{"zero receiver", f.token, 0, "hi", domain.ErrUnknownReceiver},
		{"missing receiver", f.token, 99, "hi", domain.ErrUnknownReceiver},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.router.Route(ctx, tt.token, tt.receiver, tt.content)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.delivery.frames(t, 1))
}

func TestRouteRevokedSender(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	require.NoError(t, f.store.Revoke(ctx, f.token))
	_, err := f.router.Route(ctx, f.token, f.alice, "hi")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRouteOfflineReceiver(t *testing.T) {
	f := newFixture(t)

	msg, err := f.router.Route(context.Background(), f.token, f.alice, "hi")
	assert.ErrorIs(t, err, domain.ErrNoActiveConnection)
	assert.Equal(t, domain.DeliveryFailed, msg.DeliveryState)
	assert.NotEmpty(t, msg.MessageID)
}

func TestRouteDeliveryError(t *testing.T) {
	f := newFixture(t, 1)
	f.delivery.fail = errors.New("boom")

	msg, err := f.router.Route(context.Background(), f.token, f.alice, "hi")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNoActiveConnection)
	assert.Equal(t, domain.DeliveryFailed, msg.DeliveryState)
}

func TestRoutePreservesOrder(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	want := make([]string, 50)
	for i := range want {
		want[i] = strings.Repeat("m", i%10+1) + string(rune('a'+i%26))
		_, err := f.router.Route(ctx, f.token, f.alice, want[i])
		require.NoError(t, err)
	}

	frames := f.delivery.frames(t, f.alice)
	require.Len(t, frames, len(want))
	for i, fr := range frames {
		assert.Equal(t, want[i], fr.Content)
	}
}

func TestRouteConcurrentSenders(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.router.Route(ctx, f.token, f.alice, "hello")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.delivery.frames(t, f.alice), 40)
	f.router.locksMu.Lock()
	assert.Empty(t, f.router.locks)
	f.router.locksMu.Unlock()
}
