package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkOnlineOffline(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	tr := NewTracker(zerolog.Nop()).WithClock(func() time.Time { return now })

	tr.MarkOnline(2, "zoe")
	tr.MarkOnline(1, "Alice")
	tr.MarkOnline(3, "bob")

	assert.Equal(t, []domain.OnlineUser{
		{ID: 1, Nickname: "Alice"},
		{ID: 3, Nickname: "bob"},
		{ID: 2, Nickname: "zoe"},
	}, tr.ListOnline())
	assert.True(t, tr.IsOnline(3))

	now = base.Add(time.Minute)
	tr.MarkOffline(3)
	assert.False(t, tr.IsOnline(3))
	seen, ok := tr.LastSeen(3)
	require.True(t, ok)
	assert.Equal(t, now, seen)
	assert.Len(t, tr.ListOnline(), 2)

	_, ok = tr.LastSeen(99)
	assert.False(t, ok)
	assert.False(t, tr.IsOnline(99))
}

func TestMarkOfflineUnknownIsNoop(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	events, cancel := tr.Subscribe()
	defer cancel()

	tr.MarkOffline(42)
	assert.Empty(t, tr.ListOnline())
	assert.Len(t, events, 0)
}

func TestSubscribeReceivesTransitionsOnce(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	events, cancel := tr.Subscribe()
	defer cancel()

	tr.MarkOnline(1, "alice")
	tr.MarkOnline(1, "alice")
	tr.MarkOffline(1)
	tr.MarkOffline(1)

	require.Len(t, events, 2)
	first := <-events
	assert.True(t, first.Online)
	assert.Equal(t, "alice", first.Nickname)
	second := <-events
	assert.False(t, second.Online)
	assert.Equal(t, int64(1), second.UserID)
}

func TestCancelClosesChannel(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	events, cancel := tr.Subscribe()
	cancel()
	cancel()

	_, ok := <-events
	assert.False(t, ok)

	tr.MarkOnline(1, "alice")
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	_, cancel := tr.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			tr.MarkOnline(int64(i), "user")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("MarkOnline blocked on a full subscriber")
	}
}

type recordingMirror struct {
	mu     sync.Mutex
	online map[int64]string
	resets int
	// stall, when set, blocks the next SetOnline until it is closed.
	stall chan struct{}
}

func (m *recordingMirror) stallNext() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stall = make(chan struct{})
	return m.stall
}

func (m *recordingMirror) resetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

func (m *recordingMirror) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.online = make(map[int64]string)
	return nil
}

func (m *recordingMirror) SetOnline(_ context.Context, userID int64, nickname string) error {
	m.mu.Lock()
	stall := m.stall
	m.stall = nil
	m.mu.Unlock()
	if stall != nil {
		<-stall
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[userID] = nickname
	return nil
}

func (m *recordingMirror) SetOffline(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.online, userID)
	return nil
}

func (m *recordingMirror) snapshot() map[int64]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]string, len(m.online))
	for k, v := range m.online {
		out[k] = v
	}
	return out
}

func TestStartMirror(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := NewTracker(zerolog.Nop())
	tr.MarkOnline(1, "alice")

	mirror := &recordingMirror{}
	tr.StartMirror(ctx, mirror)
	assert.Equal(t, map[int64]string{1: "alice"}, mirror.snapshot())

	tr.MarkOnline(2, "bob")
	tr.MarkOffline(1)

	assert.Eventually(t, func() bool {
		snap := mirror.snapshot()
		return len(snap) == 1 && snap[2] == "bob"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, mirror.resetCount())
}

func TestStartMirrorRebuildsAfterDroppedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := NewTracker(zerolog.Nop())
	tr.MarkOnline(1, "alice")

	mirror := &recordingMirror{}
	tr.StartMirror(ctx, mirror)

	release := mirror.stallNext()
	tr.MarkOnline(2, "bob")

	// Overflow the mirror's queue while it is stuck writing bob.
	for i := 0; i < mirrorBuffer; i++ {
		tr.MarkOnline(3, "carol")
		tr.MarkOffline(3)
	}
	tr.MarkOffline(2)
	close(release)

	assert.Eventually(t, func() bool {
		snap := mirror.snapshot()
		return mirror.resetCount() == 2 && len(snap) == 1 && snap[1] == "alice"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentMarks(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			tr.MarkOnline(id, "u")
			_ = tr.ListOnline()
			if id%2 == 0 {
				tr.MarkOffline(id)
			}
		}(int64(i))
	}
	wg.Wait()
	assert.Len(t, tr.ListOnline(), 25)
}
