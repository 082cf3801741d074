package presence

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	subscriberBuffer = 64
	mirrorBuffer     = 1024
)

// Mirror publishes the online set outside the process.
type Mirror interface {
	Reset(ctx context.Context) error
	SetOnline(ctx context.Context, userID int64, nickname string) error
	SetOffline(ctx context.Context, userID int64) error
}

type subscriber struct {
	ch chan domain.PresenceEvent
	// lagged is set when an event could not be queued.
	lagged bool
}

// Tracker is a read-optimised projection of the hub's connection events.
// MarkOnline and MarkOffline are only called by the hub.
type Tracker struct {
	mu      sync.RWMutex
	records map[int64]domain.PresenceRecord
	subs    map[int]*subscriber
	nextSub int

	now func() time.Time
	log zerolog.Logger
}

func NewTracker(log zerolog.Logger) *Tracker {
	return &Tracker{
		records: make(map[int64]domain.PresenceRecord),
		subs:    make(map[int]*subscriber),
		now:     time.Now,
		log:     log,
	}
}

func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) MarkOnline(userID int64, nickname string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[userID]
	if ok && rec.Online && rec.Nickname == nickname {
		return
	}

	now := t.now()
	t.records[userID] = domain.PresenceRecord{
		UserID:     userID,
		Nickname:   nickname,
		Online:     true,
		LastSeenAt: now,
	}
	t.publish(domain.PresenceEvent{UserID: userID, Nickname: nickname, Online: true, At: now})
	t.log.Debug().Int64("user_id", userID).Str("nickname", nickname).Msg("user online")
}

func (t *Tracker) MarkOffline(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[userID]
	if !ok || !rec.Online {
		return
	}

	now := t.now()
	rec.Online = false
	rec.LastSeenAt = now
	t.records[userID] = rec
	t.publish(domain.PresenceEvent{UserID: userID, Nickname: rec.Nickname, Online: false, At: now})
	t.log.Debug().Int64("user_id", userID).Msg("user offline")
}

// ListOnline returns the online users ordered by nickname.
func (t *Tracker) ListOnline() []domain.OnlineUser {
	t.mu.RLock()
	users := lo.FilterMap(lo.Values(t.records), func(r domain.PresenceRecord, _ int) (domain.OnlineUser, bool) {
		return domain.OnlineUser{ID: r.UserID, Nickname: r.Nickname}, r.Online
	})
	t.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		a, b := strings.ToLower(users[i].Nickname), strings.ToLower(users[j].Nickname)
		if a != b {
			return a < b
		}
		return users[i].ID < users[j].ID
	})
	return users
}

func (t *Tracker) IsOnline(userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[userID].Online
}

// LastSeen reports the time of the user's latest presence transition.
func (t *Tracker) LastSeen(userID int64) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[userID]
	return rec.LastSeenAt, ok
}

// Subscribe returns a channel of presence transitions. Events are dropped
// for a subscriber whose buffer is full.
func (t *Tracker) Subscribe() (<-chan domain.PresenceEvent, func()) {
	_, ch, cancel, _ := t.subscribe(subscriberBuffer)
	return ch, cancel
}

// StartMirror copies the projection into m until ctx is done. If the mirror
// falls behind and misses events it is rebuilt from a fresh snapshot.
func (t *Tracker) StartMirror(ctx context.Context, m Mirror) {
	id, events, cancel, online := t.subscribe(mirrorBuffer)
	t.seedMirror(ctx, m, online)

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				var err error
				if ev.Online {
					err = m.SetOnline(ctx, ev.UserID, ev.Nickname)
				} else {
					err = m.SetOffline(ctx, ev.UserID)
				}
				if err != nil {
					t.log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("presence mirror write failed")
				}
				if online, lagged := t.resync(id); lagged {
					t.log.Warn().Int("online", len(online)).Msg("presence mirror missed events, rebuilding")
					t.seedMirror(ctx, m, online)
				}
			}
		}
	}()
}

func (t *Tracker) seedMirror(ctx context.Context, m Mirror, online []domain.PresenceRecord) {
	if err := m.Reset(ctx); err != nil {
		t.log.Warn().Err(err).Msg("failed to reset presence mirror")
	}
	for _, rec := range online {
		if err := m.SetOnline(ctx, rec.UserID, rec.Nickname); err != nil {
			t.log.Warn().Err(err).Int64("user_id", rec.UserID).Msg("presence mirror write failed")
		}
	}
}

// resync reports whether subscriber id dropped events. If so its queue is
// discarded and the current online set returned; events published after
// this call are queued as usual and apply on top of the snapshot.
func (t *Tracker) resync(id int) ([]domain.PresenceRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.subs[id]
	if !ok || !sub.lagged {
		return nil, false
	}
	for drained := false; !drained; {
		select {
		case <-sub.ch:
		default:
			drained = true
		}
	}
	sub.lagged = false
	return t.onlineLocked(), true
}

func (t *Tracker) subscribe(size int) (int, <-chan domain.PresenceEvent, func(), []domain.PresenceRecord) {
	sub := &subscriber{ch: make(chan domain.PresenceEvent, size)}

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = sub
	online := t.onlineLocked()
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(sub.ch)
		})
	}
	return id, sub.ch, cancel, online
}

func (t *Tracker) onlineLocked() []domain.PresenceRecord {
	return lo.Filter(lo.Values(t.records), func(r domain.PresenceRecord, _ int) bool { return r.Online })
}

// publish must be called with t.mu held.
func (t *Tracker) publish(ev domain.PresenceEvent) {
	for _, sub := range t.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.lagged = true
			t.log.Warn().Int64("user_id", ev.UserID).Msg("presence subscriber lagging, event dropped")
		}
	}
}
