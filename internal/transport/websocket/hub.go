package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/iamasit07/forum-chat/backend/internal/config"
	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const ErrHubClosed domain.Error = "hub is shutting down"

type Validator interface {
	Validate(ctx context.Context, token string) (domain.Session, error)
}

// Presence receives the hub's first-open and last-close transitions.
type Presence interface {
	MarkOnline(userID int64, nickname string)
	MarkOffline(userID int64)
}

// Hub is the registry of live chat connections and the only writer to them.
type Hub struct {
	sessions Validator
	presence Presence
	cfg      config.ChatConfig
	now      func() time.Time
	log      zerolog.Logger

	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	closed  bool

	wg sync.WaitGroup
}

func NewHub(sessions Validator, presence Presence, cfg config.ChatConfig, log zerolog.Logger) *Hub {
	// A frame carrying the longest accepted message must fit the read limit,
	// otherwise the socket is dropped instead of the message being rejected.
	if floor := config.MinFrameSize(cfg.MaxMessageLength); cfg.MaxFrameSize < floor {
		cfg.MaxFrameSize = floor
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 1
	}
	return &Hub{
		sessions: sessions,
		presence: presence,
		cfg:      cfg,
		now:      time.Now,
		log:      log,
		clients:  make(map[int64]map[*Client]struct{}),
	}
}

// Register validates token and adds socket to the registry. On any failure
// the socket is closed and never reaches StateOpen.
func (h *Hub) Register(ctx context.Context, token string, socket Socket) (*Client, error) {
	sess, err := h.sessions.Validate(ctx, token)
	if err != nil {
		_ = socket.Close()
		return nil, err
	}

	c := newClient(h, socket, sess, token)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.state.Store(int32(StateClosed))
		_ = socket.Close()
		return nil, ErrHubClosed
	}
	conns, ok := h.clients[sess.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[sess.UserID] = conns
	}
	conns[c] = struct{}{}
	c.state.Store(int32(StateOpen))
	if len(conns) == 1 {
		h.presence.MarkOnline(sess.UserID, sess.Nickname)
	}
	h.wg.Add(1)
	h.mu.Unlock()

	go c.writePump()

	c.log.Info().Str("nickname", sess.Nickname).Msg("connection registered")
	return c, nil
}

// Unregister removes c. It is safe to call any number of times from any goroutine.
func (h *Hub) Unregister(c *Client) {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
		return
	}

	h.mu.Lock()
	if conns, ok := h.clients[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.userID)
			h.presence.MarkOffline(c.userID)
		}
	}
	h.mu.Unlock()

	close(c.done)
	_ = c.socket.Close()

	c.log.Info().Dur("duration", h.now().Sub(c.connectedAt)).Msg("connection unregistered")
}

// SendToUser queues payload on every live connection of the user. It
// succeeds when at least one accepted it; a connection that cannot accept
// within the send timeout is unregistered.
func (h *Hub) SendToUser(userID int64, payload []byte) error {
	targets := h.userClients(userID)
	if len(targets) == 0 {
		return domain.ErrNoActiveConnection
	}

	delivered := false
	for _, c := range targets {
		if c.enqueue(payload, h.cfg.SendTimeout) {
			delivered = true
			continue
		}
		if c.State() == StateOpen {
			c.log.Warn().Dur("timeout", h.cfg.SendTimeout).Msg("write queue stalled, dropping connection")
			h.Unregister(c)
		}
	}

	if !delivered {
		return domain.ErrNoActiveConnection
	}
	return nil
}

// Broadcast offers payload to every connection without waiting.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, conns := range h.clients {
		targets = append(targets, lo.Keys(conns)...)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- payload:
		default:
			c.log.Debug().Msg("broadcast dropped, write queue full")
		}
	}
}

// DisconnectUser sends force_disconnect and closes every connection of the user.
func (h *Hub) DisconnectUser(userID int64, reason string) {
	h.disconnect(h.userClients(userID), reason)
}

// DisconnectSession closes only the connections opened with sessionID.
func (h *Hub) DisconnectSession(userID int64, sessionID string, reason string) {
	targets := lo.Filter(h.userClients(userID), func(c *Client, _ int) bool {
		return c.sessionID == sessionID
	})
	h.disconnect(targets, reason)
}

func (h *Hub) disconnect(targets []*Client, reason string) {
	if len(targets) == 0 {
		return
	}
	payload, _ := json.Marshal(domain.ServerMessage{Type: domain.FrameForceDisconnect, Message: reason})
	for _, c := range targets {
		c.closeAfter(payload)
	}
}

// RunPresence forwards presence transitions to every connection until
// events is closed or ctx is done.
func (h *Hub) RunPresence(ctx context.Context, events <-chan domain.PresenceEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(domain.NewPresenceFrame(ev))
			if err != nil {
				continue
			}
			h.Broadcast(payload)
		}
	}
}

func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Count is the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.SumBy(lo.Values(h.clients), func(conns map[*Client]struct{}) int { return len(conns) })
}

// Shutdown refuses new connections, closes the live ones and waits for their
// write pumps to exit.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	var all []*Client
	for _, conns := range h.clients {
		all = append(all, lo.Keys(conns)...)
	}
	h.mu.Unlock()

	for _, c := range all {
		c.closeAfter(nil)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Int("connections", len(all)).Msg("hub stopped")
		return nil
	case <-ctx.Done():
		for _, c := range all {
			h.Unregister(c)
		}
		return ctx.Err()
	}
}

func (h *Hub) userClients(userID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Keys(h.clients[userID])
}
