package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/iamasit07/forum-chat/backend/internal/config"
	"github.com/iamasit07/forum-chat/backend/internal/domain"
	"github.com/iamasit07/forum-chat/backend/internal/repository/memory"
	"github.com/iamasit07/forum-chat/backend/internal/service/chat"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatServer struct {
	*hubFixture
	srv   *httptest.Server
	alice int64
	bob   int64
}

func newChatServer(t *testing.T, allowedOrigins ...string) *chatServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newHubFixture(t, testChatConfig())
	users := memory.NewUserRepo()
	alice, err := users.CreateUser(context.Background(), &domain.User{Nickname: "alice", Email: "alice@example.com", Age: 13})
	require.NoError(t, err)
	bob, err := users.CreateUser(context.Background(), &domain.User{Nickname: "bob", Email: "bob@example.com", Age: 30})
	require.NoError(t, err)

	router := chat.NewRouter(f.store, users, f.hub, 2000, zerolog.Nop())
	handler := NewHandler(f.hub, router, allowedOrigins, zerolog.Nop())

	engine := gin.New()
	engine.GET("/ws/chat", handler.HandleWebSocket)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return &chatServer{hubFixture: f, srv: srv, alice: alice, bob: bob}
}

func (s *chatServer) url(token string) string {
	u := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/chat"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (s *chatServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.url(token), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, frameType string) domain.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg domain.ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == frameType {
			return msg
		}
	}
}

func TestHandshakeRequiresValidToken(t *testing.T) {
	s := newChatServer(t)

	for _, token := range []string{"", "garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(s.url(token), nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	}
	assert.Equal(t, 0, s.hub.Count())
}

func TestHandshakeAcceptsBearerHeader(t *testing.T) {
	s := newChatServer(t)
	token := s.login(t, s.alice, "alice")

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.Dial(s.url(""), header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	assert.Eventually(t, func() bool { return s.tracker.IsOnline(s.alice) }, time.Second, 5*time.Millisecond)
}

func TestHandshakeRejectsForeignOrigin(t *testing.T) {
	s := newChatServer(t, "https://forum.example.com")
	token := s.login(t, s.alice, "alice")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(s.url(token), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	header = http.Header{"Origin": []string{"https://Forum.Example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(s.url(token), header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = conn.Close()
}

func TestPrivateMessageRoundTrip(t *testing.T) {
	s := newChatServer(t)
	aliceToken := s.login(t, s.alice, "alice")
	bobToken := s.login(t, s.bob, "bob")

	aliceConn := s.dial(t, aliceToken)
	assert.Eventually(t, func() bool { return s.tracker.IsOnline(s.alice) }, time.Second, 5*time.Millisecond)

	bobConn := s.dial(t, bobToken)
	assert.Eventually(t, func() bool { return s.tracker.IsOnline(s.bob) }, time.Second, 5*time.Millisecond)

	// sender_id from the client is ignored.
	require.NoError(t, bobConn.WriteJSON(map[string]any{"sender_id": 999, "receiver_id": s.alice, "content": "hi"}))

	got := readFrame(t, aliceConn, domain.FramePrivateMessage)
	assert.Equal(t, s.bob, got.SenderID)
	assert.Equal(t, "bob", got.SenderNickname)
	assert.Equal(t, s.alice, got.ReceiverID)
	assert.Equal(t, "hi", got.Content)
	assert.NotNil(t, got.SentAt)

	receipt := readFrame(t, bobConn, domain.FrameDelivery)
	assert.Equal(t, domain.DeliveryDelivered, receipt.DeliveryState)
	assert.Equal(t, got.MessageID, receipt.MessageID)

	// Receiver ids sent as strings are accepted.
	require.NoError(t, bobConn.WriteMessage(websocket.TextMessage, []byte(`{"receiver_id":"1","content":"again"}`)))
	again := readFrame(t, aliceConn, domain.FramePrivateMessage)
	assert.Equal(t, "again", again.Content)
	receipt = readFrame(t, bobConn, domain.FrameDelivery)
	assert.Equal(t, domain.DeliveryDelivered, receipt.DeliveryState)
	assert.Equal(t, again.MessageID, receipt.MessageID)

	require.NoError(t, aliceConn.Close())
	assert.Eventually(t, func() bool { return !s.tracker.IsOnline(s.alice) }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, bobConn.WriteJSON(map[string]any{"receiver_id": s.alice, "content": "still there?"}))
	receipt = readFrame(t, bobConn, domain.FrameDelivery)
	assert.Equal(t, domain.DeliveryFailed, receipt.DeliveryState)
	assert.Equal(t, "user offline", receipt.Error)
	assert.NotEqual(t, again.MessageID, receipt.MessageID)
}

func TestMultibyteMessageAtLengthLimit(t *testing.T) {
	s := newChatServer(t)
	aliceConn := s.dial(t, s.login(t, s.alice, "alice"))
	assert.Eventually(t, func() bool { return s.tracker.IsOnline(s.alice) }, time.Second, 5*time.Millisecond)
	bobConn := s.dial(t, s.login(t, s.bob, "bob"))

	cases := []struct {
		name    string
		content string
		state   domain.DeliveryState
	}{
		{"cjk", strings.Repeat("日", 1500), domain.DeliveryDelivered},
		{"emoji at limit", strings.Repeat("🙂", 2000), domain.DeliveryDelivered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, bobConn.WriteJSON(map[string]any{"receiver_id": s.alice, "content": tc.content}))
			assert.Equal(t, tc.content, readFrame(t, aliceConn, domain.FramePrivateMessage).Content)
			receipt := readFrame(t, bobConn, domain.FrameDelivery)
			assert.Equal(t, tc.state, receipt.DeliveryState)
		})
	}

	// Over the limit is rejected without dropping the connection.
	require.NoError(t, bobConn.WriteJSON(map[string]any{"receiver_id": s.alice, "content": strings.Repeat("a", 2001)}))
	assert.Equal(t, domain.ErrInvalidMessage.Error(), readFrame(t, bobConn, domain.FrameError).Message)
	assert.True(t, s.tracker.IsOnline(s.bob))

	// Escaped surrogate pairs are the widest encoding of an accepted message.
	escaped := `{"receiver_id":` + strconv.FormatInt(s.alice, 10) + `,"content":"` + strings.Repeat(`\ud83d\ude42`, 2000) + `"}`
	require.NoError(t, bobConn.WriteMessage(websocket.TextMessage, []byte(escaped)))
	assert.Equal(t, domain.DeliveryDelivered, readFrame(t, bobConn, domain.FrameDelivery).DeliveryState)
}

func TestNewHubRaisesReadLimitToMessageLength(t *testing.T) {
	cfg := testChatConfig()
	cfg.MaxFrameSize = 1024
	cfg.SendBuffer = -3

	hub := NewHub(nil, nil, cfg, zerolog.Nop())
	assert.Equal(t, config.MinFrameSize(cfg.MaxMessageLength), hub.cfg.MaxFrameSize)
	assert.Equal(t, 1, hub.cfg.SendBuffer)
}

func TestPrivateMessageOrder(t *testing.T) {
	s := newChatServer(t)
	aliceConn := s.dial(t, s.login(t, s.alice, "alice"))
	assert.Eventually(t, func() bool { return s.tracker.IsOnline(s.alice) }, time.Second, 5*time.Millisecond)
	bobConn := s.dial(t, s.login(t, s.bob, "bob"))

	const n = 50
	go func() {
		for i := 0; i < n; i++ {
			_ = bobConn.WriteJSON(map[string]any{"receiver_id": s.alice, "content": strings.Repeat("x", i+1)})
		}
	}()

	for i := 0; i < n; i++ {
		got := readFrame(t, aliceConn, domain.FramePrivateMessage)
		assert.Len(t, got.Content, i+1)
	}
}

func TestInvalidFrames(t *testing.T) {
	s := newChatServer(t)
	conn := s.dial(t, s.login(t, s.bob, "bob"))

	tests := []struct {
		frame string
		want  string
	}{
		{`not json`, "invalid message format"},
		{`{"type":"typing","receiver_id":1}`, "unsupported message type"},
		{`{"receiver_id":1,"content":"   "}`, domain.ErrInvalidMessage.Error()},
		{`{"receiver_id":42,"content":"hi"}`, domain.ErrUnknownReceiver.Error()},
		{`{"receiver_id":"abc","content":"hi"}`, domain.ErrUnknownReceiver.Error()},
	}
	for _, tt := range tests {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))
		assert.Equal(t, tt.want, readFrame(t, conn, domain.FrameError).Message, tt.frame)
	}
}

func TestRevokedSessionIsDisconnected(t *testing.T) {
	s := newChatServer(t)
	token := s.login(t, s.bob, "bob")
	conn := s.dial(t, token)
	assert.Eventually(t, func() bool { return s.tracker.IsOnline(s.bob) }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.store.Revoke(context.Background(), token))
	require.NoError(t, conn.WriteJSON(map[string]any{"receiver_id": s.alice, "content": "hi"}))

	assert.Equal(t, "session expired", readFrame(t, conn, domain.FrameError).Message)
	assert.Eventually(t, func() bool { return !s.tracker.IsOnline(s.bob) }, 2*time.Second, 5*time.Millisecond)
}

func TestParseClientMessage(t *testing.T) {
	msg, err := parseClientMessage([]byte(`{"receiver_id": 7, "content": "hi"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.FramePrivateMessage, msg.Type)
	assert.Equal(t, receiverID(7), msg.ReceiverID)

	msg, err = parseClientMessage([]byte(`{"receiver_id": " 12 ", "content": "hi"}`))
	require.NoError(t, err)
	assert.Equal(t, receiverID(12), msg.ReceiverID)

	msg, err = parseClientMessage([]byte(`{"receiver_id": null}`))
	require.NoError(t, err)
	assert.Equal(t, receiverID(0), msg.ReceiverID)

	_, err = parseClientMessage([]byte(`[`))
	assert.Error(t, err)
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Second, func() time.Time { return now })

	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	now = now.Add(500 * time.Millisecond)
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())
}

func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost:3000", " ", "not a url"})

	req := httptest.NewRequest(http.MethodGet, "http://chat.local/ws/chat", nil)
	assert.True(t, policy.check(req), "no Origin header")

	req.Header.Set("Origin", "HTTP://LOCALHOST:3000")
	assert.True(t, policy.check(req))

	req.Header.Set("Origin", "http://chat.local")
	assert.True(t, policy.check(req), "same host")

	req.Header.Set("Origin", "http://elsewhere:3000")
	assert.False(t, policy.check(req))

	all := newOriginPolicy([]string{"*"})
	assert.True(t, all.check(req))
}
