package domain

import "time"

// Frame types written to chat connections.
const (
	FramePrivateMessage  = "private_message"
	FrameDelivery        = "delivery"
	FramePresence        = "presence"
	FrameError           = "error"
	FrameForceDisconnect = "force_disconnect"
)

// ServerMessage is every frame the server writes on a chat connection.
// Fields not relevant to a frame type are omitted.
type ServerMessage struct {
	Type           string        `json:"type"`
	MessageID      string        `json:"message_id,omitempty"`
	SenderID       int64         `json:"sender_id,omitempty"`
	SenderNickname string        `json:"sender_nickname,omitempty"`
	ReceiverID     int64         `json:"receiver_id,omitempty"`
	Content        string        `json:"content,omitempty"`
	SentAt         *time.Time    `json:"sent_at,omitempty"`
	DeliveryState  DeliveryState `json:"delivery_state,omitempty"`
	UserID         int64         `json:"user_id,omitempty"`
	Nickname       string        `json:"nickname,omitempty"`
	Online         *bool         `json:"online,omitempty"`
	Message        string        `json:"message,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// NewPrivateMessageFrame is what the receiver sees.
func NewPrivateMessageFrame(m PrivateMessage) ServerMessage {
	sentAt := m.SentAt
	return ServerMessage{
		Type:           FramePrivateMessage,
		MessageID:      m.MessageID,
		SenderID:       m.SenderID,
		SenderNickname: m.SenderNickname,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		SentAt:         &sentAt,
	}
}

func NewPresenceFrame(e PresenceEvent) ServerMessage {
	online := e.Online
	return ServerMessage{
		Type:     FramePresence,
		UserID:   e.UserID,
		Nickname: e.Nickname,
		Online:   &online,
	}
}
