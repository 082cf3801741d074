package domain

import "time"

type DeliveryState string

const (
	DeliveryQueued    DeliveryState = "queued"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryFailed    DeliveryState = "failed"
)

// PrivateMessage lives only as long as the router needs it to attempt delivery.
type PrivateMessage struct {
	MessageID      string        `json:"message_id"`
	SenderID       int64         `json:"sender_id"`
	SenderNickname string        `json:"sender_nickname"`
	ReceiverID     int64         `json:"receiver_id"`
	Content        string        `json:"content"`
	SentAt         time.Time     `json:"sent_at"`
	DeliveryState  DeliveryState `json:"delivery_state"`
}
