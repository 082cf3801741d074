package websocket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/iamasit07/forum-chat/backend/internal/domain"
)

// ClientMessage is an inbound chat frame. Any sender_id sent by the client is
// ignored; the sender is always the connection's session.
type ClientMessage struct {
	Type       string     `json:"type"`
	ReceiverID receiverID `json:"receiver_id"`
	Content    string     `json:"content"`
}

// receiverID accepts a number or a numeric string. Anything else decodes to
// zero, which the router reports as an unknown receiver.
type receiverID int64

func (r *receiverID) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*r = 0
		return nil
	}
	*r = receiverID(id)
	return nil
}

func parseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, err
	}
	if msg.Type == "" {
		msg.Type = domain.FramePrivateMessage
	}
	return msg, nil
}

func deliveryFrame(m domain.PrivateMessage, errMsg string) domain.ServerMessage {
	return domain.ServerMessage{
		Type:          domain.FrameDelivery,
		MessageID:     m.MessageID,
		ReceiverID:    m.ReceiverID,
		DeliveryState: m.DeliveryState,
		Error:         errMsg,
	}
}
