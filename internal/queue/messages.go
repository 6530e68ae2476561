package queue

import (
	"encoding/json"

	"github.com/satsflow/SatsFlowBot/internal/wallet"
)

// GatewayInfo identifies the chat gateway a message came through.
type GatewayInfo struct {
	Kind  string `json:"kind"`
	BotID string `json:"bot_id,omitempty"`
}

// InboundMessage is one chat message from a user. Context is opaque gateway
// metadata, echoed back verbatim on the reply.
type InboundMessage struct {
	Sender  string          `json:"sender"`
	Gateway GatewayInfo     `json:"gateway"`
	Text    string          `json:"text"`
	Context json.RawMessage `json:"context,omitempty"`
}

// OutboundMessage is one chat message to a user.
type OutboundMessage struct {
	Recipient string          `json:"recipient"`
	Gateway   GatewayInfo     `json:"gateway"`
	Body      string          `json:"body"`
	Context   json.RawMessage `json:"context,omitempty"`
}

// PaymentRequestMessage is an upstream spend request. The target user is
// addressed either directly by npub or by gateway identity.
type PaymentRequestMessage struct {
	Npub    string                `json:"npub,omitempty"`
	Sender  string                `json:"sender,omitempty"`
	Gateway GatewayInfo           `json:"gateway,omitempty"`
	Request wallet.PaymentRequest `json:"request"`
}

// Event types published on the events queue.
const (
	EventNewUser       = "new_user"
	EventPaymentResult = "payment_result"
)

// Payment result statuses.
const (
	StatusPaid     = "paid"
	StatusRejected = "rejected"
)

// Event is a compact upstream notification.
type Event struct {
	Type      string `json:"type"`
	Npub      string `json:"npub"`
	RequestID string `json:"request_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Detail    string `json:"detail,omitempty"`
}
