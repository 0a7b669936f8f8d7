package realtime

import "encoding/json"

// Inbound message kinds dispatched to caller callbacks.
const (
	TypeDecision       = "decision"
	TypePositionUpdate = "position_update"
	TypeAccountUpdate  = "account_update"
	TypeStrategyStatus = "strategy_status"
	TypeNotification   = "notification"
	TypeError          = "error"
	TypePong           = "pong"
	TypeSubscribed     = "subscribed"
	TypeUnsubscribed   = "unsubscribed"
)

// envelope is the wire frame: a type tag plus either a data payload or,
// for subscription acks, a channel name.
type envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Channel string          `json:"channel,omitempty"`
}

// directive is a small outbound control message, distinct from arbitrary
// application payloads sent via Send.
type directive struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// ServerError is an application-level error frame sent by the backend over
// the realtime connection. The raw payload is preserved for callers that
// want more than the message text.
type ServerError struct {
	Data json.RawMessage
}

func (e *ServerError) Error() string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return string(e.Data)
}
