package wire

import (
	"encoding/json"
	"fmt"
)

// Control messages are JSON text frames sent to the ticker socket.
type controlMessage struct {
	Action string `json:"a"`
	Value  any    `json:"v"`
}

// SubscribeMessage builds the control frame that subscribes the given
// instrument tokens in the default mode.
func SubscribeMessage(tokens []uint32) ([]byte, error) {
	return json.Marshal(controlMessage{Action: "subscribe", Value: tokens})
}

// UnsubscribeMessage builds the control frame that drops the given tokens.
func UnsubscribeMessage(tokens []uint32) ([]byte, error) {
	return json.Marshal(controlMessage{Action: "unsubscribe", Value: tokens})
}

// ModeMessage builds the control frame that switches the given tokens to a
// feed mode (ltp, quote or full).
func ModeMessage(mode string, tokens []uint32) ([]byte, error) {
	return json.Marshal(controlMessage{Action: "mode", Value: [2]any{mode, tokens}})
}

// TextMessage is a JSON text frame received from the ticker socket. The
// broker uses these for postbacks and error notices; binary frames carry
// the market data.
type TextMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseTextMessage decodes an inbound text frame.
func ParseTextMessage(data []byte) (TextMessage, error) {
	var msg TextMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return TextMessage{}, fmt.Errorf("parsing text message: %w", err)
	}
	return msg, nil
}

// ErrorText extracts the human-readable error from an error-typed text
// message. The data field is a bare JSON string.
func (m TextMessage) ErrorText() string {
	var s string
	if err := json.Unmarshal(m.Data, &s); err != nil {
		return string(m.Data)
	}
	return s
}
