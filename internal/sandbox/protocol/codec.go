package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes m for the wire. INIT_PORT cannot leave the process.
func Encode(m Message) ([]byte, error) {
	if m.Type == InitPort {
		return nil, ErrNotTransferred
	}
	if !m.Type.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(m.Type))
	}
	return sonic.Marshal(m)
}

// Decode parses a wire message into its typed payload
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	msg := Message{Type: env.Type}
	var err error
	switch env.Type {
	case Execute:
		var p ExecutePayload
		err = decodePayload(env.Payload, &p)
		msg.Payload = p
	case Theme:
		var p ThemePayload
		if err = decodePayload(env.Payload, &p); err == nil {
			p.Mode, err = ParseTheme(string(p.Mode))
		}
		msg.Payload = p
	case SimulateRequest:
		var p RequestPayload
		err = decodePayload(env.Payload, &p)
		msg.Payload = p
	case RequestComplete:
		var p ResponsePayload
		err = decodePayload(env.Payload, &p)
		msg.Payload = p
	case RuntimeError, ConsoleLog, ConsoleWarn, ConsoleError, DOMSnapshot:
		var text string
		err = decodePayload(env.Payload, &text)
		msg.Payload = text
	case ReadySignal, ServerReady:
	case InitPort:
		return Message{}, ErrNotTransferred
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, string(env.Type))
	}
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrBadPayload)
	}
	if err := sonic.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
