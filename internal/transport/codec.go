package transport

import "encoding/json"

// 信封事件类型
const (
	EventMessageBatch = "message_batch"
	EventFragment     = "fragment"
)

// Envelope 线上事件信封：{type, payload}
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeEnvelope 把类型化事件编码为信封 JSON
func EncodeEnvelope(evt Event) ([]byte, error) {
	var typ string
	switch evt.(type) {
	case BatchEvent:
		typ = EventMessageBatch
	case FragmentEvent:
		typ = EventFragment
	default:
		return nil, &MalformedEventError{Kind: "unknown", Reason: "unsupported event type"}
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Type: typ, Payload: payload})
}

// DecodeEnvelope 解析并校验一条线上事件。
// 任何形状问题都归为 *MalformedEventError，由调用方丢弃并记录。
func DecodeEnvelope(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &MalformedEventError{Kind: "envelope", Reason: err.Error()}
	}

	switch env.Type {
	case EventMessageBatch:
		var evt BatchEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, &MalformedEventError{Kind: EventMessageBatch, Reason: err.Error()}
		}
		if err := evt.Validate(); err != nil {
			return nil, err
		}
		return evt, nil
	case EventFragment:
		var evt FragmentEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return nil, &MalformedEventError{Kind: EventFragment, Reason: err.Error()}
		}
		if err := evt.Validate(); err != nil {
			return nil, err
		}
		return evt, nil
	default:
		return nil, &MalformedEventError{Kind: env.Type, Reason: "unknown event type"}
	}
}
