package transport

import (
	"fmt"

	"convoview/internal/model"
)

// Event 订阅侧的类型化事件联合：消息批次或文本片段。
// 事件在边界处校验一次，进入业务逻辑后不再重复校验。
type Event interface {
	Validate() error
}

// BatchEvent 服务端变更时推送的持久化消息快照。
// 至少一次投递，条目无序，且可能因快照上限而缺少较早的消息。
type BatchEvent struct {
	SessionID string          `json:"session_id"`
	Items     []model.Message `json:"items"`
}

func (e BatchEvent) Validate() error {
	if e.SessionID == "" {
		return &MalformedEventError{Kind: EventMessageBatch, Reason: "missing session_id"}
	}
	for i, item := range e.Items {
		if item.ID == "" {
			return &MalformedEventError{Kind: EventMessageBatch, Reason: fmt.Sprintf("item %d missing id", i)}
		}
		if item.SessionID != e.SessionID {
			return &MalformedEventError{Kind: EventMessageBatch, Reason: fmt.Sprintf("item %s session mismatch", item.ID)}
		}
		switch item.Role {
		case model.RoleUser, model.RoleAssistant, model.RoleTool, model.RoleSystem:
		default:
			return &MalformedEventError{Kind: EventMessageBatch, Reason: fmt.Sprintf("item %s has unknown role %q", item.ID, item.Role)}
		}
	}
	return nil
}

// FragmentEvent 进行中回复的一个带序号片段。
// 至少一次投递，允许乱序与重复序号。
type FragmentEvent struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Text      string `json:"chunk_text"`
}

func (e FragmentEvent) Validate() error {
	if e.SessionID == "" {
		return &MalformedEventError{Kind: EventFragment, Reason: "missing session_id"}
	}
	if e.Index < 0 {
		return &MalformedEventError{Kind: EventFragment, Reason: fmt.Sprintf("negative index %d", e.Index)}
	}
	return nil
}

// MalformedEventError 事件未通过边界校验。
// 携带该错误的事件只会被丢弃并记录，绝不中断订阅流。
type MalformedEventError struct {
	Kind   string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event: %s", e.Kind, e.Reason)
}
