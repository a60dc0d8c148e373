package model

import "time"

// 消息角色
const (
	RoleUser            = "user"
	RoleAssistant       = "assistant"
	RoleAssistantStream = "assistant-stream" // 流式伪消息专用，永不落库
	RoleTool            = "tool"
	RoleSystem          = "system"
)

// Message 会话内的一条持久化消息。落库之后不可变，
// 同一会话内 ID 唯一，Seq 由上游在落库时按会话单调分配。
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"` // 仅 role=tool 时有值
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Complete  bool      `json:"complete"`
}

// Before 规范序比较：Seq 优先，缺 Seq 时退回时间戳，最后用 ID 定序。
// 保证任意两条消息之间存在全序，排序结果与到达顺序无关。
func (m Message) Before(o Message) bool {
	if m.Seq > 0 && o.Seq > 0 && m.Seq != o.Seq {
		return m.Seq < o.Seq
	}
	if !m.Timestamp.Equal(o.Timestamp) {
		return m.Timestamp.Before(o.Timestamp)
	}
	if m.Seq != o.Seq {
		return m.Seq < o.Seq
	}
	return m.ID < o.ID
}

// Fragment 进行中回复的一个带序号文本片段，只存在于内存中
type Fragment struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Text      string `json:"chunk_text"`
}

// Session 会话元信息
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
