package model

import "time"

// ViewResponse 暴露给展示层的会话视图快照：
// 去重排序过滤后的条目序列，末尾附带流式伪消息（若存在）
type ViewResponse struct {
	SessionID string    `json:"session_id"`
	Entries   []Message `json:"entries"`
	Streaming bool      `json:"streaming"`
	HasMore   bool      `json:"has_more"`
}

type SessionResponse struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

type SendResponse struct {
	SessionID string  `json:"session_id"`
	Message   Message `json:"message"`
}
