package model

type SendRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}

// RegenerateRequest 编辑重发：删除目标消息及其之后的全部消息，再以新文本重新提问
type RegenerateRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	MessageID string `json:"message_id" binding:"required"`
	Message   string `json:"message"`
}

type LoadMoreRequest struct {
	Limit int `json:"limit"`
}
