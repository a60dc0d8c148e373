package storage

import (
	"convoview/internal/model"
)

// Store 上游侧的会话与消息存储。
// AppendMessage 在落库时按会话分配单调递增的 Seq。
type Store interface {
	// 会话管理
	CreateSession(session *model.Session) error
	GetSession(sessionID string) (*model.Session, error)
	UpdateSession(session *model.Session) error
	DeleteSession(sessionID string) error
	ListSessions() ([]*model.Session, error)

	// 消息管理
	AppendMessage(sessionID string, message *model.Message) error
	Messages(sessionID string) ([]model.Message, error)
	ListBefore(sessionID string, beforeSeq int64, limit int) ([]model.Message, bool, error)
	ListFrom(sessionID string, fromSeq int64) ([]model.Message, error)
	DeleteMessage(sessionID, messageID string) error

	// 存储管理
	Init() error
	Close() error
}
