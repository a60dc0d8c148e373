package transport

import (
	"context"

	"convoview/internal/model"
)

// Subscription 订阅句柄，Unsubscribe 可重复调用
type Subscription interface {
	Unsubscribe()
}

type BatchHandler func(BatchEvent)

type FragmentHandler func(FragmentEvent)

// Source 按会话订阅两路更新：持久化消息快照与流式片段。
// 订阅回调串行触发，handler 收到的事件已通过边界校验。
type Source interface {
	SubscribeMessages(sessionID string, h BatchHandler) Subscription
	SubscribeFragments(sessionID string, h FragmentHandler) Subscription
}

// Page 一页历史消息，NextCursor 指向本页最早一条的 Seq
type Page struct {
	Items      []model.Message `json:"items"`
	NextCursor int64           `json:"next_cursor"`
	HasMore    bool            `json:"has_more"`
}

// Lister 拉取式查询。beforeSeq<=0 表示从最新一条往前取。
type Lister interface {
	ListBefore(ctx context.Context, sessionID string, beforeSeq int64, limit int) (*Page, error)
	ListFrom(ctx context.Context, sessionID string, fromSeq int64) ([]model.Message, error)
}

type Deleter interface {
	DeleteMessage(ctx context.Context, sessionID, messageID string) error
}

type Sender interface {
	SendMessage(ctx context.Context, sessionID, text string) (*model.Message, error)
}

// Backend 视图引擎依赖的上游全集
type Backend interface {
	Source
	Lister
	Deleter
	Sender
}
