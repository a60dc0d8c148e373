package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"convoview/internal/model"
	"convoview/internal/transport"
	"convoview/pkg/logger"
)

// State 视图生命周期状态
type State int

const (
	StateUninitialized State = iota
	StateSubscribed
	StateTornDown
)

// Controller 单个会话视图的所有者：持有两路订阅、合并后的消息列表
// 和片段缓冲，是这些资源唯一的写入方。事件处理都是先算后提交，
// 全部在 mu 之下完成；挂起点（翻页、重新生成）在挂起前记录 epoch，
// 恢复后 epoch 已变则丢弃结果，绝不改写已切换的视图。
type Controller struct {
	mu       sync.Mutex
	backend  transport.Backend
	filter   *Filter
	pageSize int

	state     State
	sessionID string
	epoch     uint64

	messages  []model.Message
	assembler *Assembler
	streaming bool

	cursor  int64
	hasMore bool
	loading bool

	msgSub  transport.Subscription
	fragSub transport.Subscription

	listeners  map[int64]chan struct{}
	nextListen int64
}

func NewController(backend transport.Backend, filter *Filter, pageSize int) *Controller {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Controller{
		backend:   backend,
		filter:    filter,
		pageSize:  pageSize,
		listeners: make(map[int64]chan struct{}),
	}
}

// Start 进入 Subscribed：以 seed 为初始列表，打开两路订阅
func (c *Controller) Start(sessionID string, seed []model.Message) error {
	return c.switchTo(sessionID, seed)
}

// SwitchSession 活动会话变更：拆掉旧订阅并清空状态，再以新 id 重建。
// 目标 id 与当前一致时是 no-op。
func (c *Controller) SwitchSession(sessionID string, seed []model.Message) error {
	return c.switchTo(sessionID, seed)
}

func (c *Controller) switchTo(sessionID string, seed []model.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	c.mu.Lock()
	if c.state == StateTornDown {
		c.mu.Unlock()
		return ErrNotActive
	}
	if c.state == StateSubscribed && c.sessionID == sessionID {
		c.mu.Unlock()
		return nil
	}

	oldMsg, oldFrag := c.msgSub, c.fragSub
	c.msgSub, c.fragSub = nil, nil

	c.epoch++
	c.sessionID = sessionID
	c.messages = Merge(nil, seed)
	c.assembler = NewAssembler(sessionID)
	c.streaming = false
	c.cursor = 0
	c.hasMore = true
	c.loading = false
	c.state = StateSubscribed
	c.mu.Unlock()

	// 订阅操作不持锁：上游分发和退订各有自己的锁
	if oldMsg != nil {
		oldMsg.Unsubscribe()
	}
	if oldFrag != nil {
		oldFrag.Unsubscribe()
	}

	msgSub := c.backend.SubscribeMessages(sessionID, c.onBatch)
	fragSub := c.backend.SubscribeFragments(sessionID, c.onFragment)

	c.mu.Lock()
	if c.state == StateSubscribed && c.sessionID == sessionID {
		c.msgSub, c.fragSub = msgSub, fragSub
		c.notifyLocked()
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// 订阅期间会话又变了，这对订阅已经作废
	msgSub.Unsubscribe()
	fragSub.Unsubscribe()
	return nil
}

// Close 进入 TornDown：退订、清空片段缓冲与伪消息、通知全部监听者退出
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == StateTornDown {
		c.mu.Unlock()
		return
	}
	oldMsg, oldFrag := c.msgSub, c.fragSub
	c.msgSub, c.fragSub = nil, nil
	c.state = StateTornDown
	c.epoch++
	if c.assembler != nil {
		c.assembler.Clear()
	}
	c.streaming = false
	for id, ch := range c.listeners {
		close(ch)
		delete(c.listeners, id)
	}
	c.mu.Unlock()

	if oldMsg != nil {
		oldMsg.Unsubscribe()
	}
	if oldFrag != nil {
		oldFrag.Unsubscribe()
	}
}

// onBatch 消息批次事件：校验、会话守卫、合并、完成信号
func (c *Controller) onBatch(evt transport.BatchEvent) {
	if err := evt.Validate(); err != nil {
		logger.Warnf("丢弃畸形消息批次: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSubscribed || evt.SessionID != c.sessionID {
		// 换会话比取消订阅先完成时的正常竞态，静默丢弃
		logger.Debugf("丢弃过期会话批次: %s", evt.SessionID)
		return
	}

	c.messages = Merge(c.messages, evt.Items)

	// 本轮流式回复的持久化副本已完成：同一次提交内清掉流式影子
	if (c.streaming || c.assembler.Active()) && latestTurnComplete(c.messages) {
		c.assembler.Clear()
		c.streaming = false
	}

	c.notifyLocked()
}

// onFragment 片段事件：校验、会话守卫、吞入并重算伪消息
func (c *Controller) onFragment(evt transport.FragmentEvent) {
	if err := evt.Validate(); err != nil {
		logger.Warnf("丢弃畸形片段: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSubscribed || evt.SessionID != c.sessionID {
		logger.Debugf("丢弃过期会话片段: %s", evt.SessionID)
		return
	}

	if c.assembler.Ingest(model.Fragment{SessionID: evt.SessionID, Index: evt.Index, Text: evt.Text}) {
		c.streaming = true
		c.notifyLocked()
	}
}

// LoadMore 向前翻一页历史。在途请求把后续调用折叠为 no-op；
// 历史取尽后拒绝；失败时游标与 hasMore 保持原值以便重试。
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateSubscribed {
		c.mu.Unlock()
		return ErrNotActive
	}
	if c.loading {
		c.mu.Unlock()
		return nil
	}
	if !c.hasMore {
		c.mu.Unlock()
		return ErrNoMoreHistory
	}
	c.loading = true
	sessionID := c.sessionID
	epoch := c.epoch
	before := c.cursor
	if before == 0 {
		before = oldestSeq(c.messages)
	}
	c.mu.Unlock()

	page, err := c.backend.ListBefore(ctx, sessionID, before, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		// 会话已切换，结果属于旧视图
		return nil
	}
	c.loading = false

	if err != nil {
		return fmt.Errorf("load older messages: %w", err)
	}

	c.messages = Merge(c.messages, page.Items)
	c.cursor = page.NextCursor
	c.hasMore = page.HasMore
	c.notifyLocked()
	return nil
}

// Regenerate 编辑重发：先上游后本地删除目标（含）之后的全部消息，
// 再把编辑后的文本重新发出。只要取数或删除环节抛错就报失败；
// 重发失败只记日志，不影响结果。
func (c *Controller) Regenerate(ctx context.Context, messageID, newText string) error {
	c.mu.Lock()
	if c.state != StateSubscribed {
		c.mu.Unlock()
		return ErrNotActive
	}

	var target *model.Message
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			target = &c.messages[i]
			break
		}
	}
	if target == nil || target.Seq <= 0 {
		c.mu.Unlock()
		return ErrTargetNotFound
	}

	sessionID := c.sessionID
	epoch := c.epoch
	targetSeq := target.Seq
	c.mu.Unlock()

	doomed, err := c.backend.ListFrom(ctx, sessionID, targetSeq)
	if err != nil {
		return fmt.Errorf("list messages to regenerate: %w", err)
	}
	if len(doomed) == 0 {
		return ErrNothingToRegenerate
	}

	deleted := 0
	for _, m := range doomed {
		if err := c.backend.DeleteMessage(ctx, sessionID, m.ID); err != nil {
			logger.Warnf("删除消息 %s 失败: %v", m.ID, err)
			continue
		}
		deleted++
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.messages = pruneFrom(c.messages, targetSeq)
		c.assembler.Clear()
		c.streaming = false
		c.notifyLocked()
	}
	c.mu.Unlock()

	if deleted < len(doomed) {
		return fmt.Errorf("regenerate: deleted %d of %d messages", deleted, len(doomed))
	}

	if newText != "" {
		if _, err := c.backend.SendMessage(ctx, sessionID, newText); err != nil {
			logger.Warnf("重发编辑消息失败: %v", err)
		}
	}
	return nil
}

// Snapshot 当前视图快照：过滤后的条目，伪消息（若存在）恒排最后
func (c *Controller) Snapshot() model.ViewResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.filter.Apply(c.messages)
	if c.assembler != nil && c.assembler.Active() {
		entries = append(entries, model.Message{
			ID:        "streaming-" + c.sessionID,
			SessionID: c.sessionID,
			Role:      model.RoleAssistantStream,
			Content:   c.assembler.Text(),
			Timestamp: time.Now(),
		})
	}

	return model.ViewResponse{
		SessionID: c.sessionID,
		Entries:   entries,
		Streaming: c.streaming,
		HasMore:   c.hasMore,
	}
}

// Entries 过滤后的渲染序列
func (c *Controller) Entries() []model.Message {
	return c.Snapshot().Entries
}

// Streaming 是否存在进行中的回复
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

func (c *Controller) HasMoreHistory() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Updates 注册一个视图变更通知通道（容量 1，信号合并），
// 返回退订函数。Close 时通道被关闭。
func (c *Controller) Updates() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextListen
	c.nextListen++
	ch := make(chan struct{}, 1)

	if c.state == StateTornDown {
		close(ch)
		return ch, func() {}
	}

	c.listeners[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.listeners[id]; ok {
			delete(c.listeners, id)
		}
	}
}

func (c *Controller) notifyLocked() {
	for _, ch := range c.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
