// Package upstream 是进程内的聊天上游：实现视图引擎消费的
// transport.Backend 全集，演示二进制与测试共用。
package upstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"convoview/internal/model"
	"convoview/internal/storage"
	"convoview/internal/transport"
	"convoview/pkg/logger"

	"github.com/google/uuid"
)

// Server 持有存储与应答器，向订阅方推送消息快照和流式片段。
// 快照按 snapshotLimit 截断，只携带最近的消息，老消息靠翻页补齐。
type Server struct {
	store         storage.Store
	responder     Responder
	snapshotLimit int

	mu        sync.Mutex
	msgSubs   map[string]map[int64]transport.BatchHandler
	fragSubs  map[string]map[int64]transport.FragmentHandler
	nextSubID int64

	// pubMu 保证对同一批订阅者的投递串行
	pubMu sync.Mutex

	wg        sync.WaitGroup
	cleanupWG sync.WaitGroup
	stop      chan struct{}
	once      sync.Once
}

func NewServer(store storage.Store, responder Responder, snapshotLimit int) *Server {
	if snapshotLimit <= 0 {
		snapshotLimit = 50
	}
	return &Server{
		store:         store,
		responder:     responder,
		snapshotLimit: snapshotLimit,
		msgSubs:       make(map[string]map[int64]transport.BatchHandler),
		fragSubs:      make(map[string]map[int64]transport.FragmentHandler),
		stop:          make(chan struct{}),
	}
}

type subscription struct {
	cancel func()
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// SubscribeMessages 注册消息快照订阅，注册后异步补发一次当前快照
func (s *Server) SubscribeMessages(sessionID string, h transport.BatchHandler) transport.Subscription {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	if s.msgSubs[sessionID] == nil {
		s.msgSubs[sessionID] = make(map[int64]transport.BatchHandler)
	}
	s.msgSubs[sessionID][id] = h
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.publishSnapshot(sessionID)
	}()

	return &subscription{cancel: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.msgSubs[sessionID], id)
	}}
}

func (s *Server) SubscribeFragments(sessionID string, h transport.FragmentHandler) transport.Subscription {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	if s.fragSubs[sessionID] == nil {
		s.fragSubs[sessionID] = make(map[int64]transport.FragmentHandler)
	}
	s.fragSubs[sessionID][id] = h
	s.mu.Unlock()

	return &subscription{cancel: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fragSubs[sessionID], id)
	}}
}

// publishSnapshot 推送该会话最近 snapshotLimit 条消息。
// 注册表锁外投递，退订永远不会被慢的订阅者阻塞。
func (s *Server) publishSnapshot(sessionID string) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	items, _, err := s.store.ListBefore(sessionID, 0, s.snapshotLimit)
	if err != nil {
		logger.Debugf("跳过会话 %s 的快照推送: %v", sessionID, err)
		return
	}

	evt := transport.BatchEvent{SessionID: sessionID, Items: items}

	s.mu.Lock()
	handlers := make([]transport.BatchHandler, 0, len(s.msgSubs[sessionID]))
	for _, h := range s.msgSubs[sessionID] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}

func (s *Server) publishFragment(sessionID string, index int, text string) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	evt := transport.FragmentEvent{SessionID: sessionID, Index: index, Text: text}

	s.mu.Lock()
	handlers := make([]transport.FragmentHandler, 0, len(s.fragSubs[sessionID]))
	for _, h := range s.fragSubs[sessionID] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}

// ListBefore 历史翻页
func (s *Server) ListBefore(ctx context.Context, sessionID string, beforeSeq int64, limit int) (*transport.Page, error) {
	items, hasMore, err := s.store.ListBefore(sessionID, beforeSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	next := beforeSeq
	for _, m := range items {
		if next == beforeSeq || m.Seq < next {
			next = m.Seq
		}
	}

	return &transport.Page{Items: items, NextCursor: next, HasMore: hasMore}, nil
}

func (s *Server) ListFrom(ctx context.Context, sessionID string, fromSeq int64) ([]model.Message, error) {
	return s.store.ListFrom(sessionID, fromSeq)
}

func (s *Server) DeleteMessage(ctx context.Context, sessionID, messageID string) error {
	if err := s.store.DeleteMessage(sessionID, messageID); err != nil {
		return err
	}
	s.publishSnapshot(sessionID)
	return nil
}

// SendMessage 落库用户消息、推送快照，然后异步生成流式回复
func (s *Server) SendMessage(ctx context.Context, sessionID, text string) (*model.Message, error) {
	session, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}

	msg := &model.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
		Complete:  true,
	}
	if err := s.store.AppendMessage(sessionID, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	// 第一条用户消息顶替默认标题
	if strings.HasPrefix(session.Title, "新对话") {
		if msgs, err := s.store.Messages(sessionID); err == nil && len(msgs) == 1 {
			session.Title = truncateTitle(text, 30)
			session.UpdatedAt = time.Now()
			if err := s.store.UpdateSession(session); err != nil {
				logger.Warnf("更新会话标题失败: %v", err)
			}
		}
	}

	s.publishSnapshot(sessionID)

	s.wg.Add(1)
	go s.respond(sessionID)

	return msg, nil
}

// respond 用应答器生成回复：片段按序号推给订阅者，
// 全文落库为已完成的 assistant 消息后再推一次快照。
func (s *Server) respond(sessionID string) {
	defer s.wg.Done()

	ctx := context.Background()
	history, err := s.store.Messages(sessionID)
	if err != nil {
		logger.Errorf("读取会话 %s 历史失败: %v", sessionID, err)
		return
	}

	chunks, err := s.responder.Respond(ctx, history)
	if err != nil {
		logger.Errorf("会话 %s 生成回复失败: %v", sessionID, err)
		return
	}

	var full strings.Builder
	index := 0
	for chunk := range chunks {
		full.WriteString(chunk)
		s.publishFragment(sessionID, index, chunk)
		index++
	}

	if full.Len() == 0 {
		logger.Warnf("会话 %s 的回复为空，跳过落库", sessionID)
		return
	}

	reply := &model.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   full.String(),
		Timestamp: time.Now(),
		Complete:  true,
	}
	if err := s.store.AppendMessage(sessionID, reply); err != nil {
		logger.Errorf("落库回复失败: %v", err)
		return
	}

	s.publishSnapshot(sessionID)
}

// CreateSession 新建会话，空标题用默认标题
func (s *Server) CreateSession(title string) (*model.Session, error) {
	if title == "" {
		title = "新对话 " + time.Now().Format("2006-01-02 15:04")
	}

	session := &model.Session{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.store.CreateSession(session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}

func (s *Server) GetSession(sessionID string) (*model.Session, error) {
	return s.store.GetSession(sessionID)
}

func (s *Server) ListSessions() ([]*model.Session, error) {
	return s.store.ListSessions()
}

func (s *Server) DeleteSession(sessionID string) error {
	return s.store.DeleteSession(sessionID)
}

func (s *Server) MessageCount(sessionID string) int {
	msgs, err := s.store.Messages(sessionID)
	if err != nil {
		return 0
	}
	return len(msgs)
}

// StartCleanup 周期清理超过 ttl 未活动的会话
func (s *Server) StartCleanup(ttl, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}

	s.cleanupWG.Add(1)
	go func() {
		defer s.cleanupWG.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sessions, err := s.store.ListSessions()
				if err != nil {
					logger.Errorf("清理会话时读取列表失败: %v", err)
					continue
				}

				cutoff := time.Now().Add(-ttl)
				for _, session := range sessions {
					if session.UpdatedAt.Before(cutoff) {
						if err := s.store.DeleteSession(session.ID); err != nil {
							logger.Errorf("清理过期会话 %s 失败: %v", session.ID, err)
						} else {
							logger.Infof("已清理过期会话: %s", session.ID)
						}
					}
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// WaitIdle 等待在途的回复生成与推送全部结束
func (s *Server) WaitIdle() {
	s.wg.Wait()
}

// Stop 停止后台清理并等待在途任务
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
	s.cleanupWG.Wait()
	s.wg.Wait()
}

func truncateTitle(str string, maxLen int) string {
	runes := []rune(str)
	if len(runes) <= maxLen {
		return str
	}
	return string(runes[:maxLen]) + "..."
}
