package storage

import (
	"sync"
	"time"

	"convoview/internal/model"
)

type sessionRecord struct {
	meta     *model.Session
	messages []model.Message // 按 Seq 升序
	nextSeq  int64
}

// MemoryStore 进程内存储，测试与默认配置使用
type MemoryStore struct {
	sessions map[string]*sessionRecord
	mu       sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*sessionRecord),
	}
}

func (m *MemoryStore) Init() error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) CreateSession(session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = &sessionRecord{
		meta:    session,
		nextSeq: 1,
	}
	return nil
}

func (m *MemoryStore) GetSession(sessionID string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	meta := *rec.meta
	return &meta, nil
}

func (m *MemoryStore) UpdateSession(session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.sessions[session.ID]
	if !exists {
		return ErrSessionNotFound
	}

	rec.meta = session
	return nil
}

func (m *MemoryStore) DeleteSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; !exists {
		return ErrSessionNotFound
	}

	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) ListSessions() ([]*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*model.Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		meta := *rec.meta
		sessions = append(sessions, &meta)
	}

	return sessions, nil
}

// AppendMessage 分配本会话下一个 Seq 并追加。列表因此恒为 Seq 升序。
func (m *MemoryStore) AppendMessage(sessionID string, message *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	message.Seq = rec.nextSeq
	rec.nextSeq++
	rec.messages = append(rec.messages, *message)
	rec.meta.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Messages(sessionID string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	out := make([]model.Message, len(rec.messages))
	copy(out, rec.messages)
	return out, nil
}

// ListBefore 取 Seq < beforeSeq 的最后 limit 条；beforeSeq<=0 表示从最新取。
// 第二个返回值表示是否还有更早的消息。
func (m *MemoryStore) ListBefore(sessionID string, beforeSeq int64, limit int) ([]model.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.sessions[sessionID]
	if !exists {
		return nil, false, ErrSessionNotFound
	}

	end := len(rec.messages)
	if beforeSeq > 0 {
		end = 0
		for i, msg := range rec.messages {
			if msg.Seq >= beforeSeq {
				break
			}
			end = i + 1
		}
	}

	start := end - limit
	if limit <= 0 || start < 0 {
		start = 0
	}

	out := make([]model.Message, end-start)
	copy(out, rec.messages[start:end])
	return out, start > 0, nil
}

func (m *MemoryStore) ListFrom(sessionID string, fromSeq int64) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	out := make([]model.Message, 0)
	for _, msg := range rec.messages {
		if msg.Seq >= fromSeq {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteMessage(sessionID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	for i, msg := range rec.messages {
		if msg.ID == messageID {
			rec.messages = append(rec.messages[:i], rec.messages[i+1:]...)
			rec.meta.UpdatedAt = time.Now()
			return nil
		}
	}

	return ErrMessageNotFound
}
