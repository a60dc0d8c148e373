package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"convoview/internal/model"
	"convoview/pkg/logger"
)

// DiskStore 文件存储：每个会话一个 JSON 文件，写操作直写磁盘。
// 演示进程重启后会话不丢。
type DiskStore struct {
	dataDir  string
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
}

// sessionFile 会话文件的落盘格式
type sessionFile struct {
	Session  *model.Session  `json:"session"`
	Messages []model.Message `json:"messages"`
	NextSeq  int64           `json:"next_seq"`
}

func NewDiskStore(dataDir string) *DiskStore {
	return &DiskStore{
		dataDir:  dataDir,
		sessions: make(map[string]*sessionRecord),
	}
}

func (d *DiskStore) Init() error {
	if err := os.MkdirAll(filepath.Join(d.dataDir, "sessions"), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	entries, err := os.ReadDir(filepath.Join(d.dataDir, "sessions"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		rec, err := d.loadSessionFile(filepath.Join(d.dataDir, "sessions", entry.Name()))
		if err != nil {
			logger.Errorf("加载会话文件 %s 失败: %v", entry.Name(), err)
			continue
		}
		d.sessions[rec.meta.ID] = rec
	}

	logger.Infof("磁盘存储就绪，已加载 %d 个会话", len(d.sessions))
	return nil
}

func (d *DiskStore) Close() error {
	return nil
}

func (d *DiskStore) loadSessionFile(path string) (*sessionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, err
	}
	if sf.Session == nil || sf.Session.ID == "" {
		return nil, fmt.Errorf("invalid session file %s", path)
	}
	if sf.NextSeq <= 0 {
		sf.NextSeq = 1
	}

	return &sessionRecord{
		meta:     sf.Session,
		messages: sf.Messages,
		nextSeq:  sf.NextSeq,
	}, nil
}

func (d *DiskStore) sessionPath(sessionID string) string {
	return filepath.Join(d.dataDir, "sessions", sessionID+".json")
}

// saveLocked 调用方需持有写锁
func (d *DiskStore) saveLocked(rec *sessionRecord) error {
	data, err := json.MarshalIndent(sessionFile{
		Session:  rec.meta,
		Messages: rec.messages,
		NextSeq:  rec.nextSeq,
	}, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(d.sessionPath(rec.meta.ID), data, 0644)
}

func (d *DiskStore) CreateSession(session *model.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := &sessionRecord{meta: session, nextSeq: 1}
	if err := d.saveLocked(rec); err != nil {
		return err
	}

	d.sessions[session.ID] = rec
	return nil
}

func (d *DiskStore) GetSession(sessionID string) (*model.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, exists := d.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	meta := *rec.meta
	return &meta, nil
}

func (d *DiskStore) UpdateSession(session *model.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, exists := d.sessions[session.ID]
	if !exists {
		return ErrSessionNotFound
	}

	rec.meta = session
	return d.saveLocked(rec)
}

func (d *DiskStore) DeleteSession(sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.sessions[sessionID]; !exists {
		return ErrSessionNotFound
	}

	delete(d.sessions, sessionID)
	if err := os.Remove(d.sessionPath(sessionID)); err != nil && !os.IsNotExist(err) {
		logger.Errorf("删除会话文件 %s 失败: %v", sessionID, err)
	}
	return nil
}

func (d *DiskStore) ListSessions() ([]*model.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sessions := make([]*model.Session, 0, len(d.sessions))
	for _, rec := range d.sessions {
		meta := *rec.meta
		sessions = append(sessions, &meta)
	}
	return sessions, nil
}

func (d *DiskStore) AppendMessage(sessionID string, message *model.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, exists := d.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	message.Seq = rec.nextSeq
	rec.nextSeq++
	rec.messages = append(rec.messages, *message)
	rec.meta.UpdatedAt = time.Now()
	return d.saveLocked(rec)
}

func (d *DiskStore) Messages(sessionID string) ([]model.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, exists := d.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	out := make([]model.Message, len(rec.messages))
	copy(out, rec.messages)
	return out, nil
}

func (d *DiskStore) ListBefore(sessionID string, beforeSeq int64, limit int) ([]model.Message, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, exists := d.sessions[sessionID]
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

func (d *DiskStore) ListFrom(sessionID string, fromSeq int64) ([]model.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, exists := d.sessions[sessionID]
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

func (d *DiskStore) DeleteMessage(sessionID, messageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, exists := d.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	for i, msg := range rec.messages {
		if msg.ID == messageID {
			rec.messages = append(rec.messages[:i], rec.messages[i+1:]...)
			rec.meta.UpdatedAt = time.Now()
			return d.saveLocked(rec)
		}
	}

	return ErrMessageNotFound
}
