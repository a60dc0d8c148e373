package storage

import (
	"errors"
	"testing"
	"time"

	"convoview/internal/model"
)

func seedSession(t *testing.T, s Store, id string, msgCount int) {
	t.Helper()
	err := s.CreateSession(&model.Session{ID: id, Title: "测试会话", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for i := 0; i < msgCount; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		m := &model.Message{
			ID:        id + "-m" + string(rune('a'+i)),
			SessionID: id,
			Role:      role,
			Content:   "消息",
			Timestamp: time.Now(),
			Complete:  true,
		}
		if err := s.AppendMessage(id, m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
}

func TestMemoryStore_SessionCRUD(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.GetSession("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession(missing) = %v, want ErrSessionNotFound", err)
	}

	seedSession(t, s, "s1", 0)

	got, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Title != "测试会话" {
		t.Errorf("Title = %q", got.Title)
	}

	got.Title = "改名"
	if err := s.UpdateSession(got); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	again, _ := s.GetSession("s1")
	if again.Title != "改名" {
		t.Errorf("Title after update = %q, want %q", again.Title, "改名")
	}

	sessions, err := s.ListSessions()
	if err != nil || len(sessions) != 1 {
		t.Fatalf("ListSessions = %d sessions, err %v", len(sessions), err)
	}

	if err := s.DeleteSession("s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := s.DeleteSession("s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("double delete = %v, want ErrSessionNotFound", err)
	}
}

// Seq 由存储在落库时按会话单调分配，从 1 起
func TestMemoryStore_AppendAssignsSeq(t *testing.T) {
	s := NewMemoryStore()
	seedSession(t, s, "s1", 3)
	seedSession(t, s, "s2", 1)

	msgs, err := s.Messages("s1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	for i, m := range msgs {
		if want := int64(i + 1); m.Seq != want {
			t.Errorf("msgs[%d].Seq = %d, want %d", i, m.Seq, want)
		}
	}

	other, _ := s.Messages("s2")
	if other[0].Seq != 1 {
		t.Errorf("sequence must be per session, got Seq %d", other[0].Seq)
	}
}

func TestMemoryStore_ListBefore(t *testing.T) {
	s := NewMemoryStore()
	seedSession(t, s, "s1", 5)

	// beforeSeq<=0 从最新往前取
	page, hasMore, err := s.ListBefore("s1", 0, 2)
	if err != nil {
		t.Fatalf("ListBefore: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 4 || page[1].Seq != 5 {
		t.Fatalf("latest page seqs = %v", seqs(page))
	}
	if !hasMore {
		t.Error("hasMore should be true with older messages left")
	}

	// 以最早一条的 Seq 作为游标继续翻
	page, hasMore, err = s.ListBefore("s1", 4, 2)
	if err != nil {
		t.Fatalf("ListBefore: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 2 || page[1].Seq != 3 {
		t.Fatalf("second page seqs = %v", seqs(page))
	}
	if !hasMore {
		t.Error("hasMore should still be true")
	}

	page, hasMore, err = s.ListBefore("s1", 2, 2)
	if err != nil {
		t.Fatalf("ListBefore: %v", err)
	}
	if len(page) != 1 || page[0].Seq != 1 {
		t.Fatalf("last page seqs = %v", seqs(page))
	}
	if hasMore {
		t.Error("hasMore should be false at the oldest message")
	}
}

func TestMemoryStore_ListFrom(t *testing.T) {
	s := NewMemoryStore()
	seedSession(t, s, "s1", 4)

	got, err := s.ListFrom("s1", 3)
	if err != nil {
		t.Fatalf("ListFrom: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 3 || got[1].Seq != 4 {
		t.Errorf("ListFrom seqs = %v, want [3 4]", seqs(got))
	}
}

func TestMemoryStore_DeleteMessage(t *testing.T) {
	s := NewMemoryStore()
	seedSession(t, s, "s1", 2)

	msgs, _ := s.Messages("s1")
	if err := s.DeleteMessage("s1", msgs[1].ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}

	left, _ := s.Messages("s1")
	if len(left) != 1 || left[0].Seq != 1 {
		t.Errorf("remaining seqs = %v, want [1]", seqs(left))
	}

	if err := s.DeleteMessage("s1", "ghost"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("DeleteMessage(missing) = %v, want ErrMessageNotFound", err)
	}
}

func seqs(msgs []model.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Seq
	}
	return out
}
