package service

import (
	"math/rand"
	"testing"

	"convoview/internal/model"
)

func frag(sessionID string, index int, text string) model.Fragment {
	return model.Fragment{SessionID: sessionID, Index: index, Text: text}
}

func TestAssembler_InOrder(t *testing.T) {
	a := NewAssembler("s1")

	a.Ingest(frag("s1", 0, "He"))
	a.Ingest(frag("s1", 1, "llo"))

	if got := a.Text(); got != "Hello" {
		t.Errorf("Text() = %q, want %q", got, "Hello")
	}
	if !a.Active() {
		t.Error("Active() should be true after ingest")
	}
}

// 固定片段集合，任意到达顺序重组结果一致
func TestAssembler_ArrivalOrderInvariance(t *testing.T) {
	fragments := []model.Fragment{
		frag("s1", 0, "甲"),
		frag("s1", 1, "乙"),
		frag("s1", 2, "丙"),
		frag("s1", 3, "丁"),
		frag("s1", 4, "戊"),
	}
	want := "甲乙丙丁戊"

	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		order := r.Perm(len(fragments))

		a := NewAssembler("s1")
		// index=0 重置缓冲，先吞 0 号再乱序吞其余，避免测试本身触发重置语义
		a.Ingest(fragments[0])
		for _, i := range order {
			if i == 0 {
				continue
			}
			a.Ingest(fragments[i])
		}

		if got := a.Text(); got != want {
			t.Fatalf("trial %d: Text() = %q, want %q (order %v)", trial, got, want, order)
		}
	}
}

func TestAssembler_IndexZeroResets(t *testing.T) {
	a := NewAssembler("s1")

	a.Ingest(frag("s1", 0, "A"))
	a.Ingest(frag("s1", 1, "B"))
	if got := a.Text(); got != "AB" {
		t.Fatalf("Text() = %q, want %q", got, "AB")
	}

	// 新一轮回复从 index=0 开始，老缓冲必须整体丢弃
	a.Ingest(frag("s1", 0, "C"))
	if got := a.Text(); got != "C" {
		t.Errorf("Text() after reset = %q, want %q", got, "C")
	}
}

func TestAssembler_GapsContributeEmpty(t *testing.T) {
	a := NewAssembler("s1")

	a.Ingest(frag("s1", 0, "a"))
	a.Ingest(frag("s1", 3, "d"))

	if got := a.Text(); got != "ad" {
		t.Errorf("Text() = %q, want %q", got, "ad")
	}

	// 补上空洞
	a.Ingest(frag("s1", 1, "b"))
	a.Ingest(frag("s1", 2, "c"))
	if got := a.Text(); got != "abcd" {
		t.Errorf("Text() = %q, want %q", got, "abcd")
	}
}

func TestAssembler_DuplicateOverwriteIdempotent(t *testing.T) {
	a := NewAssembler("s1")

	a.Ingest(frag("s1", 0, "x"))
	a.Ingest(frag("s1", 1, "y"))
	a.Ingest(frag("s1", 1, "y"))
	a.Ingest(frag("s1", 1, "y"))

	if got := a.Text(); got != "xy" {
		t.Errorf("Text() = %q, want %q", got, "xy")
	}
}

func TestAssembler_RejectsForeignSession(t *testing.T) {
	a := NewAssembler("s1")

	if a.Ingest(frag("s2", 0, "nope")) {
		t.Error("Ingest() should reject fragment from another session")
	}
	if a.Active() {
		t.Error("buffer should stay empty after rejected fragment")
	}
}

func TestAssembler_RejectsNegativeIndex(t *testing.T) {
	a := NewAssembler("s1")

	if a.Ingest(frag("s1", -1, "bad")) {
		t.Error("Ingest() should reject negative index")
	}
}

// 重组长度只增不减（index=0 重置除外）
func TestAssembler_LengthMonotone(t *testing.T) {
	a := NewAssembler("s1")
	a.Ingest(frag("s1", 0, "aa"))

	prev := len(a.Text())
	for _, f := range []model.Fragment{
		frag("s1", 5, "ff"),
		frag("s1", 2, "cc"),
		frag("s1", 5, "ff"),
		frag("s1", 1, "bb"),
	} {
		a.Ingest(f)
		if cur := len(a.Text()); cur < prev {
			t.Fatalf("length shrank from %d to %d after index %d", prev, cur, f.Index)
		} else {
			prev = cur
		}
	}
}

func TestAssembler_Clear(t *testing.T) {
	a := NewAssembler("s1")
	a.Ingest(frag("s1", 0, "data"))

	a.Clear()

	if a.Active() {
		t.Error("Active() should be false after Clear")
	}
	if got := a.Text(); got != "" {
		t.Errorf("Text() = %q, want empty", got)
	}
}
