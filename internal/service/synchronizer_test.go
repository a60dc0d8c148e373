package service

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"convoview/internal/model"
)

var syncBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, seq int64, role string) model.Message {
	return model.Message{
		ID:        id,
		SessionID: "s1",
		Role:      role,
		Content:   "content-" + id,
		Seq:       seq,
		Timestamp: syncBase.Add(time.Duration(seq) * time.Second),
		Complete:  true,
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMerge_UnionAndOrder(t *testing.T) {
	existing := []model.Message{msg("m1", 1, model.RoleUser), msg("m3", 3, model.RoleUser)}
	incoming := []model.Message{msg("m2", 2, model.RoleAssistant), msg("m4", 4, model.RoleAssistant)}

	got := Merge(existing, incoming)

	want := []string{"m1", "m2", "m3", "m4"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("Merge order = %v, want %v", ids(got), want)
	}
}

func TestMerge_IncomingWins(t *testing.T) {
	old := msg("m1", 1, model.RoleAssistant)
	old.Content = "stale"
	fresh := msg("m1", 1, model.RoleAssistant)
	fresh.Content = "fresh"

	got := Merge([]model.Message{old}, []model.Message{fresh})

	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Content != "fresh" {
		t.Errorf("Content = %q, want %q", got[0].Content, "fresh")
	}
}

func TestMerge_Idempotent(t *testing.T) {
	existing := []model.Message{msg("m1", 1, model.RoleUser), msg("m2", 2, model.RoleAssistant)}
	incoming := []model.Message{msg("m2", 2, model.RoleAssistant)}

	once := Merge(existing, incoming)
	twice := Merge(once, incoming)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("repeated merge changed result: %v vs %v", ids(once), ids(twice))
	}
}

// incoming 缺某条消息不会把它从列表里删掉
func TestMerge_OmissionIsNotDeletion(t *testing.T) {
	existing := []model.Message{msg("m1", 1, model.RoleUser), msg("m2", 2, model.RoleAssistant)}
	incoming := []model.Message{msg("m3", 3, model.RoleUser)}

	got := Merge(existing, incoming)

	want := []string{"m1", "m2", "m3"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("Merge = %v, want %v", ids(got), want)
	}
}

// 同一组快照不论以什么顺序、怎样切批到达，最终列表一致
func TestMerge_BatchOrderInvariance(t *testing.T) {
	all := []model.Message{
		msg("m1", 1, model.RoleUser),
		msg("m2", 2, model.RoleAssistant),
		msg("m3", 3, model.RoleUser),
		msg("m4", 4, model.RoleAssistant),
		msg("m5", 5, model.RoleUser),
		msg("m6", 6, model.RoleAssistant),
	}

	want := Merge(nil, all)

	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		shuffled := make([]model.Message, len(all))
		copy(shuffled, all)
		r.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		var acc []model.Message
		for i := 0; i < len(shuffled); {
			n := 1 + r.Intn(3)
			if i+n > len(shuffled) {
				n = len(shuffled) - i
			}
			acc = Merge(acc, shuffled[i:i+n])
			i += n
		}

		if !reflect.DeepEqual(ids(acc), ids(want)) {
			t.Fatalf("trial %d: Merge = %v, want %v", trial, ids(acc), ids(want))
		}
	}
}

// Seq 缺失时退回时间戳排序
func TestMerge_FallbackToTimestamp(t *testing.T) {
	early := model.Message{ID: "b", SessionID: "s1", Role: model.RoleUser, Timestamp: syncBase}
	late := model.Message{ID: "a", SessionID: "s1", Role: model.RoleUser, Timestamp: syncBase.Add(time.Minute)}

	got := Merge(nil, []model.Message{late, early})

	want := []string{"b", "a"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("Merge = %v, want %v", ids(got), want)
	}
}

func TestLatestTurnComplete(t *testing.T) {
	incomplete := msg("m2", 2, model.RoleAssistant)
	incomplete.Complete = false

	tests := []struct {
		name string
		msgs []model.Message
		want bool
	}{
		{"空列表", nil, false},
		{"末尾是用户消息", []model.Message{msg("m1", 1, model.RoleUser)}, false},
		{"末尾是未完成回复", []model.Message{msg("m1", 1, model.RoleUser), incomplete}, false},
		{"末尾是完整回复", []model.Message{msg("m1", 1, model.RoleUser), msg("m2", 2, model.RoleAssistant)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := latestTurnComplete(tt.msgs); got != tt.want {
				t.Errorf("latestTurnComplete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPruneFrom(t *testing.T) {
	msgs := []model.Message{
		msg("m1", 1, model.RoleUser),
		msg("m2", 2, model.RoleAssistant),
		msg("m3", 3, model.RoleUser),
	}

	got := pruneFrom(msgs, 2)

	want := []string{"m1"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("pruneFrom = %v, want %v", ids(got), want)
	}
}

func TestOldestSeq(t *testing.T) {
	tests := []struct {
		name string
		msgs []model.Message
		want int64
	}{
		{"空列表", nil, 0},
		{"常规", []model.Message{msg("m3", 3, model.RoleUser), msg("m1", 1, model.RoleUser)}, 1},
		{"忽略零值 Seq", []model.Message{{ID: "x"}, msg("m2", 2, model.RoleUser)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := oldestSeq(tt.msgs); got != tt.want {
				t.Errorf("oldestSeq() = %d, want %d", got, tt.want)
			}
		})
	}
}
