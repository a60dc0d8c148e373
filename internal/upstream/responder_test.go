package upstream

import (
	"context"
	"reflect"
	"testing"

	"convoview/internal/model"
)

func drain(t *testing.T, ch <-chan string) []string {
	t.Helper()
	var out []string
	for chunk := range ch {
		out = append(out, chunk)
	}
	return out
}

func TestScriptedResponder_ChunksByRune(t *testing.T) {
	r := NewScriptedResponder([]string{"春眠不觉晓"}, 2)

	ch, err := r.Respond(context.Background(), nil)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	got := drain(t, ch)
	want := []string{"春眠", "不觉", "晓"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("chunks = %v, want %v", got, want)
	}
}

func TestScriptedResponder_CyclesReplies(t *testing.T) {
	r := NewScriptedResponder([]string{"一", "二"}, 10)

	var got []string
	for i := 0; i < 3; i++ {
		ch, err := r.Respond(context.Background(), nil)
		if err != nil {
			t.Fatalf("Respond: %v", err)
		}
		chunks := drain(t, ch)
		got = append(got, chunks...)
	}

	want := []string{"一", "二", "一"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("replies = %v, want %v", got, want)
	}
}

func TestScriptedResponder_StopsOnCancel(t *testing.T) {
	r := NewScriptedResponder([]string{"很长很长很长很长的回复"}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := r.Respond(ctx, nil)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	<-ch
	cancel()

	// 取消后通道最终关闭，不会永远阻塞
	count := 0
	for range ch {
		count++
	}
	if count >= 10 {
		t.Errorf("received %d chunks after cancel", count)
	}
}

func TestModelResponder_ConvertHistory(t *testing.T) {
	r := NewModelResponder(nil, "你是一个助手")

	history := []model.Message{
		{Role: model.RoleUser, Content: "问"},
		{Role: model.RoleAssistant, Content: "答"},
		{Role: model.RoleTool, ToolName: "web_search", Content: "工具输出"},
		{Role: model.RoleAssistant, Content: ""},
		{Role: model.RoleAssistantStream, Content: "伪消息"},
	}

	got := r.convertHistory(history)

	// system 提示 + 用户 + 助手，工具记录和空消息不进上下文
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if string(got[0].Role) != "system" || got[0].Content != "你是一个助手" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if string(got[1].Role) != "user" || got[1].Content != "问" {
		t.Errorf("got[1] = %+v", got[1])
	}
	if string(got[2].Role) != "assistant" || got[2].Content != "答" {
		t.Errorf("got[2] = %+v", got[2])
	}
}
