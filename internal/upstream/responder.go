package upstream

import (
	"context"
	"sync"

	"convoview/internal/model"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Responder 为一段会话历史生成一条流式回复
type Responder interface {
	Respond(ctx context.Context, history []model.Message) (<-chan string, error)
}

// ScriptedResponder 按脚本轮换回复的应答器，离线演示与测试使用。
// 回复按固定 chunkSize 个 rune 切片，投递顺序确定。
type ScriptedResponder struct {
	mu        sync.Mutex
	replies   []string
	chunkSize int
	next      int
}

func NewScriptedResponder(replies []string, chunkSize int) *ScriptedResponder {
	if len(replies) == 0 {
		replies = []string{"收到，这是一条脚本回复。"}
	}
	if chunkSize <= 0 {
		chunkSize = 4
	}
	return &ScriptedResponder{replies: replies, chunkSize: chunkSize}
}

func (r *ScriptedResponder) Respond(ctx context.Context, history []model.Message) (<-chan string, error) {
	r.mu.Lock()
	reply := r.replies[r.next%len(r.replies)]
	r.next++
	r.mu.Unlock()

	ch := make(chan string)
	go func() {
		defer close(ch)

		runes := []rune(reply)
		for start := 0; start < len(runes); start += r.chunkSize {
			end := start + r.chunkSize
			if end > len(runes) {
				end = len(runes)
			}
			select {
			case ch <- string(runes[start:end]):
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// ModelResponder 把会话历史喂给 eino ChatModel，流式转发增量内容
type ModelResponder struct {
	chatModel    einoModel.ChatModel
	systemPrompt string
}

func NewModelResponder(chatModel einoModel.ChatModel, systemPrompt string) *ModelResponder {
	return &ModelResponder{chatModel: chatModel, systemPrompt: systemPrompt}
}

func (r *ModelResponder) Respond(ctx context.Context, history []model.Message) (<-chan string, error) {
	reader, err := r.chatModel.Stream(ctx, r.convertHistory(history))
	if err != nil {
		return nil, err
	}

	ch := make(chan string, 16)
	go func() {
		defer close(ch)
		defer reader.Close()

		for {
			msg, err := reader.Recv()
			if err != nil {
				return
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			select {
			case ch <- msg.Content:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// convertHistory 只带上模型能消费的角色，工具调用记录不进上下文
func (r *ModelResponder) convertHistory(history []model.Message) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history)+1)
	if r.systemPrompt != "" {
		msgs = append(msgs, &schema.Message{Role: schema.System, Content: r.systemPrompt})
	}

	for _, m := range history {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case model.RoleUser:
			msgs = append(msgs, &schema.Message{Role: schema.User, Content: m.Content})
		case model.RoleAssistant:
			msgs = append(msgs, &schema.Message{Role: schema.Assistant, Content: m.Content})
		case model.RoleSystem:
			msgs = append(msgs, &schema.Message{Role: schema.System, Content: m.Content})
		}
	}
	return msgs
}
