package service

import "convoview/internal/model"

// Filter 决定每个条目是否进入渲染序列的纯谓词。
// assistant 采用防闪烁规则：已完成或文本非空即可见，
// 避免已完成的回答在状态切换间隙消失。
type Filter struct {
	visibleTools map[string]bool
}

func NewFilter(visibleTools []string) *Filter {
	allowed := make(map[string]bool, len(visibleTools))
	for _, name := range visibleTools {
		allowed[name] = true
	}
	return &Filter{visibleTools: allowed}
}

func (f *Filter) Visible(m model.Message) bool {
	switch m.Role {
	case model.RoleUser, model.RoleSystem:
		return true
	case model.RoleAssistant:
		return m.Complete || m.Content != ""
	case model.RoleAssistantStream:
		return true
	case model.RoleTool:
		// 白名单之外的工具调用属于内部过程，不上屏
		return f.visibleTools[m.ToolName]
	default:
		return false
	}
}

// Apply 保持输入顺序，过滤出可见条目
func (f *Filter) Apply(msgs []model.Message) []model.Message {
	visible := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if f.Visible(m) {
			visible = append(visible, m)
		}
	}
	return visible
}
