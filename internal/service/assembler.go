package service

import (
	"strings"

	"convoview/internal/model"
	"convoview/pkg/logger"
)

// Assembler 把乱序、可重复、可能有空洞的片段重组为进行中回复的文本。
// 不做并发保护，由持有它的 Controller 串行访问。
type Assembler struct {
	sessionID string
	buffer    []string
}

func NewAssembler(sessionID string) *Assembler {
	return &Assembler{sessionID: sessionID}
}

// Ingest 吞入一个片段，返回是否被接受。
// index=0 视为新一轮回复开始，丢弃之前未完结的缓冲；
// 已有槽位直接覆盖（重复投递幂等）；越界则先补空槽再追加。
func (a *Assembler) Ingest(frag model.Fragment) bool {
	if frag.SessionID != a.sessionID {
		logger.Debugf("丢弃跨会话片段: got=%s want=%s index=%d", frag.SessionID, a.sessionID, frag.Index)
		return false
	}
	if frag.Index < 0 {
		logger.Warnf("丢弃非法片段序号: %d", frag.Index)
		return false
	}

	if frag.Index == 0 {
		a.buffer = []string{frag.Text}
		return true
	}

	if frag.Index < len(a.buffer) {
		a.buffer[frag.Index] = frag.Text
		return true
	}

	for len(a.buffer) < frag.Index {
		a.buffer = append(a.buffer, "")
	}
	a.buffer = append(a.buffer, frag.Text)
	return true
}

// Text 按序号升序拼接全部槽位，空洞贡献空串
func (a *Assembler) Text() string {
	return strings.Join(a.buffer, "")
}

// Active 缓冲非空即存在进行中的回复
func (a *Assembler) Active() bool {
	return len(a.buffer) > 0
}

func (a *Assembler) Clear() {
	a.buffer = nil
}
