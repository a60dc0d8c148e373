package service

import (
	"sort"

	"convoview/internal/model"
)

// Merge 把一批新到的持久化消息并入已有列表：
// 按 ID 取并集，同 ID 时 incoming 为准（投递的副本是权威副本），
// 再按规范序稳定排序。幂等，且对 incoming 单调：incoming 缺某条
// 消息绝不导致删除，删除只能通过 existing 的变化发生。
func Merge(existing, incoming []model.Message) []model.Message {
	merged := make([]model.Message, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing))

	for _, m := range existing {
		index[m.ID] = len(merged)
		merged = append(merged, m)
	}
	for _, m := range incoming {
		if i, ok := index[m.ID]; ok {
			merged[i] = m
			continue
		}
		index[m.ID] = len(merged)
		merged = append(merged, m)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Before(merged[j])
	})

	return merged
}

// latestTurnComplete 合并结果的最后一条是否为已完成的 assistant 消息。
// 成立时调用方应清掉流式伪消息，避免同屏出现已完成回复和它的流式影子。
func latestTurnComplete(msgs []model.Message) bool {
	if len(msgs) == 0 {
		return false
	}
	last := msgs[len(msgs)-1]
	return last.Role == model.RoleAssistant && last.Complete
}

// pruneFrom 留下规范序严格早于 seq 的消息
func pruneFrom(msgs []model.Message, seq int64) []model.Message {
	kept := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Seq < seq {
			kept = append(kept, m)
		}
	}
	return kept
}

// oldestSeq 当前列表中最小的 Seq，空列表返回 0
func oldestSeq(msgs []model.Message) int64 {
	var min int64
	for _, m := range msgs {
		if m.Seq > 0 && (min == 0 || m.Seq < min) {
			min = m.Seq
		}
	}
	return min
}
