package service

import "errors"

var (
	// ErrNotActive 视图尚未订阅或已拆除
	ErrNotActive = errors.New("view session not active")
	// ErrNoMoreHistory 历史已取尽，拒绝再翻页
	ErrNoMoreHistory = errors.New("no more history")
	// ErrTargetNotFound 重新生成的目标消息不存在或缺少定序信息
	ErrTargetNotFound = errors.New("regenerate target not found")
	// ErrNothingToRegenerate 目标之后没有任何可删除的消息
	ErrNothingToRegenerate = errors.New("nothing to regenerate")
)
