package client

import (
	"log/slog"
	"net/url"
	"sync"
)

// DefaultShareThreshold 是触发自动分享提示所需的不同解说员数量
const DefaultShareThreshold = 5

// ShareTracker 记录本次会话中投过票的不同解说员。
// 数量恰好达到阈值且持久化标记未设置时，提示一次并设置标记。
type ShareTracker struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	threshold int
	flags     FlagStore
	prompt    func()
}

// NewShareTracker 创建一个会话级的计数器，prompt 可以为 nil
func NewShareTracker(threshold int, flags FlagStore, prompt func()) *ShareTracker {
	if threshold <= 0 {
		threshold = DefaultShareThreshold
	}
	return &ShareTracker{
		seen:      make(map[string]struct{}),
		threshold: threshold,
		flags:     flags,
		prompt:    prompt,
	}
}

// Record 记录一次投票，返回本次是否触发了分享提示
func (t *ShareTracker) Record(commentatorID string) bool {
	t.mu.Lock()
	t.seen[commentatorID] = struct{}{}
	reached := len(t.seen) == t.threshold
	t.mu.Unlock()

	if !reached || t.flags.AutoShareShown() {
		return false
	}
	if err := t.flags.MarkAutoShareShown(); err != nil {
		slog.Warn("保存分享提示标记失败", "error", err)
	}
	if t.prompt != nil {
		t.prompt()
	}
	return true
}

// Count 返回本次会话中投过票的不同解说员数量
func (t *ShareTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// ShareLinks 是分享提示中提供的外部链接
type ShareLinks struct {
	Twitter  string `json:"twitter"`
	WhatsApp string `json:"whatsapp"`
}

// BuildShareLinks 根据站点地址和分享文案生成分享链接
func BuildShareLinks(baseURL, text string) ShareLinks {
	tw := url.Values{}
	tw.Set("text", text)
	tw.Set("url", baseURL)

	wa := url.Values{}
	wa.Set("text", text+" "+baseURL)

	return ShareLinks{
		Twitter:  "https://twitter.com/intent/tweet?" + tw.Encode(),
		WhatsApp: "https://wa.me/?" + wa.Encode(),
	}
}
