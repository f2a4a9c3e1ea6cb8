// Package analytics 提供即发即弃的埋点上报。
// 未配置Token时上报被完全禁用；上报失败只记录日志，永远不会影响调用方。
package analytics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/platform/config"
	"github.com/SlpAus/commentator-ranking-backend/pkg/lifecycle"
	"github.com/mixpanel/mixpanel-go"
)

// 事件名称
const (
	EventVoteCast = "Vote Cast"
	EventSignIn   = "Sign In"
	EventSignOut  = "Sign Out"
)

const (
	queueSize     = 256
	batchSize     = 50
	flushInterval = 2 * time.Second
	sendTimeout   = 5 * time.Second
)

// Sink 接收命名事件及任意属性
type Sink interface {
	Track(name, distinctID string, props map[string]any)
}

// Noop 丢弃所有事件
type Noop struct{}

func (Noop) Track(string, string, map[string]any) {}

// Client 把事件放入队列，由后台worker批量交给 Mixpanel 上报
type Client struct {
	mp    *mixpanel.ApiClient
	track func(ctx context.Context, events []*mixpanel.Event) error
	queue chan *mixpanel.Event
	now   func() time.Time
	abort context.Context
}

// New 根据配置创建上报端。Token为空时返回 Noop。
func New(cfg config.AnalyticsConfig) Sink {
	if cfg.Token == "" {
		return Noop{}
	}
	return NewClient(cfg.Token, cfg.Endpoint, &http.Client{Timeout: sendTimeout})
}

// NewClient 创建一个上报客户端，需要调用 Run 才会真正发送。
// endpoint 为空时使用 Mixpanel 的默认地址。
func NewClient(token, endpoint string, httpClient *http.Client) *Client {
	opts := []mixpanel.Options{mixpanel.HttpClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, mixpanel.ProxyApiLocation(endpoint))
	}
	mp := mixpanel.NewApiClient(token, opts...)
	return &Client{
		mp:    mp,
		track: mp.Track,
		queue: make(chan *mixpanel.Event, queueSize),
		now:   time.Now,
		abort: context.Background(),
	}
}

// AbortOn 设置停机时最后一次发送的取消条件。
// 未设置时最后一次发送只受 sendTimeout 限制。
func (c *Client) AbortOn(ctx context.Context) {
	c.abort = ctx
}

// Track 非阻塞地把事件放入队列，队列满时丢弃
func (c *Client) Track(name, distinctID string, props map[string]any) {
	merged := make(map[string]any, len(props)+1)
	for k, v := range props {
		merged[k] = v
	}
	merged["time"] = c.now().Unix()

	select {
	case c.queue <- c.mp.NewEvent(name, distinctID, merged):
	default:
		slog.Warn("埋点队列已满，丢弃事件", "event", name)
	}
}

// Run 是后台worker的主循环，直到生命周期句柄被取消。
// 退出前会尽力发送队列中剩余的事件。
func (c *Client) Run(handle *lifecycle.Handle) {
	defer handle.Close()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*mixpanel.Event, 0, batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		if err := c.track(ctx, batch); err != nil {
			slog.Warn("埋点上报失败", "events", len(batch), "error", err)
		}
		batch = make([]*mixpanel.Event, 0, batchSize)
	}

	for {
		select {
		case ev := <-c.queue:
			batch = append(batch, ev)
			if len(batch) >= batchSize {
				flush(handle.Ctx())
			}
		case <-ticker.C:
			flush(handle.Ctx())
		case <-handle.Done():
		drain:
			for {
				select {
				case ev := <-c.queue:
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			flush(c.abort)
			return
		}
	}
}

// VoteProps 是 Vote Cast 事件的属性
type VoteProps struct {
	CommentatorID   string
	CommentatorName string
	PreviousVote    int
	NewVote         int
	IsAnonymous     bool
}

func voteLabel(v int) string {
	if v > 0 {
		return "upvote"
	}
	return "downvote"
}

// TrackVote 上报一次投票变化
func TrackVote(s Sink, userID string, p VoteProps) {
	s.Track(EventVoteCast, userID, map[string]any{
		"userId":          userID,
		"commentatorId":   p.CommentatorID,
		"commentatorName": p.CommentatorName,
		"previousVote":    p.PreviousVote,
		"newVote":         p.NewVote,
		"isNewVote":       p.PreviousVote == 0,
		"voteType":        voteLabel(p.NewVote),
		"isAnonymous":     p.IsAnonymous,
	})
}

// TrackSignIn 上报一次登录
func TrackSignIn(s Sink, userID string, isAnonymous bool) {
	s.Track(EventSignIn, userID, map[string]any{
		"userId":      userID,
		"isAnonymous": isAnonymous,
	})
}

// TrackSignOut 上报一次登出
func TrackSignOut(s Sink, userID string) {
	s.Track(EventSignOut, userID, nil)
}
