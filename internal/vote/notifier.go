package vote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

const (
	// ChannelName 是投票变更广播使用的频道
	ChannelName = "votes_channel"
	// EventName 是投票变更事件的名称
	EventName = "vote_update"

	subscriptionBuffer = 64
)

// Notification 是一次投票变更的广播内容。
// 它会被投递给所有订阅者，包括发布者自己，由订阅者按 UserID 过滤。
type Notification struct {
	UserID        string `json:"user_id"`
	CommentatorID string `json:"commentator_id"`
	VoteType      Type   `json:"vote_type"`
}

// envelope 是广播在频道上的线格式
type envelope struct {
	Event   string       `json:"event"`
	Payload Notification `json:"payload"`
}

// Publisher 发布投票变更
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Notifier 同时支持发布与订阅
type Notifier interface {
	Publisher
	Subscribe(ctx context.Context) (*Subscription, error)
	// Subscribers 返回本进程当前持有的订阅数量
	Subscribers() int
}

// Subscription 是一次订阅的句柄。
// Close 之后 C() 返回的channel会被关闭，Close 可以重复调用。
type Subscription struct {
	c       <-chan Notification
	once    sync.Once
	closeFn func() error
	err     error
}

// C 返回接收通知的channel
func (s *Subscription) C() <-chan Notification {
	return s.c
}

// Close 取消订阅并释放资源
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.err = s.closeFn()
	})
	return s.err
}

// --- Redis Pub/Sub 实现 ---

// RedisNotifier 通过 Redis Pub/Sub 在多个服务实例之间广播投票变更
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	active  atomic.Int64
}

// NewRedisNotifier 使用进程内共享的Redis客户端创建通知器
func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: ChannelName}
}

// Publish 将通知序列化后发布到频道
func (n *RedisNotifier) Publish(ctx context.Context, note Notification) error {
	data, err := json.Marshal(envelope{Event: EventName, Payload: note})
	if err != nil {
		return err
	}
	if err := n.rdb.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("发布投票变更失败: %w", err)
	}
	return nil
}

// Subscribe 订阅频道，在订阅确认之后才返回
func (n *RedisNotifier) Subscribe(ctx context.Context) (*Subscription, error) {
	ps := n.rdb.Subscribe(ctx, n.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("订阅投票频道失败: %w", err)
	}

	msgs := ps.Channel()
	out := make(chan Notification, subscriptionBuffer)
	n.active.Add(1)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for msg := range msgs {
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("忽略无法解析的投票广播", "error", err)
				continue
			}
			if env.Event != EventName {
				continue
			}
			select {
			case out <- env.Payload:
			case <-done:
				return
			}
		}
	}()

	return &Subscription{
		c: out,
		closeFn: func() error {
			close(done)
			n.active.Add(-1)
			return ps.Close()
		},
	}, nil
}

// Subscribers 返回本进程当前持有的订阅数量
func (n *RedisNotifier) Subscribers() int {
	return int(n.active.Load())
}

// VerifySubscriptions 检查Redis端登记的订阅数不少于本进程持有的订阅数。
// Redis重启后连接会在后台重建，重建完成前这里返回错误。
func (n *RedisNotifier) VerifySubscriptions(ctx context.Context) error {
	local := n.active.Load()
	if local == 0 {
		return nil
	}
	counts, err := n.rdb.PubSubNumSub(ctx, n.channel).Result()
	if err != nil {
		return fmt.Errorf("查询频道订阅数失败: %w", err)
	}
	if remote := counts[n.channel]; remote < local {
		return fmt.Errorf("频道 %s 的订阅尚未恢复 (Redis: %d, 本进程: %d)", n.channel, remote, local)
	}
	return nil
}

// --- 进程内实现 ---

// LocalNotifier 在单个进程内向所有订阅者广播。
// 订阅者消费过慢时，新的通知会被丢弃而不是阻塞发布者。
type LocalNotifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Notification
}

// NewLocalNotifier 创建一个进程内通知器
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[int]chan Notification)}
}

// Publish 把通知投递给当前所有订阅者
func (n *LocalNotifier) Publish(ctx context.Context, note Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for id, ch := range n.subs {
		select {
		case ch <- note:
		default:
			slog.Warn("订阅者处理过慢，丢弃一条投票广播", "subscription", id)
		}
	}
	return nil
}

// Subscribe 注册一个新的订阅者
func (n *LocalNotifier) Subscribe(ctx context.Context) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	ch := make(chan Notification, subscriptionBuffer)
	n.subs[id] = ch
	n.mu.Unlock()

	return &Subscription{
		c: ch,
		closeFn: func() error {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			close(ch)
			return nil
		},
	}, nil
}

// Subscribers 返回当前的订阅者数量
func (n *LocalNotifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
