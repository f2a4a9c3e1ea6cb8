package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/analytics"
	"github.com/SlpAus/commentator-ranking-backend/internal/commentator"
	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
)

// DefaultCacheTime 是两次由远端广播触发的重新拉取之间的最小间隔
const DefaultCacheTime = 5 * time.Minute

// 广播连接断开后的重连间隔，每次失败翻倍直到上限
const (
	DefaultResubscribeDelay = time.Second
	maxResubscribeDelay     = 30 * time.Second
)

// ErrStreamClosed 表示投票广播连接被意外断开，会话正在重连
var ErrStreamClosed = errors.New("投票广播连接已断开")

// State 是客户端会话的数据状态
type State int

const (
	StateLoading State = iota
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options 配置一个客户端会话
type Options struct {
	// CacheTime 为0时使用 DefaultCacheTime
	CacheTime time.Duration
	// ShareThreshold 为0时使用 DefaultShareThreshold
	ShareThreshold int
	Flags          FlagStore
	Sink           analytics.Sink
	// OnSharePrompt 在自动分享提示触发时调用
	OnSharePrompt func()
	// OnChange 在本地数据变化后调用（乐观更新、回滚、重新拉取）
	OnChange func()
	// ResubscribeDelay 为0时使用 DefaultResubscribeDelay
	ResubscribeDelay time.Duration
	Now              func() time.Time
}

// Session 持有一个客户端的本地投影：所有解说员及当前用户自己的投票。
// 投票先在本地乐观生效，再发往服务端，失败时回滚；
// 收到其他用户的变更广播时，按最小间隔重新拉取权威数据并整体替换本地投影。
type Session struct {
	api       API
	cacheTime time.Duration
	sink      analytics.Sink
	onChange  func()
	now       func() time.Time
	tracker   *ShareTracker
	retry     time.Duration

	mu         sync.Mutex
	state      State
	err        error
	user       *user.User
	standings  []commentator.Standing
	lastUpdate time.Time
	inFlight   map[string]bool

	sub    Subscription
	wg     sync.WaitGroup
	closed bool
	stop   chan struct{}
}

// NewSession 创建一个会话，需要调用 Start 才会登录和拉取数据
func NewSession(api API, opts Options) *Session {
	if opts.CacheTime <= 0 {
		opts.CacheTime = DefaultCacheTime
	}
	if opts.Flags == nil {
		opts.Flags = &MemoryStore{}
	}
	if opts.Sink == nil {
		opts.Sink = analytics.Noop{}
	}
	if opts.ResubscribeDelay <= 0 {
		opts.ResubscribeDelay = DefaultResubscribeDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Session{
		api:       api,
		cacheTime: opts.CacheTime,
		sink:      opts.Sink,
		onChange:  opts.OnChange,
		now:       opts.Now,
		tracker:   NewShareTracker(opts.ShareThreshold, opts.Flags, opts.OnSharePrompt),
		retry:     opts.ResubscribeDelay,
		state:     StateLoading,
		inFlight:  make(map[string]bool),
		stop:      make(chan struct{}),
	}
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Start 确保存在会话用户（没有时匿名登录），无条件拉取一次数据，然后订阅远端变更。
// 拉取失败只会让会话进入 StateError，不会让 Start 失败。ctx 决定订阅的存活时间。
// 订阅意外断开时会话进入 StateError 并在后台重连，重连成功后无条件重新拉取。
func (s *Session) Start(ctx context.Context) error {
	u, err := s.api.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("读取当前用户失败: %w", err)
	}
	if u == nil {
		u, err = s.api.SignInAnonymously(ctx)
		if err != nil {
			return fmt.Errorf("匿名登录失败: %w", err)
		}
		analytics.TrackSignIn(s.sink, u.ID, u.IsAnonymous)
	}
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()

	if err := s.Load(ctx); err != nil {
		slog.Warn("首次拉取解说员列表失败", "error", err)
	}

	sub, err := s.api.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("订阅投票广播失败: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return sub.Close()
	}
	s.sub = sub
	s.mu.Unlock()

	s.wg.Add(1)
	go s.follow(ctx, sub)
	return nil
}

// follow 处理广播直到会话关闭，连接断开时重连
func (s *Session) follow(ctx context.Context, sub Subscription) {
	defer s.wg.Done()
	for {
		for n := range sub.C() {
			if _, err := s.HandleNotification(ctx, n); err != nil {
				slog.Warn("重新拉取解说员列表失败", "error", err)
			}
		}
		_ = sub.Close()

		s.mu.Lock()
		if s.closed || ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		s.state = StateError
		s.err = ErrStreamClosed
		s.mu.Unlock()
		s.changed()
		slog.Warn("投票广播连接断开，准备重连")

		if sub = s.resubscribe(ctx); sub == nil {
			return
		}
		if err := s.Load(ctx); err != nil {
			slog.Warn("重连后拉取解说员列表失败", "error", err)
		}
	}
}

// resubscribe 按退避间隔重试订阅，会话关闭时返回 nil
func (s *Session) resubscribe(ctx context.Context) Subscription {
	delay := s.retry
	for {
		select {
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		sub, err := s.api.Subscribe(ctx)
		if err != nil {
			delay = min(delay*2, maxResubscribeDelay)
			slog.Warn("重新订阅投票广播失败", "error", err, "retryIn", delay)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = sub.Close()
			return nil
		}
		s.sub = sub
		s.mu.Unlock()
		slog.Info("投票广播已重连")
		return sub
	}
}

// Close 取消订阅并等待后台处理结束，可以重复调用
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stop)
	}
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Close()
	}
	s.wg.Wait()
	return err
}

// Load 无条件拉取权威数据，用于首次加载和手动重试
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	s.lastUpdate = s.now()
	s.mu.Unlock()
	return s.fetch(ctx)
}

// Refresh 是用户主动重试，与 Load 相同
func (s *Session) Refresh(ctx context.Context) error {
	return s.Load(ctx)
}

// fetch 拉取并整体替换本地投影，尚未确认的乐观更新会被丢弃
func (s *Session) fetch(ctx context.Context) error {
	standings, err := s.api.FetchStandings(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = StateError
		s.err = err
	} else {
		s.state = StateReady
		s.err = nil
		s.standings = standings
	}
	s.mu.Unlock()

	s.changed()
	return err
}

// HandleNotification 处理一条远端变更广播。
// 自己发出的广播被忽略；距离上次拉取不足 CacheTime 时不拉取。
func (s *Session) HandleNotification(ctx context.Context, n vote.Notification) (refetched bool, err error) {
	s.mu.Lock()
	if s.user != nil && n.UserID == s.user.ID {
		s.mu.Unlock()
		return false, nil
	}
	now := s.now()
	if now.Sub(s.lastUpdate) < s.cacheTime {
		s.mu.Unlock()
		return false, nil
	}
	s.lastUpdate = now
	s.mu.Unlock()

	return true, s.fetch(ctx)
}

func (s *Session) indexLocked(commentatorID string) int {
	for i := range s.standings {
		if s.standings[i].ID == commentatorID {
			return i
		}
	}
	return -1
}

// Vote 让当前用户对一个解说员投票。
// 没有用户、解说员不存在或不可投票、或该解说员已有进行中的投票时，什么也不做。
// 服务端写入失败时本地投影回滚到投票前的状态，并返回错误。
func (s *Session) Vote(ctx context.Context, commentatorID string, voteType vote.Type) error {
	if !voteType.Valid() {
		return vote.ErrInvalidVoteType
	}

	s.mu.Lock()
	u := s.user
	i := s.indexLocked(commentatorID)
	if u == nil || i < 0 || !s.standings[i].IsActive || s.inFlight[commentatorID] {
		s.mu.Unlock()
		return nil
	}

	target := s.standings[i]
	prev := target.UserVote
	applied := target.WithTally(target.Tally().Apply(prev, voteType))
	applied.UserVote = voteType
	s.standings[i] = applied
	s.inFlight[commentatorID] = true
	s.mu.Unlock()
	s.changed()

	s.tracker.Record(commentatorID)
	analytics.TrackVote(s.sink, u.ID, analytics.VoteProps{
		CommentatorID:   commentatorID,
		CommentatorName: target.Name,
		PreviousVote:    int(prev),
		NewVote:         int(voteType),
		IsAnonymous:     u.IsAnonymous,
	})

	err := s.api.CastVote(ctx, commentatorID, voteType)

	s.mu.Lock()
	delete(s.inFlight, commentatorID)
	if err != nil {
		s.rollbackLocked(commentatorID, prev, voteType)
	}
	s.mu.Unlock()

	if err != nil {
		s.changed()
		return fmt.Errorf("投票失败，已回滚: %w", err)
	}
	return nil
}

// rollbackLocked 撤销一次失败的乐观投票。
// 有旧投票时按同一转换规则改回旧投票；首次投票则完全撤销。
// 期间被整体替换过的行不再带有这次乐观投票，保持不变。
func (s *Session) rollbackLocked(commentatorID string, prev, attempted vote.Type) {
	i := s.indexLocked(commentatorID)
	if i < 0 || s.standings[i].UserVote != attempted {
		return
	}

	row := s.standings[i]
	if prev == vote.None {
		row = row.WithTally(row.Tally().Revert(attempted))
	} else {
		row = row.WithTally(row.Tally().Apply(attempted, prev))
	}
	row.UserVote = prev
	s.standings[i] = row
}

// Snapshot 是会话在某一时刻的只读视图
type Snapshot struct {
	State      State
	Err        error
	User       *user.User
	Standings  []commentator.Standing
	LastUpdate time.Time
}

// Snapshot 返回当前状态的副本
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	standings := make([]commentator.Standing, len(s.standings))
	copy(standings, s.standings)
	return Snapshot{
		State:      s.state,
		Err:        s.err,
		User:       s.user,
		Standings:  standings,
		LastUpdate: s.lastUpdate,
	}
}

// Ranked 返回按当前本地投影排好序的名次
func (s *Session) Ranked() []commentator.Ranked {
	return commentator.Rank(s.Snapshot().Standings)
}

// ShareCount 返回本次会话中投过票的不同解说员数量
func (s *Session) ShareCount() int {
	return s.tracker.Count()
}
