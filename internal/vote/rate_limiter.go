package vote

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// ipVoteKeyPrefix 是Redis中每个IP投票时间窗口的有序集合键名前缀
const ipVoteKeyPrefix = "commentator:ip_votes:"

// RateLimiter 基于Redis有序集合实现按IP的滑动窗口投票频率限制
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter 创建一个限制器，每个IP在 window 内最多 limit 次投票
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, limit: limit, window: window, now: time.Now}
}

// Reservation 封装了一次计数增加的回滚逻辑。
// 业务流程失败时，通过 defer RollbackUnlessCommitted 归还这次计数。
type Reservation struct {
	rdb       *redis.Client
	key       string
	member    string
	committed bool
}

// generateMemberID 生成16字节的抗冲突ID: [8字节纳秒时间戳 | 8字节随机数]
func generateMemberID(t time.Time) (string, error) {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(t.UnixNano()))
	if _, err := rand.Read(b[8:16]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Reserve 为一个IP原子地记录一次投票。
// 超出限制时归还计数并返回 ErrRateLimited。
func (l *RateLimiter) Reserve(ctx context.Context, ip string) (*Reservation, error) {
	if ip == "" {
		return nil, errors.New("投票缺少IP")
	}
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("投票IP无效: %q", ip)
	}

	now := l.now()
	key := ipVoteKeyPrefix + ip
	minScore := float64(now.Add(-l.window).UnixMicro())
	member, err := generateMemberID(now)
	if err != nil {
		return nil, fmt.Errorf("生成 memberID 失败: %w", err)
	}

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", minScore))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: member})
	pipe.Expire(ctx, key, l.window+time.Minute)
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("执行IP计数事务失败: %w", err)
	}

	r := &Reservation{rdb: l.rdb, key: key, member: member}
	if countCmd.Val() > int64(l.limit) {
		r.RollbackUnlessCommitted(ctx)
		return nil, ErrRateLimited
	}
	return r, nil
}

// Commit 标记上层业务已成功，阻止后续的回滚操作
func (r *Reservation) Commit() {
	r.committed = true
}

// RollbackUnlessCommitted 用于defer调用，Commit 没有被调用时从窗口中移除本次计数
func (r *Reservation) RollbackUnlessCommitted(ctx context.Context) {
	if r == nil || r.committed {
		return
	}
	if err := r.rdb.ZRem(context.WithoutCancel(ctx), r.key, r.member).Err(); err != nil {
		slog.Error("投票计数补偿操作失败", "key", r.key, "member", r.member, "error", err)
	}
}
