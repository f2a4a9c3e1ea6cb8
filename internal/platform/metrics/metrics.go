// Package metrics 定义了服务暴露在 /metrics 上的Prometheus指标
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VotesCast 按投票取值和写入方式(created/updated)统计成功的投票
	VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentator_votes_cast_total",
		Help: "Number of votes persisted, by vote type and write path",
	}, []string{"vote_type", "write"})

	// VotesRejected 按原因统计被拒绝的投票
	VotesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentator_votes_rejected_total",
		Help: "Number of vote requests rejected before persisting",
	}, []string{"reason"})

	// NotificationsPublished 统计广播结果
	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentator_vote_notifications_total",
		Help: "Number of vote_update broadcasts, by result",
	}, []string{"result"})

	// StreamSubscribers 是当前连接在事件流上的客户端数量
	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "commentator_vote_stream_subscribers",
		Help: "Number of clients currently attached to the vote stream",
	})

	// RedisHealthy 为1表示Redis当前可用
	RedisHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "commentator_redis_healthy",
		Help: "1 when the last Redis health check succeeded",
	})
)

// Handler 以gin处理函数的形式暴露默认注册表
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
