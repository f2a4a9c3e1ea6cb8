package vote

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/platform/metrics"
	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// heartbeatInterval 是事件流在没有投票时发送心跳的间隔
const heartbeatInterval = 25 * time.Second

// VoteRequestBody 定义了前端提交投票时请求体的JSON结构
type VoteRequestBody struct {
	CommentatorID string `json:"commentator_id" binding:"required"`
	VoteType      Type   `json:"vote_type"`
}

// VoteResponse 是投票成功后的响应
type VoteResponse struct {
	Message string       `json:"message"`
	Vote    Notification `json:"vote"`
	Created bool         `json:"created"`
}

// Handler 暴露投票写入与投票事件流
type Handler struct {
	svc       *Service
	notifier  Notifier
	shutdown  <-chan struct{}
	heartbeat time.Duration
}

// NewHandler 创建投票接口。shutdown 关闭时所有事件流连接会被结束。
func NewHandler(svc *Service, notifier Notifier, shutdown <-chan struct{}) *Handler {
	return &Handler{
		svc:       svc,
		notifier:  notifier,
		shutdown:  shutdown,
		heartbeat: heartbeatInterval,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidVoteType), errors.Is(err, ErrMissingCommentator), errors.Is(err, ErrMissingUser):
		return http.StatusBadRequest
	case errors.Is(err, ErrCommentatorNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrCommentatorInactive):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// SubmitVote 处理前端提交的投票
func (h *Handler) SubmitVote(c *gin.Context) {
	var body VoteRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	u := user.FromContext(c)
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrMissingUser.Error()})
		return
	}

	res, err := h.svc.Cast(c.Request.Context(), CastRequest{
		UserID:        u.ID,
		CommentatorID: body.CommentatorID,
		VoteType:      body.VoteType,
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "处理投票失败: " + msg
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, VoteResponse{Message: "投票成功", Vote: res.Notification, Created: res.Created})
}

// Stream 以 Server-Sent Events 的形式转发 vote_update 广播，直到客户端断开或服务停机
func (h *Handler) Stream(c *gin.Context) {
	sub, err := h.notifier.Subscribe(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "无法订阅投票广播: " + err.Error()})
		return
	}
	metrics.StreamSubscribers.Set(float64(h.notifier.Subscribers()))
	defer func() {
		sub.Close()
		metrics.StreamSubscribers.Set(float64(h.notifier.Subscribers()))
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	// 先发送一条就绪事件，客户端据此确认订阅已建立
	c.SSEvent("ready", gin.H{"channel": ChannelName})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case n, ok := <-sub.C():
			if !ok {
				return false
			}
			c.SSEvent(EventName, n)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", t.Unix())
			return true
		case <-h.shutdown:
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}
