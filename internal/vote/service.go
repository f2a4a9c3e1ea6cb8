package vote

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/SlpAus/commentator-ranking-backend/internal/platform/metrics"
)

// CommentatorLookup 用于在写入投票前检查目标解说员。
// 不存在时返回 ErrCommentatorNotFound。
type CommentatorLookup interface {
	IsActive(ctx context.Context, commentatorID string) (bool, error)
}

// CastRequest 是一次投票请求
type CastRequest struct {
	UserID        string
	CommentatorID string
	VoteType      Type
	ClientIP      string
}

// Validate 在任何写入之前检查请求的完整性
func (r CastRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrMissingUser
	}
	if strings.TrimSpace(r.CommentatorID) == "" {
		return ErrMissingCommentator
	}
	if !r.VoteType.Valid() {
		return ErrInvalidVoteType
	}
	return nil
}

// CastResult 描述一次成功的投票
type CastResult struct {
	Notification Notification
	Created      bool
}

// Service 处理投票写入：校验、限流、upsert，然后广播变更
type Service struct {
	store        *Store
	commentators CommentatorLookup
	publisher    Publisher
	limiter      *RateLimiter
}

// NewService 创建投票服务。limiter 可以为 nil，表示不限流。
func NewService(store *Store, commentators CommentatorLookup, publisher Publisher, limiter *RateLimiter) *Service {
	return &Service{
		store:        store,
		commentators: commentators,
		publisher:    publisher,
		limiter:      limiter,
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidVoteType), errors.Is(err, ErrMissingUser), errors.Is(err, ErrMissingCommentator):
		return "validation"
	case errors.Is(err, ErrCommentatorNotFound):
		return "not_found"
	case errors.Is(err, ErrCommentatorInactive):
		return "inactive"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	}
	return "error"
}

// Cast 持久化一次投票。
// 写入成功后广播 vote_update；广播失败只记录日志，不影响投票结果。
func (s *Service) Cast(ctx context.Context, req CastRequest) (result *CastResult, err error) {
	defer func() {
		if err != nil {
			metrics.VotesRejected.WithLabelValues(rejectReason(err)).Inc()
		}
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if s.limiter != nil {
		reservation, rerr := s.limiter.Reserve(ctx, req.ClientIP)
		if rerr != nil {
			return nil, rerr
		}
		defer func() {
			if err == nil {
				reservation.Commit()
			}
			reservation.RollbackUnlessCommitted(ctx)
		}()
	}

	active, err := s.commentators.IsActive(ctx, req.CommentatorID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrCommentatorInactive
	}

	created, err := s.store.Upsert(ctx, req.UserID, req.CommentatorID, req.VoteType)
	if err != nil {
		return nil, err
	}

	write := "updated"
	if created {
		write = "created"
	}
	metrics.VotesCast.WithLabelValues(req.VoteType.String(), write).Inc()

	note := Notification{UserID: req.UserID, CommentatorID: req.CommentatorID, VoteType: req.VoteType}
	if err := s.publisher.Publish(ctx, note); err != nil {
		metrics.NotificationsPublished.WithLabelValues("failed").Inc()
		slog.Warn("投票已保存，但广播失败", "user", req.UserID, "commentator", req.CommentatorID, "error", err)
	} else {
		metrics.NotificationsPublished.WithLabelValues("ok").Inc()
	}

	return &CastResult{Notification: note, Created: created}, nil
}
