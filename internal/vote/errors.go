package vote

import "errors"

var (
	ErrInvalidVoteType     = errors.New("投票取值必须为 1 或 -1")
	ErrMissingUser         = errors.New("投票缺少用户身份")
	ErrMissingCommentator  = errors.New("投票缺少解说员ID")
	ErrCommentatorNotFound = errors.New("解说员不存在")
	ErrCommentatorInactive = errors.New("解说员当前不可投票")
	ErrDuplicateVote       = errors.New("该用户已对该解说员投过票")
	ErrVoteNotFound        = errors.New("投票记录不存在")
	ErrRateLimited         = errors.New("投票过于频繁，请稍后再试")
)
