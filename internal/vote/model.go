package vote

import (
	"fmt"
	"time"
)

// Type 是一次投票的取值，只能是 Up(+1) 或 Down(-1)。
// None 只出现在投影里，表示用户尚未对该解说员投票，永远不会被持久化。
type Type int8

const (
	None Type = 0
	Up   Type = 1
	Down Type = -1
)

// Valid 报告该取值能否被写入
func (t Type) Valid() bool {
	return t == Up || t == Down
}

func (t Type) String() string {
	switch t {
	case Up:
		return "upvote"
	case Down:
		return "downvote"
	case None:
		return "none"
	default:
		return fmt.Sprintf("Type(%d)", int8(t))
	}
}

// ParseType 解析命令行或请求中的投票取值
func ParseType(s string) (Type, error) {
	switch s {
	case "up", "upvote", "+1", "1":
		return Up, nil
	case "down", "downvote", "-1":
		return Down, nil
	}
	return None, fmt.Errorf("%w: %q", ErrInvalidVoteType, s)
}

// Vote 定义了投票在数据库中的持久化模型。
// (UserID, CommentatorID) 唯一，重复投票只会修改 VoteType，记录永远不会被删除。
type Vote struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	UserID        string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_votes_user_commentator" json:"user_id"`
	CommentatorID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_votes_user_commentator;index" json:"commentator_id"`
	VoteType      Type      `gorm:"type:smallint;not null;check:chk_votes_vote_type,vote_type IN (1, -1)" json:"vote_type"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
