package commentator

import (
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
)

// Commentator 定义了解说员在数据库中的持久化模型。
// 得分不作为字段保存，每次都从投票表重新计算。
type Commentator struct {
	ID          string      `gorm:"primarykey;type:varchar(36)" json:"id"`
	Name        string      `gorm:"not null" json:"name"`
	Description *string     `json:"description"`
	ImageURL    *string     `json:"image_url"`
	IsActive    bool        `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	Votes       []vote.Vote `gorm:"foreignKey:CommentatorID;references:ID" json:"-"`
}

// Standing 是带有投票汇总的解说员投影。
// UserVote 是当前用户自己的投票，vote.None 表示未投票。
type Standing struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	ImageURL    *string   `json:"image_url"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	VoteSum     int       `json:"vote_sum"`
	TotalVotes  int       `json:"total_votes"`
	UserVote    vote.Type `json:"user_vote"`
}

// Tally 返回该解说员当前的投票汇总
func (s Standing) Tally() vote.Tally {
	return vote.Tally{VoteSum: s.VoteSum, TotalVotes: s.TotalVotes}
}

// WithTally 返回替换了汇总之后的副本
func (s Standing) WithTally(t vote.Tally) Standing {
	s.VoteSum = t.VoteSum
	s.TotalVotes = t.TotalVotes
	return s
}

// NewStanding 从解说员及其全部投票计算投影
func NewStanding(c Commentator, userID string) Standing {
	s := Standing{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		ImageURL:    c.ImageURL,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
	}.WithTally(vote.Aggregate(c.Votes))

	if userID != "" {
		for _, v := range c.Votes {
			if v.UserID == userID {
				s.UserVote = v.VoteType
				break
			}
		}
	}
	return s
}
