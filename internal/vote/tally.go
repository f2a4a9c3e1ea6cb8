package vote

// Tally 是一个解说员的投票汇总。
// VoteSum 为所有投票取值之和，TotalVotes 为投过票的不同用户数。
type Tally struct {
	VoteSum    int `json:"vote_sum"`
	TotalVotes int `json:"total_votes"`
}

// Aggregate 从一个解说员的全部投票计算汇总，结果与投票顺序无关
func Aggregate(votes []Vote) Tally {
	var t Tally
	for _, v := range votes {
		t.VoteSum += int(v.VoteType)
		t.TotalVotes++
	}
	return t
}

// Apply 返回用户的投票从 prev 变为 next 之后的汇总。
// prev 为 None 表示首次投票，此时 TotalVotes 加一；改票不改变投票人数。
func (t Tally) Apply(prev, next Type) Tally {
	if prev == None {
		t.VoteSum += int(next)
		t.TotalVotes++
		return t
	}
	t.VoteSum += int(next) - int(prev)
	return t
}

// Revert 撤销一次首次投票，是 Apply(None, v) 的逆操作
func (t Tally) Revert(v Type) Tally {
	t.VoteSum -= int(v)
	t.TotalVotes--
	return t
}
