package commentator

import "sort"

// Ranked 是排序后带名次的投影，Rank 从1开始
type Ranked struct {
	Standing
	Rank int `json:"rank"`
}

// Rank 按 (可投票优先, 得分升序) 排序，得分最低的解说员排第一，
// 不可投票的解说员无论得分都排在最后。得分相同时保持输入顺序。
func Rank(standings []Standing) []Ranked {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsActive != sorted[j].IsActive {
			return sorted[i].IsActive
		}
		return sorted[i].VoteSum < sorted[j].VoteSum
	})

	ranked := make([]Ranked, len(sorted))
	for i, s := range sorted {
		ranked[i] = Ranked{Standing: s, Rank: i + 1}
	}
	return ranked
}
