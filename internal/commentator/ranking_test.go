package commentator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ids(ranked []Ranked) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.ID
	}
	return out
}

func TestRank(t *testing.T) {
	tests := []struct {
		name      string
		standings []Standing
		want      []string
	}{
		{name: "empty", standings: nil, want: []string{}},
		{
			name: "inactive sorts last despite lowest score",
			standings: []Standing{
				{ID: "A", IsActive: true, VoteSum: -3},
				{ID: "B", IsActive: true, VoteSum: 2},
				{ID: "C", IsActive: false, VoteSum: -10},
			},
			want: []string{"A", "B", "C"},
		},
		{
			name: "worst score first",
			standings: []Standing{
				{ID: "good", IsActive: true, VoteSum: 10},
				{ID: "bad", IsActive: true, VoteSum: -7},
				{ID: "meh", IsActive: true, VoteSum: 0},
			},
			want: []string{"bad", "meh", "good"},
		},
		{
			name: "ties keep input order",
			standings: []Standing{
				{ID: "first", IsActive: true, VoteSum: 1},
				{ID: "retired", IsActive: false, VoteSum: -1},
				{ID: "second", IsActive: true, VoteSum: 1},
				{ID: "third", IsActive: true, VoteSum: 1},
			},
			want: []string{"first", "second", "third", "retired"},
		},
		{
			name: "inactive ordered by score among themselves",
			standings: []Standing{
				{ID: "x", IsActive: false, VoteSum: 5},
				{ID: "y", IsActive: false, VoteSum: -5},
				{ID: "z", IsActive: true, VoteSum: 100},
			},
			want: []string{"z", "y", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked := Rank(tt.standings)
			assert.Equal(t, tt.want, ids(ranked))
			for i, r := range ranked {
				assert.Equal(t, i+1, r.Rank)
			}
		})
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	in := []Standing{
		{ID: "b", IsActive: true, VoteSum: 3},
		{ID: "a", IsActive: true, VoteSum: -3},
	}
	Rank(in)
	assert.Equal(t, "b", in[0].ID)
}

func TestRank_ActiveScoreOrdering(t *testing.T) {
	in := []Standing{
		{ID: "p", IsActive: true, VoteSum: 4},
		{ID: "q", IsActive: false, VoteSum: -40},
		{ID: "r", IsActive: true, VoteSum: -1},
		{ID: "s", IsActive: true, VoteSum: 2},
		{ID: "t", IsActive: false, VoteSum: 9},
	}
	ranked := Rank(in)

	rank := map[string]int{}
	for _, r := range ranked {
		rank[r.ID] = r.Rank
	}
	for _, a := range in {
		for _, b := range in {
			if a.IsActive && b.IsActive && a.VoteSum < b.VoteSum {
				assert.Less(t, rank[a.ID], rank[b.ID], "%s should rank before %s", a.ID, b.ID)
			}
			if a.IsActive && !b.IsActive {
				assert.Less(t, rank[a.ID], rank[b.ID], "active %s should rank before inactive %s", a.ID, b.ID)
			}
		}
	}
}
