package commentator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, asUser string) (*gin.Engine, *Repository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo, db := newTestRepo(t)
	seed(t, repo)
	_, err := vote.NewStore(db).Upsert(context.Background(), "u1", "c-mid", vote.Up)
	require.NoError(t, err)

	h := NewHandler(repo)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if asUser != "" {
			c.Set(user.ContextKey, &user.User{ID: asUser})
		}
	})
	r.GET("/commentators", h.ListCommentators)
	r.GET("/commentators/ranking", h.GetRanking)
	r.GET("/commentators/:id", h.GetCommentator)
	return r, repo
}

func TestHandler_ListCommentators(t *testing.T) {
	r, _ := newTestRouter(t, "u1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/commentators", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Commentators, 3)
	assert.Equal(t, "c-mid", body.Commentators[1].ID)
	assert.Equal(t, 1, body.Commentators[1].VoteSum)
	assert.Equal(t, 1, body.Commentators[1].TotalVotes)
	assert.Equal(t, vote.Up, body.Commentators[1].UserVote)
}

func TestHandler_GetRanking(t *testing.T) {
	r, _ := newTestRouter(t, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/commentators/ranking", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body RankingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Ranking, 3)
	// c-old(0) < c-mid(1)，c-new 不可投票排最后
	assert.Equal(t, "c-old", body.Ranking[0].ID)
	assert.Equal(t, "c-mid", body.Ranking[1].ID)
	assert.Equal(t, "c-new", body.Ranking[2].ID)
	assert.Equal(t, 3, body.Ranking[2].Rank)
	assert.Equal(t, vote.None, body.Ranking[1].UserVote)
}

func TestHandler_GetCommentator(t *testing.T) {
	r, _ := newTestRouter(t, "u1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/commentators/c-mid", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/commentators/ghost", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
