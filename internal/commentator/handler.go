package commentator

import (
	"errors"
	"net/http"

	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
	"github.com/gin-gonic/gin"
)

// Handler 暴露解说员列表相关的HTTP接口
type Handler struct {
	repo *Repository
}

// NewHandler 创建解说员接口
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListResponse 是列表接口的响应
type ListResponse struct {
	Commentators []Standing `json:"commentators"`
}

// RankingResponse 是排名接口的响应
type RankingResponse struct {
	Ranking []Ranked `json:"ranking"`
}

func currentUserID(c *gin.Context) string {
	if u := user.FromContext(c); u != nil {
		return u.ID
	}
	return ""
}

// ListCommentators 返回所有解说员，每条带有得分、投票人数和当前用户的投票
func (h *Handler) ListCommentators(c *gin.Context) {
	standings, err := h.repo.ListStandings(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ListResponse{Commentators: standings})
}

// GetRanking 返回服务端排好序的名次
func (h *Handler) GetRanking(c *gin.Context) {
	standings, err := h.repo.ListStandings(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, RankingResponse{Ranking: Rank(standings)})
}

// GetCommentator 返回单个解说员
func (h *Handler) GetCommentator(c *gin.Context) {
	s, err := h.repo.Get(c.Request.Context(), c.Param("id"), currentUserID(c))
	if errors.Is(err, vote.ErrCommentatorNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}
