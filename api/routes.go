package api

import (
	"github.com/SlpAus/commentator-ranking-backend/internal/commentator"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/config"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/health"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/metrics"
	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
	"github.com/gin-gonic/gin"
)

// Handlers 汇总了所有需要注册路由的模块
type Handlers struct {
	Users        *user.Service
	User         *user.Handler
	Commentators *commentator.Handler
	Votes        *vote.Handler
	Health       *health.Checker
}

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, cfg config.ServerConfig, h Handlers) {
	if h.Health != nil {
		router.GET("/healthz", h.Health.Handle)
	}
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api", user.SessionMiddleware(cfg), user.LoadUserMiddleware(h.Users))
	{
		// 会话相关的路由组 /api/auth
		auth := api.Group("/auth")
		{
			auth.POST("/anonymous", h.User.SignInAnonymously)
			auth.GET("/user", h.User.GetCurrentUser)
			auth.POST("/name", user.RequireUser(), h.User.ClaimDisplayName)
			auth.POST("/signout", h.User.SignOut)
		}

		// 解说员相关的路由组 /api/commentators
		commentators := api.Group("/commentators")
		{
			commentators.GET("", h.Commentators.ListCommentators)
			commentators.GET("/ranking", h.Commentators.GetRanking)
			commentators.GET("/:id", h.Commentators.GetCommentator)
		}

		// 投票相关的路由组 /api/votes
		votes := api.Group("/votes")
		{
			votes.POST("", user.RequireUser(), h.Votes.SubmitVote)
			votes.GET("/stream", h.Votes.Stream)
		}
	}
}
