package user

import (
	"errors"
	"net/http"

	"github.com/SlpAus/commentator-ranking-backend/internal/analytics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Handler 暴露认证相关的HTTP接口
type Handler struct {
	svc  *Service
	sink analytics.Sink
}

// NewHandler 创建认证接口
func NewHandler(svc *Service, sink analytics.Sink) *Handler {
	return &Handler{svc: svc, sink: sink}
}

// UserResponse 是 /auth 接口返回的结构，未登录时 User 为 null
type UserResponse struct {
	User *User `json:"user"`
}

// ClaimNameRequestBody 是认领显示名的请求体
type ClaimNameRequestBody struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// SignInAnonymously 在没有会话时创建匿名用户；已有会话时直接返回当前用户
func (h *Handler) SignInAnonymously(c *gin.Context) {
	if u := FromContext(c); u != nil {
		c.JSON(http.StatusOK, UserResponse{User: u})
		return
	}

	u, err := h.svc.CreateAnonymous(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "匿名登录失败: " + err.Error()})
		return
	}
	if err := setSessionUser(c, u.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存会话失败: " + err.Error()})
		return
	}

	analytics.TrackSignIn(h.sink, u.ID, u.IsAnonymous)
	c.JSON(http.StatusCreated, UserResponse{User: u})
}

// GetCurrentUser 返回当前会话的用户
func (h *Handler) GetCurrentUser(c *gin.Context) {
	c.JSON(http.StatusOK, UserResponse{User: FromContext(c)})
}

// ClaimDisplayName 让当前用户认领一个显示名
func (h *Handler) ClaimDisplayName(c *gin.Context) {
	var body ClaimNameRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	u, err := h.svc.ClaimDisplayName(c.Request.Context(), FromContext(c).ID, body.DisplayName)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, UserResponse{User: u})
	case errors.Is(err, ErrInvalidDisplayName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDisplayNameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "认领显示名失败: " + err.Error()})
	}
}

// SignOut 清除会话
func (h *Handler) SignOut(c *gin.Context) {
	u := FromContext(c)

	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "清除会话失败: " + err.Error()})
		return
	}

	if u != nil {
		analytics.TrackSignOut(h.sink, u.ID)
	}
	c.JSON(http.StatusOK, gin.H{"message": "已登出"})
}
