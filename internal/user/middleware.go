package user

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"

	"github.com/SlpAus/commentator-ranking-backend/internal/platform/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const (
	SessionName    = "commentator_session"
	SessionMaxAge  = 365 * 24 * 60 * 60
	sessionUserKey = "user_id"

	// ContextKey 是已加载用户在gin上下文中的键
	ContextKey = "user"
)

// SessionMiddleware 使用签名cookie保存会话。
// 未配置密钥时生成一个进程内随机密钥，重启后所有会话失效。
func SessionMiddleware(cfg config.ServerConfig) gin.HandlerFunc {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		slog.Warn("未配置 server.sessionSecret，使用随机生成的会话密钥")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic("无法生成会话密钥: " + err.Error())
		}
	}

	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, store)
}

// LoadUserMiddleware 从会话读取用户ID，并把用户放入gin上下文。
// 会话指向的用户已不存在时清除会话。
func LoadUserMiddleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, ok := session.Get(sessionUserKey).(string)
		if ok && id != "" {
			u, err := svc.Get(c.Request.Context(), id)
			switch {
			case err == nil:
				c.Set(ContextKey, u)
			case errors.Is(err, ErrUserNotFound):
				session.Clear()
				if err := session.Save(); err != nil {
					slog.Warn("清除失效会话失败", "error", err)
				}
			default:
				slog.Error("加载会话用户失败", "user", id, "error", err)
			}
		}
		c.Next()
	}
}

// RequireUser 拒绝没有会话用户的请求
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if FromContext(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请先登录"})
			return
		}
		c.Next()
	}
}

// FromContext 返回当前请求的用户，未登录时返回 nil
func FromContext(c *gin.Context) *User {
	v, ok := c.Get(ContextKey)
	if !ok {
		return nil
	}
	u, _ := v.(*User)
	return u
}

func setSessionUser(c *gin.Context, id string) error {
	session := sessions.Default(c)
	session.Set(sessionUserKey, id)
	return session.Save()
}
