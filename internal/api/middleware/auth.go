package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/social-feed/pkg/response"
)

// CtxUserID gin context key：当前请求的操作者
const CtxUserID = "uid"

// Auth 解析 Bearer JWT 并把操作者写进 context；
// 身份在这里只用来确定 actor，鉴权策略是各 handler 自己的事
func Auth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		raw := strings.TrimPrefix(h, "Bearer ")
		token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		claims := token.Claims.(*jwt.RegisteredClaims)
		c.Set(CtxUserID, claims.Subject)
		c.Next()
	}
}

// ActorID 取当前操作者；未登录返回空串
func ActorID(c *gin.Context) string {
	return c.GetString(CtxUserID)
}
