package middleware

import (
	"net/http"
	"strings"

	"agenda_chat_server/internal/model"
	"agenda_chat_server/pkg/errorx"
	"agenda_chat_server/pkg/util/jwt"

	"github.com/gin-gonic/gin"
)

// ActorKey 上下文中访问者身份的键名
const ActorKey = "actor"

// JWTAuth JWT 认证中间件
// 验证 Access Token 并将访问者身份存入上下文
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从 Header 获取 Token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "请先登录",
			})
			return
		}

		// 2. 解析 Bearer Token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "Token 格式错误，请使用 Bearer Token",
			})
			return
		}

		// 3. 验证 Token
		claims, err := jwt.ParseToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "Token 已过期或无效，请重新登录",
			})
			return
		}

		// 4. 验证是否为 Access Token
		if claims.Subject != "access_token" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "请使用 Access Token 访问此接口",
			})
			return
		}

		// 5. 将访问者身份存入上下文，供后续 Handler 使用
		c.Set(ActorKey, model.Actor{
			Uuid:     claims.UserID,
			Nickname: claims.Nickname,
			Role:     claims.Role,
		})
		c.Next()
	}
}

// GetActor 从上下文取出认证中间件写入的访问者身份
func GetActor(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}
