// Package handler 提供 HTTP 请求处理器
// 本文件处理 WebSocket 连接升级
package handler

import (
	"net/http"
	"strings"

	"agenda_chat_server/internal/service/chat"
	"agenda_chat_server/pkg/errorx"
	"agenda_chat_server/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// upgrader WebSocket 升级器
// 跨域校验交给 CORS 中间件，这里放行所有来源
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WsHandler WebSocket 接入口
type WsHandler struct {
	hub *chat.Hub
}

// NewWsHandler 创建 WsHandler 实例
func NewWsHandler(hub *chat.Hub) *WsHandler {
	return &WsHandler{hub: hub}
}

// Connect 建立 WebSocket 连接
// GET /ws/chat?token=xxx
// 浏览器 WebSocket API 不支持自定义 Header，token 优先从查询参数取
// 认证失败返回 401，客户端视为终态不重连
func (h *WsHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code": errorx.CodeUnauthorized,
			"msg":  "缺少认证 Token",
		})
		return
	}

	claims, err := jwt.ParseToken(token)
	if err != nil || claims.Subject != "access_token" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code": errorx.CodeUnauthorized,
			"msg":  "Token 已过期或无效",
		})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("websocket upgrade failed", zap.String("user", claims.UserID), zap.Error(err))
		return
	}

	conn := chat.NewConn(ws, claims.UserID, claims.Nickname, claims.Role, h.hub)
	h.hub.Register(conn)
	go conn.Write()
	go conn.Read()
}
