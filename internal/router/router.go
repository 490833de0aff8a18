// Package router 提供 HTTP 路由注册
// 本文件是路由注册的入口，聚合所有子模块的路由
package router

import (
	"github.com/gin-gonic/gin"

	"agenda_chat_server/internal/handler"
	"agenda_chat_server/internal/infrastructure/middleware"
)

// Router 路由管理器，持有 Handler 聚合
type Router struct {
	handlers *handler.Handlers
}

// NewRouter 创建路由管理器
func NewRouter(handlers *handler.Handlers) *Router {
	return &Router{handlers: handlers}
}

// RegisterRoutes 注册所有路由
// 在 https_server.Init() 中调用
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	// WebSocket 入口自带 Token 校验，不走 JWT 中间件
	rt.RegisterWebSocketRoutes(r)

	authed := r.Group("/", middleware.JWTAuth())
	rt.RegisterChatRoutes(authed)
}
