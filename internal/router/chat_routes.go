// Package router 提供 HTTP 路由注册
// 本文件定义会话与消息相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterChatRoutes 注册会话相关路由（需要认证）
func (rt *Router) RegisterChatRoutes(rg *gin.RouterGroup) {
	chatGroup := rg.Group("/chat")
	{
		chatGroup.GET("/conversations", rt.handlers.Chat.GetConversationList)      // 会话列表
		chatGroup.POST("/conversations", rt.handlers.Chat.CreateConversation)      // 幂等获取或创建会话
		chatGroup.GET("/conversations/unread-count", rt.handlers.Chat.GetUnreadCount) // 全局未读数
		chatGroup.GET("/conversations/:id/messages", rt.handlers.Chat.GetMessageList) // 分页历史消息
		chatGroup.PATCH("/conversations/:id/read", rt.handlers.Chat.MarkAsRead)    // 标记已读
	}
}
