// Package service 提供业务逻辑层
// 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"agenda_chat_server/internal/dao/mysql"
	myredis "agenda_chat_server/internal/dao/redis"
	"agenda_chat_server/internal/service/conversation"
	"agenda_chat_server/internal/service/message"
)

// Services 聚合所有 Service 实例
// 作为依赖注入的入口，Handler 层通过此结构访问各个 Service
type Services struct {
	Conversation ConversationService // 会话 Service
	Message      MessageService      // 消息 Service
}

// NewServices 创建并注入所有 Service 实例
func NewServices(repos *mysql.Repositories, cache myredis.AsyncCacheService) *Services {
	return &Services{
		Conversation: conversation.NewConversationService(repos, cache),
		Message:      message.NewMessageService(repos),
	}
}
