// Package service 定义业务逻辑层接口
// Handler 层依赖这些接口而非具体实现，便于测试时注入 stub
package service

import (
	"agenda_chat_server/internal/dto/request"
	"agenda_chat_server/internal/dto/respond"
	"agenda_chat_server/internal/model"
)

// ConversationService 会话业务逻辑接口
type ConversationService interface {
	// List 按视角返回会话列表
	// 客服侧看到全部会话，客户只看到自己的那一个；status=unread 过滤无未读会话
	List(viewer model.Actor, req request.GetConversationListRequest) ([]respond.ConversationRespond, error)
	// GetOrCreate 幂等获取或创建会话
	// 客户视角以自身为会话主体；客服侧需指定 counterpartUserId
	// 返回会话元数据和是否新建（新建时需要向客服侧广播 conversation_updated）
	GetOrCreate(viewer model.Actor, counterpartUserId string) (*respond.ConversationRespond, bool, error)
	// MarkAsRead 将会话标记为已读（幂等），返回实际回填 read_at 的条数
	MarkAsRead(viewer model.Actor, conversationId string) (int64, error)
	// UnreadTotal 返回视角下的全局未读数（优先读缓存）
	UnreadTotal(viewer model.Actor) (int64, error)
}

// MessageService 消息业务逻辑接口
type MessageService interface {
	// GetMessageList 分页获取会话消息（最新页优先），并校验视角是否可访问该会话
	GetMessageList(viewer model.Actor, conversationId string, req request.GetMessageListRequest) (*respond.GetMessageListRespond, error)
}
