// Package handler 提供 HTTP 请求处理器
// 本文件处理客服会话与消息相关的 REST 请求
package handler

import (
	"agenda_chat_server/internal/dto/request"
	"agenda_chat_server/internal/dto/respond"
	"agenda_chat_server/internal/infrastructure/middleware"
	"agenda_chat_server/internal/model"
	"agenda_chat_server/internal/service"
	"agenda_chat_server/internal/service/chat"
	"agenda_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// ChatHandler 会话与消息的 REST 入口
// notifier 在已读、新建会话等 REST 副作用后触发 WebSocket 广播
type ChatHandler struct {
	conversationService service.ConversationService
	messageService      service.MessageService
	notifier            chat.Notifier
}

// NewChatHandler 创建 ChatHandler 实例
func NewChatHandler(conv service.ConversationService, msg service.MessageService, notifier chat.Notifier) *ChatHandler {
	return &ChatHandler{
		conversationService: conv,
		messageService:      msg,
		notifier:            notifier,
	}
}

// mustActor 取出认证中间件写入的访问者身份，缺失说明路由没挂 JWTAuth
func mustActor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		HandleError(c, errorx.ErrUnauthorized)
		return model.Actor{}, false
	}
	return actor, true
}

// GetConversationList 获取会话列表
// GET /chat/conversations?status=unread&search=xxx
func (h *ChatHandler) GetConversationList(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req request.GetConversationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	list, err := h.conversationService.List(actor, req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.GetConversationListRespond{Conversations: list})
}

// CreateConversation 幂等获取或创建会话
// POST /chat/conversations
// 客户无需传 userId；客服侧代客户建会话时传 userId
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req request.CreateConversationRequest
	// 客户可以不带请求体
	_ = c.ShouldBindJSON(&req)

	conv, created, err := h.conversationService.GetOrCreate(actor, req.UserId)
	if err != nil {
		HandleError(c, err)
		return
	}
	if created && h.notifier != nil {
		h.notifier.NotifyConversation(*conv)
	}
	HandleSuccess(c, conv)
}

// GetMessageList 分页获取会话历史消息（最新页优先）
// GET /chat/conversations/:id/messages?page=1&limit=50
func (h *ChatHandler) GetMessageList(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	conversationId := c.Param("id")
	var req request.GetMessageListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	data, err := h.messageService.GetMessageList(actor, conversationId, req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// MarkAsRead 将会话内对方发送的未读消息标记为已读（幂等）
// PATCH /chat/conversations/:id/read
func (h *ChatHandler) MarkAsRead(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	conversationId := c.Param("id")
	marked, err := h.conversationService.MarkAsRead(actor, conversationId)
	if err != nil {
		HandleError(c, err)
		return
	}
	// 有消息被回填 read_at 才广播，重复标记不惊扰房间
	if marked > 0 && h.notifier != nil {
		h.notifier.NotifyRead(conversationId, actor.Uuid)
	}
	HandleSuccess(c, gin.H{"marked": marked})
}

// GetUnreadCount 获取视角下的全局未读数
// GET /chat/conversations/unread-count
func (h *ChatHandler) GetUnreadCount(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	total, err := h.conversationService.UnreadTotal(actor)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.UnreadCountRespond{TotalUnread: total})
}
